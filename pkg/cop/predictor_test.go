package cop

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict(t *testing.T) {
	ctx := context.Background()
	p := NewPredictor(store.NewMemory())

	t.Run("bounds hold across the operating envelope", func(t *testing.T) {
		for flow := 25.0; flow <= 65; flow += 5 {
			for outdoor := -25.0; outdoor < flow; outdoor += 5 {
				pred := p.Predict(ctx, flow, outdoor)
				assert.GreaterOrEqual(t, pred.PredictedCOP, MinCOP, "flow=%v outdoor=%v", flow, outdoor)
				assert.LessOrEqual(t, pred.PredictedCOP, MaxCOP, "flow=%v outdoor=%v", flow, outdoor)
			}
		}
	})

	t.Run("carnot math", func(t *testing.T) {
		pred := p.Predict(ctx, 35, 5)
		assert.Equal(t, types.PredictionMethodCarnot, pred.Method)
		assert.Equal(t, 30.0, pred.TemperatureLift)
		assert.InDelta(t, (35+273.15)/30, pred.CarnotCOP, 1e-9)
		assert.InDelta(t, pred.CarnotEfficiency*pred.CarnotCOP, pred.PredictedCOP, 1e-9)
	})

	t.Run("non-positive lift falls back", func(t *testing.T) {
		pred := p.Predict(ctx, 20, 25)
		assert.Equal(t, types.PredictionMethodHistoricalFallback, pred.Method)
		assert.Equal(t, FallbackCOP, pred.PredictedCOP)
		assert.Equal(t, 0.3, pred.Confidence)

		pred = p.Predict(ctx, 20, 20)
		assert.Equal(t, types.PredictionMethodHistoricalFallback, pred.Method)
	})

	t.Run("non-finite inputs fall back", func(t *testing.T) {
		pred := p.Predict(ctx, math.NaN(), 5)
		assert.Equal(t, types.PredictionMethodHistoricalFallback, pred.Method)

		pred = p.Predict(ctx, 35, math.Inf(1))
		assert.Equal(t, types.PredictionMethodHistoricalFallback, pred.Method)
	})

	t.Run("confidence derated at extreme lifts", func(t *testing.T) {
		normal := p.Predict(ctx, 40, 10) // lift 30
		high := p.Predict(ctx, 60, 10)   // lift 50
		low := p.Predict(ctx, 22, 15)    // lift 7

		assert.InDelta(t, normal.Confidence*0.8, high.Confidence, 1e-9)
		assert.InDelta(t, normal.Confidence*0.7, low.Confidence, 1e-9)
	})
}

func TestAddCalibrationPoint(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	p := NewPredictor(s)

	t.Run("rejects invalid samples", func(t *testing.T) {
		p.AddCalibrationPoint(ctx, math.NaN(), 5, 3)
		p.AddCalibrationPoint(ctx, 35, 5, 0.5) // below MinCOP
		p.AddCalibrationPoint(ctx, 35, 5, 9)   // above MaxCOP
		assert.Equal(t, 0, p.PointCount())
	})

	t.Run("appends and persists", func(t *testing.T) {
		p.AddCalibrationPoint(ctx, 35, 5, 3.2)
		assert.Equal(t, 1, p.PointCount())

		var stored []types.CalibrationPoint
		ok, err := store.GetJSON(ctx, s, "cop.calibration_points", &stored)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, stored, 1)
		assert.Equal(t, 3.2, stored[0].ActualCOP)
	})

	t.Run("prunes points older than 30 days", func(t *testing.T) {
		now := time.Now()
		p.now = func() time.Time { return now.Add(-31 * 24 * time.Hour) }
		p.AddCalibrationPoint(ctx, 40, 0, 2.8)
		p.now = func() time.Time { return now }
		p.AddCalibrationPoint(ctx, 38, 2, 3.0)

		// the 31-day-old point is gone, the earlier fresh one and the new
		// one remain
		assert.Equal(t, 2, p.PointCount())
	})
}

func TestCalibrate(t *testing.T) {
	ctx := context.Background()

	addPoints := func(p *Predictor, n int, flow, outdoor, actual float64) {
		for i := 0; i < n; i++ {
			p.AddCalibrationPoint(ctx, flow, outdoor, actual)
		}
	}

	t.Run("requires seven valid points", func(t *testing.T) {
		p := NewPredictor(store.NewMemory())
		addPoints(p, 6, 35, 5, 3.5)

		result, err := p.Calibrate(ctx)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, defaultCarnotEfficiency, p.CarnotEfficiency())
	})

	t.Run("all outliers leaves efficiency unchanged", func(t *testing.T) {
		p := NewPredictor(store.NewMemory())
		// carnot COP at (35,5) is ~10.27; actual 1.0 implies ~0.097,
		// far below the efficiency floor
		addPoints(p, 8, 35, 5, 1.0)

		result, err := p.Calibrate(ctx)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, defaultCarnotEfficiency, p.CarnotEfficiency())
	})

	t.Run("efficiency stays bounded for adversarial samples", func(t *testing.T) {
		p := NewPredictor(store.NewMemory())
		// extreme but accepted COP values
		addPoints(p, 4, 30, 25, 6.0) // tiny lift, huge carnot COP
		addPoints(p, 4, 65, -20, 6.0)
		addPoints(p, 4, 35, 5, 3.8)

		result, err := p.Calibrate(ctx)
		require.NoError(t, err)
		if result != nil {
			assert.GreaterOrEqual(t, result.CarnotEfficiency, MinCarnotEfficiency)
			assert.LessOrEqual(t, result.CarnotEfficiency, MaxCarnotEfficiency)
		}
		assert.GreaterOrEqual(t, p.CarnotEfficiency(), MinCarnotEfficiency)
		assert.LessOrEqual(t, p.CarnotEfficiency(), MaxCarnotEfficiency)
	})

	t.Run("successful calibration overwrites and persists", func(t *testing.T) {
		s := store.NewMemory()
		p := NewPredictor(s)
		// carnot COP at (35,5) is ~10.27; actual 4.1 implies ~0.399
		addPoints(p, 9, 35, 5, 4.1)

		result, err := p.Calibrate(ctx)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 9, result.SampleCount)
		assert.InDelta(t, 4.1/((35+273.15)/30), result.CarnotEfficiency, 1e-9)
		assert.Equal(t, result.CarnotEfficiency, p.CarnotEfficiency())
		// identical samples mean the fit is exact
		assert.InDelta(t, 0, result.AverageError, 1e-9)
		assert.InDelta(t, (9.0/30+1)/2, result.Confidence, 1e-9)

		var persisted float64
		ok, err := store.GetJSON(ctx, s, "cop.carnot_efficiency", &persisted)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, result.CarnotEfficiency, persisted)

		// a fresh predictor restores the calibrated state
		p2 := NewPredictor(s)
		require.NoError(t, p2.Load(ctx))
		assert.Equal(t, result.CarnotEfficiency, p2.CarnotEfficiency())
		assert.Equal(t, 9, p2.PointCount())
	})
}
