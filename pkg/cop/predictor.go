package cop

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/heatpilot/heatpilot/pkg/types"
)

const (
	// MinCOP and MaxCOP bound every prediction the model emits.
	MinCOP = 1.0
	MaxCOP = 6.0

	// FallbackCOP is returned whenever the physical model cannot apply.
	FallbackCOP        = 2.5
	fallbackConfidence = 0.3

	// Carnot efficiency coefficient bounds. Real heat pumps land well
	// inside this window; implied efficiencies outside it are treated as
	// sensor outliers during calibration.
	MinCarnotEfficiency = 0.25
	MaxCarnotEfficiency = 0.60

	defaultCarnotEfficiency = 0.40
	uncalibratedConfidence  = 0.5

	// minCalibrationPoints gates a calibration run.
	minCalibrationPoints = 7

	// calibrationRetention is how long calibration points are kept.
	calibrationRetention = 30 * 24 * time.Hour

	keyCarnotEfficiency  = "cop.carnot_efficiency"
	keyCalibrationResult = "cop.calibration_result"
	keyCalibrationPoints = "cop.calibration_points"
)

// Predictor predicts heat-pump COP from the flow-temperature setpoint and
// the outdoor temperature using a Carnot-cycle model, and calibrates its
// efficiency coefficient from observed samples.
type Predictor struct {
	store store.Store

	mu               sync.Mutex
	carnotEfficiency float64
	confidence       float64
	points           []types.CalibrationPoint

	now func() time.Time
}

// NewPredictor creates a Predictor with the uncalibrated default
// coefficient. Call Load to restore persisted calibration state.
func NewPredictor(s store.Store) *Predictor {
	return &Predictor{
		store:            s,
		carnotEfficiency: defaultCarnotEfficiency,
		confidence:       uncalibratedConfidence,
		now:              time.Now,
	}
}

// Load restores the persisted efficiency coefficient, calibration result
// and calibration points from the settings store.
func (p *Predictor) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var eff float64
	ok, err := store.GetJSON(ctx, p.store, keyCarnotEfficiency, &eff)
	if err != nil {
		return fmt.Errorf("failed to load carnot efficiency: %w", err)
	}
	if ok && eff >= MinCarnotEfficiency && eff <= MaxCarnotEfficiency {
		p.carnotEfficiency = eff
	} else if ok {
		log.Ctx(ctx).WarnContext(ctx, "persisted carnot efficiency out of bounds, keeping default",
			slog.Float64("persisted", eff),
			slog.Float64("default", p.carnotEfficiency),
		)
	}

	var result types.CalibrationResult
	ok, err = store.GetJSON(ctx, p.store, keyCalibrationResult, &result)
	if err != nil {
		return fmt.Errorf("failed to load calibration result: %w", err)
	}
	if ok && result.Confidence > 0 {
		p.confidence = result.Confidence
	}

	var points []types.CalibrationPoint
	if _, err := store.GetJSON(ctx, p.store, keyCalibrationPoints, &points); err != nil {
		return fmt.Errorf("failed to load calibration points: %w", err)
	}
	p.points = points
	return nil
}

// CarnotEfficiency returns the live efficiency coefficient.
func (p *Predictor) CarnotEfficiency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.carnotEfficiency
}

// Predict evaluates the Carnot model for the given flow-temperature
// setpoint and outdoor temperature. Invalid inputs and non-positive
// temperature lifts yield the fallback prediction instead of an error.
func (p *Predictor) Predict(ctx context.Context, flowTempSetpoint, outdoorTemp float64) types.COPPrediction {
	now := p.now()

	if !isFinite(flowTempSetpoint) || !isFinite(outdoorTemp) {
		log.Ctx(ctx).WarnContext(ctx, "non-finite inputs for cop prediction",
			slog.Float64("flowTempSetpoint", flowTempSetpoint),
			slog.Float64("outdoorTemp", outdoorTemp),
		)
		return p.fallback(flowTempSetpoint, outdoorTemp, now)
	}

	lift := flowTempSetpoint - outdoorTemp
	if lift <= 0 {
		// Sink not hotter than source: physically invalid configuration.
		log.Ctx(ctx).WarnContext(ctx, "non-positive temperature lift, using fallback prediction",
			slog.Float64("temperatureLift", lift),
		)
		return p.fallback(flowTempSetpoint, outdoorTemp, now)
	}
	if lift < 5 {
		// The model is known to be unreliable at very small lifts but we
		// still return a computed value.
		log.Ctx(ctx).WarnContext(ctx, "temperature lift below 5K, prediction unreliable",
			slog.Float64("temperatureLift", lift),
		)
	}

	p.mu.Lock()
	efficiency := p.carnotEfficiency
	confidence := p.confidence
	p.mu.Unlock()

	carnotCOP := (flowTempSetpoint + 273.15) / lift
	predicted := clamp(efficiency*carnotCOP, MinCOP, MaxCOP)

	switch {
	case lift > 40:
		confidence *= 0.8
	case lift < 10:
		confidence *= 0.7
	}

	return types.COPPrediction{
		PredictedCOP:     predicted,
		CarnotCOP:        carnotCOP,
		CarnotEfficiency: efficiency,
		FlowTempSetpoint: flowTempSetpoint,
		OutdoorTemp:      outdoorTemp,
		TemperatureLift:  lift,
		Confidence:       clamp(confidence, 0, 1),
		Method:           types.PredictionMethodCarnot,
		Timestamp:        now,
	}
}

func (p *Predictor) fallback(flowTempSetpoint, outdoorTemp float64, now time.Time) types.COPPrediction {
	return types.COPPrediction{
		PredictedCOP:     FallbackCOP,
		FlowTempSetpoint: flowTempSetpoint,
		OutdoorTemp:      outdoorTemp,
		TemperatureLift:  flowTempSetpoint - outdoorTemp,
		Confidence:       fallbackConfidence,
		Method:           types.PredictionMethodHistoricalFallback,
		Timestamp:        now,
	}
}

// AddCalibrationPoint records an observed (setpoint, outdoor temp, COP)
// sample. Invalid samples are logged and dropped. Points older than the
// retention window are pruned on every append and the set is persisted.
func (p *Predictor) AddCalibrationPoint(ctx context.Context, flowSetpoint, outdoorTemp, actualCOP float64) {
	if !isFinite(flowSetpoint) || !isFinite(outdoorTemp) || !isFinite(actualCOP) {
		log.Ctx(ctx).WarnContext(ctx, "rejecting non-finite calibration point",
			slog.Float64("flowSetpoint", flowSetpoint),
			slog.Float64("outdoorTemp", outdoorTemp),
			slog.Float64("actualCOP", actualCOP),
		)
		return
	}
	if actualCOP < MinCOP || actualCOP > MaxCOP {
		log.Ctx(ctx).WarnContext(ctx, "rejecting calibration point with implausible COP",
			slog.Float64("actualCOP", actualCOP),
		)
		return
	}

	now := p.now()
	cutoff := now.Add(-calibrationRetention)

	p.mu.Lock()
	kept := p.points[:0]
	for _, pt := range p.points {
		if pt.Timestamp.After(cutoff) {
			kept = append(kept, pt)
		}
	}
	p.points = append(kept, types.CalibrationPoint{
		FlowSetpoint: flowSetpoint,
		OutdoorTemp:  outdoorTemp,
		ActualCOP:    actualCOP,
		Timestamp:    now,
	})
	points := make([]types.CalibrationPoint, len(p.points))
	copy(points, p.points)
	p.mu.Unlock()

	if err := p.store.Set(ctx, keyCalibrationPoints, points); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist calibration points", slog.Any("error", err))
	}
}

// PointCount returns the number of retained calibration points.
func (p *Predictor) PointCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.points)
}

// Calibrate back-solves the Carnot efficiency from the retained points.
// It returns nil (and leaves the live coefficient untouched) when fewer
// than minCalibrationPoints valid points exist or every implied efficiency
// is filtered as an outlier. On success the live coefficient is
// overwritten and both the coefficient and the result are persisted.
func (p *Predictor) Calibrate(ctx context.Context) (*types.CalibrationResult, error) {
	p.mu.Lock()
	points := make([]types.CalibrationPoint, len(p.points))
	copy(points, p.points)
	p.mu.Unlock()

	type sample struct {
		implied   float64
		carnotCOP float64
		actualCOP float64
	}
	var valid []sample
	for _, pt := range points {
		lift := pt.FlowSetpoint - pt.OutdoorTemp
		if lift <= 0 {
			continue
		}
		carnotCOP := (pt.FlowSetpoint + 273.15) / lift
		valid = append(valid, sample{
			implied:   pt.ActualCOP / carnotCOP,
			carnotCOP: carnotCOP,
			actualCOP: pt.ActualCOP,
		})
	}

	if len(valid) < minCalibrationPoints {
		log.Ctx(ctx).InfoContext(ctx, "not enough calibration points",
			slog.Int("valid", len(valid)),
			slog.Int("required", minCalibrationPoints),
		)
		return nil, nil
	}

	var surviving []sample
	for _, s := range valid {
		if s.implied < MinCarnotEfficiency || s.implied > MaxCarnotEfficiency {
			continue
		}
		surviving = append(surviving, s)
	}
	if len(surviving) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "all calibration points filtered as outliers",
			slog.Int("valid", len(valid)),
		)
		return nil, nil
	}

	var sum float64
	for _, s := range surviving {
		sum += s.implied
	}
	efficiency := clamp(sum/float64(len(surviving)), MinCarnotEfficiency, MaxCarnotEfficiency)

	var errSum float64
	for _, s := range surviving {
		predicted := efficiency * s.carnotCOP
		errSum += math.Abs(predicted-s.actualCOP) / s.actualCOP * 100
	}
	avgErrorPct := errSum / float64(len(surviving))

	sizeTerm := math.Min(1, float64(len(surviving))/30)
	errTerm := math.Max(0, 1-avgErrorPct/100)
	confidence := (sizeTerm + errTerm) / 2

	result := &types.CalibrationResult{
		CarnotEfficiency: efficiency,
		SampleCount:      len(surviving),
		AverageError:     avgErrorPct,
		LastCalibration:  p.now(),
		Confidence:       confidence,
	}

	p.mu.Lock()
	p.carnotEfficiency = efficiency
	p.confidence = confidence
	p.mu.Unlock()

	log.Ctx(ctx).InfoContext(ctx, "cop calibration complete",
		slog.Float64("carnotEfficiency", efficiency),
		slog.Int("sampleCount", result.SampleCount),
		slog.Float64("averageErrorPct", avgErrorPct),
		slog.Float64("confidence", confidence),
	)

	if err := p.store.Set(ctx, keyCarnotEfficiency, efficiency); err != nil {
		return result, fmt.Errorf("failed to persist carnot efficiency: %w", err)
	}
	if err := p.store.Set(ctx, keyCalibrationResult, result); err != nil {
		return result, fmt.Errorf("failed to persist calibration result: %w", err)
	}
	return result, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
