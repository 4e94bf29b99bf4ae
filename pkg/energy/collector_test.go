package energy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heatpilot/heatpilot/pkg/cop"
	"github.com/heatpilot/heatpilot/pkg/hvac/hvacmock"
	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealMetricsEnhanced(t *testing.T) {
	ctx := context.Background()
	client := &hvacmock.Client{}
	norm := cop.NewNormalizer()
	c := NewCollector(client, norm)

	reported := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	client.On("EnhancedCOPData", ctx).Return(types.EnhancedCOPData{
		Current: types.COPReading{HeatingCOP: 3.4, HotWaterCOP: 2.6},
		Daily: types.DailyEnergyTotals{
			HeatingConsumedKWH: 8, HeatingProducedKWH: 28,
			HotWaterConsumedKWH: 2, HotWaterProducedKWH: 5,
			Timestamp: reported,
		},
		Trends: types.COPTrends{Heating: types.COPTrendStable, HotWater: types.COPTrendStable},
	}, nil).Once()

	m, err := c.RealMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.COPValue{Value: 3.4, Confidence: 0.9, Source: types.COPSourceLive}, m.RealHeatingCOP)
	assert.Equal(t, types.COPValue{Value: 2.6, Confidence: 0.9, Source: types.COPSourceLive}, m.RealHotWaterCOP)
	assert.Equal(t, 10.0, m.DailyEnergyConsumptionKWH)
	assert.Equal(t, 3.5, m.HeatingEfficiency)
	assert.Equal(t, 2.5, m.HotWaterEfficiency)
	// 8 > 2*2 so this is a winter day
	assert.Equal(t, types.SeasonWinter, m.SeasonalMode)
	assert.Equal(t, types.FocusHeating, m.OptimizationFocus)
	assert.Equal(t, reported, m.Timestamp)

	// both live values widened the adaptive range
	lo, hi, _ := norm.Range()
	assert.Equal(t, 2.6, lo)
	assert.Equal(t, 3.4, hi)
	client.AssertExpectations(t)
}

func TestRealMetricsDerivedFromDaily(t *testing.T) {
	ctx := context.Background()
	client := &hvacmock.Client{}
	c := NewCollector(client, cop.NewNormalizer())

	// live readings are zero mid-cycle, the daily split still works
	client.On("EnhancedCOPData", ctx).Return(types.EnhancedCOPData{
		Daily: types.DailyEnergyTotals{
			HeatingConsumedKWH: 10, HeatingProducedKWH: 30,
			HotWaterConsumedKWH: 0, HotWaterProducedKWH: 0,
		},
		Historical: types.COPReading{HotWaterCOP: 2.2},
	}, nil).Once()

	m, err := c.RealMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.COPSourceDerived, m.RealHeatingCOP.Source)
	assert.Equal(t, 3.0, m.RealHeatingCOP.Value)
	// no hot water data today, historical average steps in
	assert.Equal(t, types.COPSourceDerived, m.RealHotWaterCOP.Source)
	assert.Equal(t, 2.2, m.RealHotWaterCOP.Value)
	assert.False(t, m.Timestamp.IsZero())
}

func TestRealMetricsFallsBackToTotals(t *testing.T) {
	ctx := context.Background()
	client := &hvacmock.Client{}
	norm := cop.NewNormalizer()
	c := NewCollector(client, norm)

	client.On("EnhancedCOPData", ctx).Return(types.EnhancedCOPData{}, errors.New("503")).Once()
	client.On("DailyEnergyTotals", ctx, 1).Return([]types.DailyEnergyTotals{{
		HeatingConsumedKWH: 6, HeatingProducedKWH: 15,
		HotWaterConsumedKWH: 3, HotWaterProducedKWH: 6,
	}}, nil).Once()

	m, err := c.RealMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.COPValue{Value: 2.5, Confidence: 0.5, Source: types.COPSourceDerived}, m.RealHeatingCOP)
	assert.Equal(t, types.COPValue{Value: 2.0, Confidence: 0.5, Source: types.COPSourceDerived}, m.RealHotWaterCOP)
	assert.Equal(t, 9.0, m.DailyEnergyConsumptionKWH)
	assert.Equal(t, types.SeasonTransition, m.SeasonalMode)
	assert.Equal(t, types.FocusBoth, m.OptimizationFocus)
	client.AssertExpectations(t)
}

func TestRealMetricsEstimatesConsumption(t *testing.T) {
	ctx := context.Background()
	client := &hvacmock.Client{}
	c := NewCollector(client, cop.NewNormalizer())

	// some firmwares only report produced heat
	client.On("EnhancedCOPData", ctx).Return(types.EnhancedCOPData{}, errors.New("503")).Once()
	client.On("DailyEnergyTotals", ctx, 1).Return([]types.DailyEnergyTotals{{
		HeatingProducedKWH: 9,
	}}, nil).Once()

	m, err := c.RealMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.COPSourceFallback, m.RealHeatingCOP.Source)
	assert.Equal(t, 3.0, m.RealHeatingCOP.Value)
	// consumption estimated as produced over the assumed COP
	assert.Equal(t, 3.0, m.DailyEnergyConsumptionKWH)
	assert.Equal(t, types.COPSourceFallback, m.RealHotWaterCOP.Source)
	assert.Equal(t, 2.5, m.RealHotWaterCOP.Value)
}

func TestRealMetricsBothPathsFail(t *testing.T) {
	ctx := context.Background()
	client := &hvacmock.Client{}
	c := NewCollector(client, cop.NewNormalizer())

	client.On("EnhancedCOPData", ctx).Return(types.EnhancedCOPData{}, errors.New("503")).Once()
	client.On("DailyEnergyTotals", ctx, 1).Return(nil, errors.New("503")).Once()

	_, err := c.RealMetrics(ctx)
	require.Error(t, err)
	client.AssertExpectations(t)
}
