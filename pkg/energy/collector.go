package energy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/heatpilot/heatpilot/pkg/cop"
	"github.com/heatpilot/heatpilot/pkg/hvac"
	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/types"
)

// assumedFallbackCOP is used when the cloud reports produced energy but no
// consumption split. Consumption is estimated as produced divided by 3, a
// conservative figure for a modern air-to-water unit.
const assumedFallbackCOP = 3.0

// Collector derives per-cycle optimization metrics from the vendor cloud,
// degrading from the enhanced telemetry endpoint down to plain energy
// totals rather than failing the cycle.
type Collector struct {
	client     hvac.Client
	normalizer *cop.Normalizer
	now        func() time.Time
}

// NewCollector returns a Collector reading from client and feeding
// observed COP values into normalizer.
func NewCollector(client hvac.Client, normalizer *cop.Normalizer) *Collector {
	return &Collector{
		client:     client,
		normalizer: normalizer,
		now:        time.Now,
	}
}

// RealMetrics fetches the current efficiency telemetry and classifies the
// season and optimization focus. When the enhanced endpoint fails it falls
// back to daily energy totals with a reduced-accuracy COP derivation. An
// error is returned only when both paths fail.
func (c *Collector) RealMetrics(ctx context.Context) (types.OptimizationMetrics, error) {
	data, err := c.client.EnhancedCOPData(ctx)
	if err == nil {
		return c.fromEnhanced(ctx, data), nil
	}
	log.Ctx(ctx).WarnContext(ctx, "enhanced cop data unavailable, falling back to energy totals",
		slog.Any("error", err))

	totals, terr := c.client.DailyEnergyTotals(ctx, 1)
	if terr != nil || len(totals) == 0 {
		log.Ctx(ctx).ErrorContext(ctx, "energy totals unavailable", slog.Any("error", terr))
		if terr != nil {
			return types.OptimizationMetrics{}, terr
		}
		return types.OptimizationMetrics{}, err
	}
	return c.fromTotals(ctx, totals[len(totals)-1]), nil
}

func (c *Collector) fromEnhanced(ctx context.Context, data types.EnhancedCOPData) types.OptimizationMetrics {
	heating := c.copValue(data.Current.HeatingCOP, data.Daily.HeatingProducedKWH, data.Daily.HeatingConsumedKWH, data.Historical.HeatingCOP)
	hotWater := c.copValue(data.Current.HotWaterCOP, data.Daily.HotWaterProducedKWH, data.Daily.HotWaterConsumedKWH, data.Historical.HotWaterCOP)

	season := DetermineSeason(data.Daily.HeatingConsumedKWH, data.Daily.HotWaterConsumedKWH)
	metrics := types.OptimizationMetrics{
		RealHeatingCOP:            heating,
		RealHotWaterCOP:           hotWater,
		DailyEnergyConsumptionKWH: data.Daily.HeatingConsumedKWH + data.Daily.HotWaterConsumedKWH,
		HeatingEfficiency:         ratio(data.Daily.HeatingProducedKWH, data.Daily.HeatingConsumedKWH),
		HotWaterEfficiency:        ratio(data.Daily.HotWaterProducedKWH, data.Daily.HotWaterConsumedKWH),
		SeasonalMode:              season,
		OptimizationFocus:         DetermineOptimizationFocus(data.Trends, season),
		Timestamp:                 c.timestamp(data.Daily.Timestamp),
	}
	log.Ctx(ctx).DebugContext(ctx, "derived optimization metrics",
		slog.Float64("heatingCOP", heating.Value),
		slog.String("heatingSource", string(heating.Source)),
		slog.Float64("hotWaterCOP", hotWater.Value),
		slog.String("hotWaterSource", string(hotWater.Source)),
		slog.String("season", string(season)),
	)
	return metrics
}

// copValue prefers the live reading, then a value derived from the daily
// produced/consumed split, then the historical average, then the fixed
// fallback. Positive observations widen the normalizer's adaptive range.
func (c *Collector) copValue(live, producedKWH, consumedKWH, historical float64) types.COPValue {
	v := types.COPValue{
		Value:      cop.FallbackCOP,
		Confidence: 0.3,
		Source:     types.COPSourceFallback,
	}
	switch {
	case isPositive(live):
		v = types.COPValue{Value: live, Confidence: 0.9, Source: types.COPSourceLive}
	case isPositive(producedKWH) && isPositive(consumedKWH):
		v = types.COPValue{Value: producedKWH / consumedKWH, Confidence: 0.7, Source: types.COPSourceDerived}
	case isPositive(historical):
		v = types.COPValue{Value: historical, Confidence: 0.5, Source: types.COPSourceDerived}
	}
	if v.Source != types.COPSourceFallback {
		c.normalizer.UpdateRange(v.Value)
	}
	return v
}

// fromTotals is the degraded path: only the daily consumed/produced totals
// are available, without live readings or trends.
func (c *Collector) fromTotals(ctx context.Context, totals types.DailyEnergyTotals) types.OptimizationMetrics {
	heating := c.totalsCOPValue(totals.HeatingProducedKWH, totals.HeatingConsumedKWH)
	hotWater := c.totalsCOPValue(totals.HotWaterProducedKWH, totals.HotWaterConsumedKWH)

	heatingConsumed := totals.HeatingConsumedKWH
	if !isPositive(heatingConsumed) && isPositive(totals.HeatingProducedKWH) {
		heatingConsumed = totals.HeatingProducedKWH / assumedFallbackCOP
	}
	hotWaterConsumed := totals.HotWaterConsumedKWH
	if !isPositive(hotWaterConsumed) && isPositive(totals.HotWaterProducedKWH) {
		hotWaterConsumed = totals.HotWaterProducedKWH / assumedFallbackCOP
	}

	season := DetermineSeason(heatingConsumed, hotWaterConsumed)
	metrics := types.OptimizationMetrics{
		RealHeatingCOP:            heating,
		RealHotWaterCOP:           hotWater,
		DailyEnergyConsumptionKWH: heatingConsumed + hotWaterConsumed,
		HeatingEfficiency:         ratio(totals.HeatingProducedKWH, heatingConsumed),
		HotWaterEfficiency:        ratio(totals.HotWaterProducedKWH, hotWaterConsumed),
		SeasonalMode:              season,
		// without trend data both circuits stay in scope
		OptimizationFocus: DetermineOptimizationFocus(types.COPTrends{
			Heating:  types.COPTrendStable,
			HotWater: types.COPTrendStable,
		}, season),
		Timestamp: c.timestamp(totals.Timestamp),
	}
	log.Ctx(ctx).InfoContext(ctx, "using degraded energy metrics",
		slog.Float64("heatingCOP", heating.Value),
		slog.Float64("hotWaterCOP", hotWater.Value),
		slog.String("season", string(season)),
	)
	return metrics
}

func (c *Collector) totalsCOPValue(producedKWH, consumedKWH float64) types.COPValue {
	switch {
	case isPositive(producedKWH) && isPositive(consumedKWH):
		v := types.COPValue{Value: producedKWH / consumedKWH, Confidence: 0.5, Source: types.COPSourceDerived}
		c.normalizer.UpdateRange(v.Value)
		return v
	case isPositive(producedKWH):
		// consumption is estimated, so the COP is the assumption itself
		return types.COPValue{Value: assumedFallbackCOP, Confidence: 0.3, Source: types.COPSourceFallback}
	default:
		return types.COPValue{Value: cop.FallbackCOP, Confidence: 0.3, Source: types.COPSourceFallback}
	}
}

func (c *Collector) timestamp(reported time.Time) time.Time {
	if reported.IsZero() {
		return c.now()
	}
	return reported
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func ratio(num, den float64) float64 {
	if !isPositive(den) || !isPositive(num) {
		return 0
	}
	return num / den
}
