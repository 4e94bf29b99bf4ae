package hotwater

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/heatpilot/heatpilot/pkg/cop"
	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/pricing"
	"github.com/heatpilot/heatpilot/pkg/types"
)

const (
	// delayCandidates is how many of the cheapest upcoming hours are
	// considered when delaying; the first is the delay target.
	delayCandidates = 4

	// prePeakWindowHours is how far before a learned demand peak the
	// pattern scheduler searches for a cheap slot.
	prePeakWindowHours = 4

	// emergencyPreheatHours triggers an immediate heat when a demand peak
	// is this close and nothing is scheduled.
	emergencyPreheatHours = 2

	// minOpportunisticCOP gates opportunistic cheap-price heating in the
	// pattern scheduler.
	minOpportunisticCOP = 2.5
)

// Optimizer decides when the hot water tank should heat. It is stateless:
// every call recomputes the decision from the inputs.
type Optimizer struct {
	normalizer *cop.Normalizer
	now        func() time.Time
}

// NewOptimizer returns an Optimizer using normalizer for efficiency
// scoring.
func NewOptimizer(normalizer *cop.Normalizer) *Optimizer {
	return &Optimizer{
		normalizer: normalizer,
		now:        time.Now,
	}
}

// Decide returns the hot water action for the current cycle based on the
// hot-water COP band and where the current price sits in the next-24h
// distribution.
func (o *Optimizer) Decide(ctx context.Context, metrics *types.OptimizationMetrics, current types.Price, forecast []types.Price, settings types.Settings) types.HotWaterAction {
	if metrics == nil {
		return types.HotWaterAction{
			Action: types.HotWaterMaintain,
			Reason: "no real data",
		}
	}
	// A zero-value price means the feed failed; without knowing where the
	// current price sits we must not heat. Negative prices are legitimate,
	// so the interval is the sentinel, not the value.
	if current.TSStart.IsZero() {
		return types.HotWaterAction{
			Action: types.HotWaterMaintain,
			Reason: "no current price",
		}
	}

	efficiency := o.normalizer.RoughNormalize(metrics.RealHotWaterCOP.Value, settings.AssumedMaxHotWaterCOP)

	ref := pricing.ReferenceTime(current, o.now())
	percentile := pricing.PercentileOf(forecast, current.PerKWH, ref)
	cheapest := pricing.CheapestUpcoming(forecast, ref, delayCandidates)

	cheap := settings.CheapPercentile
	action := o.decideBand(efficiency, percentile, cheap, cheapest, settings)

	log.Ctx(ctx).DebugContext(ctx, "hot water decision",
		slog.String("action", string(action.Action)),
		slog.String("reason", action.Reason),
		slog.Float64("efficiency", efficiency),
		slog.Float64("percentile", percentile),
		slog.Float64("cop", metrics.RealHotWaterCOP.Value),
		slog.String("copSource", string(metrics.RealHotWaterCOP.Source)),
	)
	return action
}

func (o *Optimizer) decideBand(efficiency, percentile, cheap float64, cheapest []types.Price, settings types.Settings) types.HotWaterAction {
	delay := func(reason string) types.HotWaterAction {
		a := types.HotWaterAction{Action: types.HotWaterDelay, Reason: reason}
		if len(cheapest) > 0 {
			a.ScheduledTime = cheapest[0].TSStart
		}
		return a
	}

	switch {
	case efficiency >= settings.COPBandExcellent:
		if percentile <= cheap*1.6 {
			return types.HotWaterAction{
				Action: types.HotWaterHeatNow,
				Reason: fmt.Sprintf("excellent efficiency and price in cheapest %.0f%%", cheap*1.6*100),
			}
		}
		if percentile >= 1-cheap*0.8 {
			return delay("excellent efficiency but price near daily peak")
		}
	case efficiency >= settings.COPBandGood:
		if percentile <= 0.3 {
			return types.HotWaterAction{
				Action: types.HotWaterHeatNow,
				Reason: "good efficiency and price in cheapest 30%",
			}
		}
	case efficiency >= settings.COPBandPoor:
		if percentile <= 0.15 {
			return types.HotWaterAction{
				Action: types.HotWaterHeatNow,
				Reason: "poor efficiency, heating only at the cheapest prices",
			}
		}
		return delay("poor efficiency, waiting for cheapest hour")
	case efficiency > 0:
		if percentile <= 0.1 {
			return types.HotWaterAction{
				Action: types.HotWaterHeatNow,
				Reason: "critical efficiency, heating at rock-bottom price only",
			}
		}
		return delay("critical efficiency, waiting for cheapest hour")
	}

	return types.HotWaterAction{
		Action: types.HotWaterMaintain,
		Reason: "no favorable price window",
	}
}

// schedulePoint pairs the exported point with the price used to cost it.
type schedulePoint struct {
	types.SchedulePoint
	perKWH float64
	start  time.Time
}

// DecideByPattern builds a 24-hour heating schedule from the learned usage
// pattern: for every peak demand hour it books the cheapest slot in the
// preceding window, then derives the action for the current hour and an
// estimated savings versus unscheduled on-demand heating.
func (o *Optimizer) DecideByPattern(ctx context.Context, pattern types.UsagePattern, metrics *types.OptimizationMetrics, current types.Price, forecast []types.Price, settings types.Settings) types.HotWaterSchedule {
	ref := pricing.ReferenceTime(current, o.now())
	upcoming := pricing.Upcoming(forecast, ref)

	copVal := 0.0
	if metrics != nil {
		copVal = metrics.RealHotWaterCOP.Value
	}

	points := o.buildPoints(pattern, copVal, ref, forecast, upcoming)

	schedule := types.HotWaterSchedule{
		Action: o.currentPatternAction(ctx, points, pattern, metrics, current, upcoming, ref, settings),
	}
	for _, pt := range points {
		schedule.Points = append(schedule.Points, pt.SchedulePoint)
	}
	schedule.EstimatedSavings, schedule.SavingsBasis = estimateSavings(points, pattern, upcoming, settings)

	log.Ctx(ctx).DebugContext(ctx, "hot water pattern schedule",
		slog.Int("points", len(schedule.Points)),
		slog.String("action", string(schedule.Action.Action)),
		slog.Float64("estimatedSavings", schedule.EstimatedSavings),
	)
	return schedule
}

func (o *Optimizer) buildPoints(pattern types.UsagePattern, copVal float64, ref time.Time, forecast, upcoming []types.Price) []schedulePoint {
	var points []schedulePoint
	for _, peak := range pattern.PeakHours {
		if peak < 0 || peak > 23 {
			continue
		}
		peakTime := nextOccurrence(peak, ref)

		var best *types.Price
		for back := 1; back <= prePeakWindowHours; back++ {
			slot := peakTime.Add(-time.Duration(back) * time.Hour)
			if !slot.After(ref) {
				continue
			}
			p, ok := priceAt(upcoming, slot)
			if !ok {
				continue
			}
			if best == nil || p.PerKWH < best.PerKWH {
				best = &p
			}
		}
		if best == nil {
			continue
		}

		points = append(points, schedulePoint{
			SchedulePoint: types.SchedulePoint{
				Hour:            best.TSStart.In(ref.Location()).Hour(),
				Reason:          fmt.Sprintf("cheapest slot before %02d:00 demand peak", peak),
				Priority:        pattern.HourlyDemandKWH[peak],
				COP:             copVal,
				PricePercentile: pricing.PercentileOf(forecast, best.PerKWH, ref),
			},
			perKWH: best.PerKWH,
			start:  best.TSStart,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Priority > points[j].Priority
	})
	return points
}

func (o *Optimizer) currentPatternAction(ctx context.Context, points []schedulePoint, pattern types.UsagePattern, metrics *types.OptimizationMetrics, current types.Price, upcoming []types.Price, ref time.Time, settings types.Settings) types.HotWaterAction {
	if metrics == nil {
		return types.HotWaterAction{
			Action: types.HotWaterMaintain,
			Reason: "no real data",
		}
	}
	copVal := metrics.RealHotWaterCOP.Value

	currentHour := ref.Hour()
	for _, pt := range points {
		if pt.Hour == currentHour {
			return types.HotWaterAction{
				Action: types.HotWaterHeatNow,
				Reason: pt.Reason,
			}
		}
	}

	if copVal > 0 {
		for _, peak := range pattern.PeakHours {
			if peak < 0 || peak > 23 {
				continue
			}
			until := nextOccurrence(peak, ref).Sub(ref)
			if until <= emergencyPreheatHours*time.Hour {
				return types.HotWaterAction{
					Action: types.HotWaterHeatNow,
					Reason: fmt.Sprintf("demand peak at %02d:00 is %d minutes away", peak, int(until.Minutes())),
				}
			}
		}
	}

	if avg := pricing.Average(upcoming); avg > 0 && copVal > minOpportunisticCOP && !current.TSStart.IsZero() {
		if current.PerKWH <= avg*(1-settings.CheapPercentile) {
			return types.HotWaterAction{
				Action: types.HotWaterHeatNow,
				Reason: "price well below 24h average",
			}
		}
	}

	return types.HotWaterAction{
		Action: types.HotWaterMaintain,
		Reason: "no scheduled slot this hour",
	}
}

// estimateSavings allocates the estimated daily hot-water energy across
// the schedule points proportional to priority and compares the scheduled
// cost against heating the same energy at the 24h average price. Zero is
// returned with an explicit basis when no estimate can be made.
func estimateSavings(points []schedulePoint, pattern types.UsagePattern, upcoming []types.Price, settings types.Settings) (float64, string) {
	dailyKWH := pattern.EstimatedDailyKWH
	if dailyKWH <= 0 {
		dailyKWH = settings.EstimatedDailyHotWaterKWH
	}
	if dailyKWH <= 0 {
		return 0, "no daily energy estimate"
	}

	var totalPriority float64
	for _, pt := range points {
		totalPriority += pt.Priority
	}
	if totalPriority <= 0 {
		return 0, "no demand weights in usage pattern"
	}

	avg := pricing.Average(upcoming)
	if avg <= 0 {
		return 0, "no upcoming prices"
	}

	var scheduledCost float64
	for _, pt := range points {
		scheduledCost += pt.Priority / totalPriority * dailyKWH * pt.perKWH
	}
	onDemandCost := dailyKWH * avg

	savings := onDemandCost - scheduledCost
	if savings < 0 {
		savings = 0
	}
	return savings, "scheduled slots versus 24h average price"
}

// nextOccurrence returns the next time the given hour of day starts,
// strictly after ref's current hour start when the hour already passed.
func nextOccurrence(hour int, ref time.Time) time.Time {
	t := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, 0, 0, 0, ref.Location())
	if !t.After(ref) {
		t = t.Add(24 * time.Hour)
	}
	return t
}

func priceAt(series []types.Price, t time.Time) (types.Price, bool) {
	for _, p := range series {
		if p.Contains(t) {
			return p, true
		}
	}
	return types.Price{}, false
}
