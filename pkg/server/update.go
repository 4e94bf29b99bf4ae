package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/heatpilot/heatpilot/pkg/types"
)

const usagePatternKey = "hotwater.usage_pattern"

// cycleResult summarizes one optimization cycle for API responses and the
// status endpoint.
type cycleResult struct {
	Status       string                     `json:"status"`
	Action       types.HotWaterAction       `json:"action"`
	Schedule     *types.HotWaterSchedule    `json:"schedule,omitempty"`
	Metrics      *types.OptimizationMetrics `json:"metrics,omitempty"`
	Price        *types.Price               `json:"price,omitempty"`
	TankSetpoint *float64                   `json:"tankSetpoint,omitempty"`
	DryRun       bool                       `json:"dryRun,omitempty"`
	LockedOut    bool                       `json:"lockedOut,omitempty"`
	Timestamp    time.Time                  `json:"timestamp"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.runCycle(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "optimization cycle failed", slog.Any("error", err))
		writeJSONError(w, "optimization cycle failed", http.StatusInternalServerError)
		return
	}

	// We return 200 OK even for paused/degraded cycles so the scheduler
	// doesn't think it failed.
	writeJSON(w, result)
}

// runCycle executes one full optimization cycle. Upstream failures degrade
// the cycle rather than aborting it; only configuration problems (settings
// load, constraint validation) return an error.
func (s *Server) runCycle(ctx context.Context) (*cycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	now := s.now()
	result := &cycleResult{Status: "success", Timestamp: now}

	// 1. Settings
	settings, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		return nil, err
	}
	if settings.Pause {
		log.Ctx(ctx).InfoContext(ctx, "cycle: paused")
		result.Status = "paused"
		result.Action = types.HotWaterAction{Action: types.HotWaterMaintain, Reason: "paused"}
		s.lastCycle = result
		return result, nil
	}

	if err := s.hvac.ApplySettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to apply settings to hvac client: %w", err)
	}
	if err := s.manager.ApplySettings(settings); err != nil {
		return nil, fmt.Errorf("invalid setpoint constraints: %w", err)
	}

	provider, err := s.providers.Provider(settings.PriceProvider)
	if err != nil {
		return nil, err
	}
	if err := provider.ApplySettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to apply settings to price provider: %w", err)
	}

	log.Ctx(ctx).DebugContext(ctx, "cycle: settings applied")

	// 2. Energy metrics (degrades internally, nil only if all paths fail)
	var metrics *types.OptimizationMetrics
	if m, err := s.collector.RealMetrics(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "cycle: no energy metrics available", slog.Any("error", err))
	} else {
		metrics = &m
		result.Metrics = metrics
	}

	// 3. Price context
	var currentPrice types.Price
	if p, err := provider.CurrentPrice(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "cycle: failed to get current price", slog.Any("error", err))
	} else {
		currentPrice = p
		result.Price = &p
	}
	forecast, err := provider.Forecast(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "cycle: failed to get price forecast", slog.Any("error", err))
	}

	// 4. Hot water decision, pattern-based when a learned pattern exists
	var pattern types.UsagePattern
	havePattern, err := store.GetJSON(ctx, s.store, usagePatternKey, &pattern)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "cycle: failed to load usage pattern", slog.Any("error", err))
		havePattern = false
	}

	var savings float64
	if havePattern && len(pattern.PeakHours) > 0 {
		schedule := s.optimizer.DecideByPattern(ctx, pattern, metrics, currentPrice, forecast, settings)
		result.Schedule = &schedule
		result.Action = schedule.Action
		savings = schedule.EstimatedSavings
	} else {
		result.Action = s.optimizer.Decide(ctx, metrics, currentPrice, forecast, settings)
	}

	log.Ctx(ctx).InfoContext(ctx, "cycle: decision made",
		slog.String("action", string(result.Action.Action)),
		slog.String("reason", result.Action.Reason),
		slog.Float64("price", currentPrice.PerKWH),
	)

	// 5. Issue the tank setpoint through constraints and lockout
	s.issueTankSetpoint(ctx, result, settings, now)

	// 6. Record a calibration point when we have a live heating COP
	s.recordCalibrationPoint(ctx, metrics, now)

	// 7. Accounting
	s.recordAccounting(ctx, result, settings, metrics, currentPrice, savings)

	s.lastCycle = result
	return result, nil
}

// issueTankSetpoint maps the action onto a tank setpoint and issues it
// unless locked out or in dry-run mode. Maintain leaves the tank alone.
func (s *Server) issueTankSetpoint(ctx context.Context, result *cycleResult, settings types.Settings, now time.Time) {
	var target float64
	switch result.Action.Action {
	case types.HotWaterHeatNow:
		target = settings.Tank.MaxTemp
	case types.HotWaterDelay:
		target = settings.Tank.MinTemp
	default:
		return
	}
	target = s.manager.ApplyTankConstraints(target)
	result.TankSetpoint = &target

	if s.tracker.IsTankLockedOut(settings.MinSetpointChangeMinutes) {
		remaining := s.tracker.TankLockoutRemaining(settings.MinSetpointChangeMinutes)
		log.Ctx(ctx).InfoContext(ctx, "cycle: tank setpoint locked out",
			slog.Duration("remaining", remaining),
		)
		result.LockedOut = true
		return
	}

	if settings.DryRun {
		log.Ctx(ctx).InfoContext(ctx, "cycle: dry run, not issuing tank setpoint",
			slog.Float64("target", target),
		)
		result.DryRun = true
		return
	}

	if err := s.hvac.SetTankSetpoint(ctx, target); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "cycle: failed to set tank setpoint", slog.Any("error", err))
		result.Action.Reason += fmt.Sprintf(" (FAILED: %v)", err)
		return
	}

	s.tracker.RecordTankChange(target, now)
	if err := s.tracker.Save(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "cycle: failed to persist setpoint state", slog.Any("error", err))
	}
}

// recordCalibrationPoint samples the current flow/outdoor temperatures
// against the live heating COP for the weekly calibration.
func (s *Server) recordCalibrationPoint(ctx context.Context, metrics *types.OptimizationMetrics, now time.Time) {
	if metrics == nil || metrics.RealHeatingCOP.Source != types.COPSourceLive {
		return
	}
	flow, outdoor, err := s.hvac.Temperatures(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "cycle: failed to get temperatures", slog.Any("error", err))
		return
	}
	s.predictor.AddCalibrationPoint(ctx, flow, outdoor, metrics.RealHeatingCOP.Value)
}

// recordAccounting updates the savings/cost bookkeeping. The estimated
// cost impact of a heat_now action is one hour's worth of the configured
// daily hot water energy at the current price.
func (s *Server) recordAccounting(ctx context.Context, result *cycleResult, settings types.Settings, metrics *types.OptimizationMetrics, currentPrice types.Price, savings float64) {
	var costImpact float64
	if result.Action.Action == types.HotWaterHeatNow && !result.LockedOut && !result.DryRun {
		costImpact = settings.EstimatedDailyHotWaterKWH / 24 * currentPrice.PerKWH
	}

	dataTS := currentPrice.TSStart
	if dataTS.IsZero() && metrics != nil {
		dataTS = metrics.Timestamp
	}

	applied, err := s.accounting.Update(ctx, savings, costImpact, dataTS, settings.Currency)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "cycle: failed to update accounting", slog.Any("error", err))
		return
	}
	if !applied {
		log.Ctx(ctx).DebugContext(ctx, "cycle: accounting update skipped")
	}
}
