package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/pricing"
	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/heatpilot/heatpilot/pkg/types"
)

const (
	historyKey = "accounting.savings_history"
	metricsKey = "accounting.metrics"

	// maxHistoryDays caps the rolling daily-savings history.
	maxHistoryDays = 30
)

// Service accumulates realized cost impact and savings per cycle. Daily
// savings are stored as integer minor units, at most one entry per
// calendar date, capped at the most recent 30 dates.
type Service struct {
	store store.Store

	mu      sync.Mutex
	history []types.SavingsEntry
	metrics types.SavingsMetrics
	now     func() time.Time
}

// NewService returns a Service persisting through s.
func NewService(s store.Store) *Service {
	return &Service{
		store: s,
		now:   time.Now,
	}
}

// Load restores the savings history and running metrics.
func (s *Service) Load(ctx context.Context) error {
	var history []types.SavingsEntry
	if _, err := store.GetJSON(ctx, s.store, historyKey, &history); err != nil {
		return fmt.Errorf("failed to load savings history: %w", err)
	}
	var metrics types.SavingsMetrics
	if _, err := store.GetJSON(ctx, s.store, metricsKey, &metrics); err != nil {
		return fmt.Errorf("failed to load savings metrics: %w", err)
	}

	s.mu.Lock()
	s.history = capHistory(history)
	s.metrics = metrics
	s.mu.Unlock()
	return nil
}

// Update records the cycle's estimated savings and cost impact. savings is
// a whole-day estimate, so it replaces the current date's history entry
// rather than accumulating into it; costImpact is a per-cycle increment.
// The update is skipped entirely (returning false) when the underlying
// data is stale or the inputs are not finite numbers.
func (s *Service) Update(ctx context.Context, savings, costImpact float64, dataTimestamp time.Time, currency string) (bool, error) {
	if math.IsNaN(savings) || math.IsInf(savings, 0) || math.IsNaN(costImpact) || math.IsInf(costImpact, 0) {
		log.Ctx(ctx).WarnContext(ctx, "skipping accounting update with non-finite inputs",
			slog.Float64("savings", savings),
			slog.Float64("costImpact", costImpact),
		)
		return false, nil
	}

	now := s.now()
	if dataTimestamp.IsZero() || now.Sub(dataTimestamp) > pricing.MaxPriceAge {
		log.Ctx(ctx).WarnContext(ctx, "skipping accounting update on stale data",
			slog.Time("dataTimestamp", dataTimestamp),
		)
		return false, nil
	}

	today := now.Format("2006-01-02")
	decimals := CurrencyDecimals(currency)
	minor := MajorToMinor(savings, decimals)

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.history {
		if s.history[i].Date == today {
			s.history[i].TotalMinor = minor
			s.history[i].Currency = currency
			s.history[i].Decimals = decimals
			found = true
			break
		}
	}
	if !found {
		s.history = append(s.history, types.SavingsEntry{
			Date:       today,
			TotalMinor: minor,
			Currency:   currency,
			Decimals:   decimals,
		})
	}
	s.history = capHistory(s.history)

	var total float64
	for _, e := range s.history {
		total += MinorToMajor(e.TotalMinor, e.Decimals)
	}
	s.metrics.TotalSavings = total
	s.metrics.TotalCostImpact += costImpact
	if s.metrics.DailyCostImpactDate != today {
		s.metrics.DailyCostImpact = 0
		s.metrics.DailyCostImpactDate = today
	}
	s.metrics.DailyCostImpact += costImpact
	s.metrics.LastUpdate = now

	if err := s.store.Set(ctx, historyKey, s.history); err != nil {
		return false, fmt.Errorf("failed to save savings history: %w", err)
	}
	if err := s.store.Set(ctx, metricsKey, s.metrics); err != nil {
		return false, fmt.Errorf("failed to save savings metrics: %w", err)
	}

	log.Ctx(ctx).DebugContext(ctx, "recorded accounting update",
		slog.Float64("savings", savings),
		slog.Float64("costImpact", costImpact),
		slog.Float64("totalSavings", s.metrics.TotalSavings),
	)
	return true, nil
}

// capHistory sorts by date and keeps only the most recent entries.
func capHistory(history []types.SavingsEntry) []types.SavingsEntry {
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })
	if len(history) > maxHistoryDays {
		history = history[len(history)-maxHistoryDays:]
	}
	return history
}

// Metrics returns a copy of the running metrics.
func (s *Service) Metrics() types.SavingsMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// History returns a copy of the rolling savings history.
func (s *Service) History() []types.SavingsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SavingsEntry, len(s.history))
	copy(out, s.history)
	return out
}
