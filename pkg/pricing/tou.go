package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// TOUPeriod defines one flat-rate block of the day.
type TOUPeriod struct {
	HourStart int     `json:"hourStart"`
	HourEnd   int     `json:"hourEnd"`
	PerKWH    float64 `json:"perKWH"`
	Name      string  `json:"name"`
}

// StaticTOU implements the Provider interface for fixed time-of-use
// tariffs. It needs no network access and is the fallback when no spot
// market feed is configured.
type StaticTOU struct {
	mu       sync.Mutex
	periods  []TOUPeriod
	currency string
}

// configuredStaticTOU sets up flags for the static time-of-use provider.
func configuredStaticTOU() *StaticTOU {
	t := &StaticTOU{currency: "EUR"}

	periods := []TOUPeriod{
		{HourStart: 0, HourEnd: 6, PerKWH: 0.08, Name: "night"},
		{HourStart: 6, HourEnd: 22, PerKWH: 0.20, Name: "day"},
		{HourStart: 22, HourEnd: 24, PerKWH: 0.08, Name: "night"},
	}
	lflag.JSON(&periods, "tou-periods", periods, "JSON list of time-of-use periods for the static tariff")

	lflag.Do(func() {
		t.periods = periods
	})

	return t
}

// Validate ensures the configured periods cover every hour exactly once.
func (t *StaticTOU) Validate() error {
	var covered [24]bool
	for _, p := range t.periods {
		if p.HourStart < 0 || p.HourEnd > 24 || p.HourEnd <= p.HourStart {
			return fmt.Errorf("invalid tou period %q: hours %d-%d", p.Name, p.HourStart, p.HourEnd)
		}
		for h := p.HourStart; h < p.HourEnd; h++ {
			if covered[h] {
				return fmt.Errorf("tou periods overlap at hour %d", h)
			}
			covered[h] = true
		}
	}
	for h, ok := range covered {
		if !ok {
			return fmt.Errorf("tou periods leave hour %d uncovered", h)
		}
	}
	return nil
}

// ApplySettings picks up the quote currency.
func (t *StaticTOU) ApplySettings(_ context.Context, settings types.Settings) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if settings.Currency != "" {
		t.currency = settings.Currency
	}
	return nil
}

func (t *StaticTOU) priceForHour(start time.Time) types.Price {
	t.mu.Lock()
	periods := t.periods
	currency := t.currency
	t.mu.Unlock()

	p := types.Price{
		Provider: "tou",
		TSStart:  start,
		TSEnd:    start.Add(time.Hour),
		Currency: currency,
	}
	for _, period := range periods {
		if h := start.Hour(); h >= period.HourStart && h < period.HourEnd {
			p.PerKWH = period.PerKWH
			break
		}
	}
	return p
}

// CurrentPrice returns the tariff rate for the hour containing now.
func (t *StaticTOU) CurrentPrice(_ context.Context) (types.Price, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return t.priceForHour(start), nil
}

// Forecast synthesizes the next 24 hours from the fixed tariff.
func (t *StaticTOU) Forecast(_ context.Context) ([]types.Price, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())

	prices := make([]types.Price, 0, 24)
	for i := 0; i < 24; i++ {
		prices = append(prices, t.priceForHour(start.Add(time.Duration(i)*time.Hour)))
	}
	return prices, nil
}
