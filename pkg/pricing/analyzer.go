package pricing

import (
	"sort"
	"time"

	"github.com/heatpilot/heatpilot/pkg/types"
)

// MaxPriceAge is how old price data may be before it is considered stale
// and cost accounting is skipped for the cycle.
const MaxPriceAge = 65 * time.Minute

// ReferenceTime picks the reference for "upcoming" calculations: the price
// feed's own current timestamp when available, else the wall clock.
func ReferenceTime(current types.Price, now time.Time) time.Time {
	if !current.TSStart.IsZero() {
		return current.TSStart
	}
	return now
}

// Upcoming returns the prices in the 24-hour window after ref. When no
// entry qualifies it falls back to the full series so a decision can still
// be made on whatever data exists.
func Upcoming(series []types.Price, ref time.Time) []types.Price {
	horizon := ref.Add(24 * time.Hour)
	var out []types.Price
	for _, p := range series {
		if p.TSEnd.After(ref) && p.TSStart.Before(horizon) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return series
	}
	return out
}

// PercentileOf returns the fraction of the upcoming price series that is
// at or below current (0 = cheapest hour of the window, 1 = most
// expensive). An empty series yields a neutral 0.5.
func PercentileOf(series []types.Price, current float64, ref time.Time) float64 {
	window := Upcoming(series, ref)
	if len(window) == 0 {
		return 0.5
	}
	var below int
	for _, p := range window {
		if p.PerKWH <= current {
			below++
		}
	}
	return float64(below) / float64(len(window))
}

// CheapestUpcoming returns the n lowest-priced entries of the upcoming
// window, cheapest first; ties resolve to the earlier hour.
func CheapestUpcoming(series []types.Price, ref time.Time, n int) []types.Price {
	window := Upcoming(series, ref)
	sorted := make([]types.Price, len(window))
	copy(sorted, window)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PerKWH != sorted[j].PerKWH {
			return sorted[i].PerKWH < sorted[j].PerKWH
		}
		return sorted[i].TSStart.Before(sorted[j].TSStart)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Average returns the mean price of the series, 0 for an empty series.
func Average(series []types.Price) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, p := range series {
		sum += p.PerKWH
	}
	return sum / float64(len(series))
}

// IsStale reports whether a price is too old to base cost accounting on.
func IsStale(p types.Price, now time.Time) bool {
	if p.TSStart.IsZero() {
		return true
	}
	return now.Sub(p.TSStart) > MaxPriceAge
}
