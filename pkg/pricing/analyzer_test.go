package pricing

import (
	"testing"
	"time"

	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/stretchr/testify/assert"
)

func hourlySeries(start time.Time, perKWH ...float64) []types.Price {
	prices := make([]types.Price, 0, len(perKWH))
	for i, p := range perKWH {
		ts := start.Add(time.Duration(i) * time.Hour)
		prices = append(prices, types.Price{
			Provider: "test",
			TSStart:  ts,
			TSEnd:    ts.Add(time.Hour),
			PerKWH:   p,
			Currency: "EUR",
		})
	}
	return prices
}

func TestReferenceTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, now, ReferenceTime(types.Price{}, now))

	feedTS := now.Add(-10 * time.Minute)
	assert.Equal(t, feedTS, ReferenceTime(types.Price{TSStart: feedTS}, now))
}

func TestUpcoming(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	series := hourlySeries(start, 1, 2, 3, 4, 5, 6)

	t.Run("window after ref", func(t *testing.T) {
		got := Upcoming(series, start.Add(3*time.Hour+30*time.Minute))
		// hour 3 still contains the ref, hours 4 and 5 follow
		assert.Len(t, got, 3)
		assert.Equal(t, 4.0, got[0].PerKWH)
	})

	t.Run("falls back to full series", func(t *testing.T) {
		got := Upcoming(series, start.Add(48*time.Hour))
		assert.Len(t, got, len(series))
	})
}

func TestPercentileOf(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	series := hourlySeries(start, 0.10, 0.20, 0.30, 0.40, 0.50)
	ref := start.Add(-time.Hour) // everything upcoming

	assert.Equal(t, 0.2, PercentileOf(series, 0.10, ref))
	assert.Equal(t, 0.6, PercentileOf(series, 0.30, ref))
	assert.Equal(t, 1.0, PercentileOf(series, 0.50, ref))
	// between buckets
	assert.Equal(t, 0.4, PercentileOf(series, 0.25, ref))
	// empty series is neutral
	assert.Equal(t, 0.5, PercentileOf(nil, 0.25, ref))
}

func TestCheapestUpcoming(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	series := hourlySeries(start, 0.30, 0.10, 0.20, 0.10, 0.50)
	ref := start.Add(-time.Hour)

	got := CheapestUpcoming(series, ref, 4)
	assert.Len(t, got, 4)
	// ties resolve to the earlier hour
	assert.Equal(t, start.Add(1*time.Hour), got[0].TSStart)
	assert.Equal(t, start.Add(3*time.Hour), got[1].TSStart)
	assert.Equal(t, 0.20, got[2].PerKWH)
	assert.Equal(t, 0.30, got[3].PerKWH)
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	assert.True(t, IsStale(types.Price{}, now))
	assert.True(t, IsStale(types.Price{TSStart: now.Add(-66 * time.Minute)}, now))
	assert.False(t, IsStale(types.Price{TSStart: now.Add(-64 * time.Minute)}, now))
}
