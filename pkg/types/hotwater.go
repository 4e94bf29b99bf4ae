package types

import "time"

// HotWaterActionType is the decision emitted per optimization cycle.
type HotWaterActionType string

const (
	HotWaterHeatNow  HotWaterActionType = "heat_now"
	HotWaterDelay    HotWaterActionType = "delay"
	HotWaterMaintain HotWaterActionType = "maintain"
)

// HotWaterAction is the per-cycle decision of the hot-water optimizer.
// ScheduledTime is only set for delay actions.
type HotWaterAction struct {
	Action        HotWaterActionType `json:"action"`
	Reason        string             `json:"reason"`
	ScheduledTime time.Time          `json:"scheduledTime,omitzero"`
}

// SchedulePoint is one planned heating slot in the pattern-based schedule.
type SchedulePoint struct {
	Hour            int     `json:"hour"`
	Reason          string  `json:"reason"`
	Priority        float64 `json:"priority"`
	COP             float64 `json:"cop"`
	PricePercentile float64 `json:"pricePercentile"`
}

// HotWaterSchedule is the pattern-based 24-hour plan plus the action for the
// current hour and the estimated savings versus on-demand heating.
type HotWaterSchedule struct {
	Points           []SchedulePoint `json:"points"`
	Action           HotWaterAction  `json:"action"`
	EstimatedSavings float64         `json:"estimatedSavings"`
	// SavingsBasis explains how EstimatedSavings was computed, or why no
	// estimate could be made.
	SavingsBasis string `json:"savingsBasis"`
}

// UsagePattern is the learned hot-water demand profile. It is written by
// the hub's data collector and consumed read-only by the optimizer.
type UsagePattern struct {
	// HourlyDemandKWH is the average hot-water energy demand per hour of day.
	HourlyDemandKWH [24]float64 `json:"hourlyDemandKWH"`
	// PeakHours are the hours of day with recurring peak demand.
	PeakHours []int `json:"peakHours"`
	// EstimatedDailyKWH is the learned total daily hot-water energy. Zero
	// means no estimate is available yet.
	EstimatedDailyKWH float64 `json:"estimatedDailyKWH"`
}
