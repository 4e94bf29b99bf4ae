package types

import "time"

// SavingsEntry is one day of realized savings, stored in integer minor
// currency units to avoid floating-point drift.
type SavingsEntry struct {
	Date       string `json:"date"` // YYYY-MM-DD
	TotalMinor int64  `json:"totalMinor"`
	Currency   string `json:"currency"`
	Decimals   int    `json:"decimals"`
}

// SavingsMetrics is the running accounting state.
type SavingsMetrics struct {
	TotalSavings        float64   `json:"totalSavings"`
	TotalCostImpact     float64   `json:"totalCostImpact"`
	DailyCostImpact     float64   `json:"dailyCostImpact"`
	DailyCostImpactDate string    `json:"dailyCostImpactDate"` // YYYY-MM-DD
	LastUpdate          time.Time `json:"lastUpdate"`
}
