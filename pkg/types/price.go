package types

import "time"

// Price represents the cost of electricity in a time interval.
type Price struct {
	Provider string    `json:"provider"`
	TSStart  time.Time `json:"tsStart"`
	TSEnd    time.Time `json:"tsEnd"`

	// PerKWH is the cost of electricity in the time interval, in major
	// currency units (e.g. EUR, not cents).
	PerKWH float64 `json:"perKWH"`

	// Currency is the ISO 4217 code the price is quoted in.
	Currency string `json:"currency"`
}

// Contains reports whether t falls inside the price interval.
func (p Price) Contains(t time.Time) bool {
	return !t.Before(p.TSStart) && t.Before(p.TSEnd)
}
