package hvac

import (
	"context"

	"github.com/heatpilot/heatpilot/pkg/types"
)

// Client defines the interface for interacting with a heat pump vendor
// cloud (zones, tank and efficiency telemetry).
type Client interface {
	// ApplySettings updates the client using the provided global settings.
	ApplySettings(ctx context.Context, settings types.Settings) error

	// EnhancedCOPData returns the full efficiency telemetry for the device:
	// current readings, daily energy totals, recent history and trends.
	EnhancedCOPData(ctx context.Context) (types.EnhancedCOPData, error)

	// DailyEnergyTotals returns per-day consumed/produced energy for the
	// last days days. Vendors that lack the enhanced endpoint still serve
	// this one.
	DailyEnergyTotals(ctx context.Context, days int) ([]types.DailyEnergyTotals, error)

	// SetZoneSetpoint sets the heating setpoint for a zone (1 or 2) in
	// degrees celsius.
	SetZoneSetpoint(ctx context.Context, zone int, temp float64) error

	// SetTankSetpoint sets the hot water tank setpoint in degrees celsius.
	SetTankSetpoint(ctx context.Context, temp float64) error

	// Temperatures returns the current flow and outdoor temperatures in
	// degrees celsius.
	Temperatures(ctx context.Context) (flow, outdoor float64, err error)
}
