package pricing

import (
	"context"

	"github.com/heatpilot/heatpilot/pkg/types"
)

// Provider defines the interface for fetching electricity prices.
type Provider interface {
	// ApplySettings updates the provider using the dynamic settings.
	ApplySettings(ctx context.Context, settings types.Settings) error

	// CurrentPrice returns the price for the interval containing now.
	CurrentPrice(ctx context.Context) (types.Price, error)

	// Forecast returns known upcoming prices (typically the day-ahead
	// series), sorted by start time.
	Forecast(ctx context.Context) ([]types.Price, error)
}
