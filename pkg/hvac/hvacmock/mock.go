// Package hvacmock provides a mock implementation of the hvac.Client
// interface for testing.
package hvacmock

import (
	"context"

	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/stretchr/testify/mock"
)

// Client is a mock implementation of hvac.Client.
type Client struct {
	mock.Mock
}

func (m *Client) ApplySettings(ctx context.Context, settings types.Settings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *Client) EnhancedCOPData(ctx context.Context) (types.EnhancedCOPData, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.EnhancedCOPData), args.Error(1)
}

func (m *Client) DailyEnergyTotals(ctx context.Context, days int) ([]types.DailyEnergyTotals, error) {
	args := m.Called(ctx, days)
	var totals []types.DailyEnergyTotals
	if args.Get(0) != nil {
		totals = args.Get(0).([]types.DailyEnergyTotals)
	}
	return totals, args.Error(1)
}

func (m *Client) SetZoneSetpoint(ctx context.Context, zone int, temp float64) error {
	args := m.Called(ctx, zone, temp)
	return args.Error(0)
}

func (m *Client) SetTankSetpoint(ctx context.Context, temp float64) error {
	args := m.Called(ctx, temp)
	return args.Error(0)
}

func (m *Client) Temperatures(ctx context.Context) (float64, float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}
