// Package constraints validates and applies setpoint constraints for the
// two heating zones and the hot water tank.
package constraints

import (
	"fmt"
	"math"
	"sync"

	"github.com/heatpilot/heatpilot/pkg/types"
)

// Physical limits per target. Setters reject configurations outside these.
const (
	zoneMinTemp = 10.0
	zoneMaxTemp = 30.0
	tankMinTemp = 30.0
	tankMaxTemp = 70.0

	// comfort bands are clamped to this range regardless of presets
	comfortFloor   = 16.0
	comfortCeiling = 26.0
)

// Manager holds the three independent constraint sets. Setters validate,
// Apply methods clamp and snap to the configured step.
type Manager struct {
	mu    sync.Mutex
	zone1 types.TargetConstraints
	zone2 types.TargetConstraints
	tank  types.TargetConstraints
}

// NewManager returns a Manager with no constraints configured. Apply
// methods return the input unchanged until constraints are set.
func NewManager() *Manager {
	return &Manager{}
}

// ApplySettings configures all three constraint sets from settings,
// stopping at the first invalid one.
func (m *Manager) ApplySettings(settings types.Settings) error {
	if err := m.SetZone1Constraints(settings.Zone1.MinTemp, settings.Zone1.MaxTemp, settings.Zone1.TempStep); err != nil {
		return fmt.Errorf("zone1: %w", err)
	}
	if err := m.SetZone2Constraints(settings.Zone2.MinTemp, settings.Zone2.MaxTemp, settings.Zone2.TempStep); err != nil {
		return fmt.Errorf("zone2: %w", err)
	}
	if err := m.SetTankConstraints(settings.Tank.MinTemp, settings.Tank.MaxTemp, settings.Tank.TempStep); err != nil {
		return fmt.Errorf("tank: %w", err)
	}
	return nil
}

func validate(minTemp, maxTemp, step, rangeMin, rangeMax float64) error {
	for _, v := range []float64{minTemp, maxTemp, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite constraint value")
		}
	}
	if minTemp < rangeMin || maxTemp > rangeMax {
		return fmt.Errorf("constraints %.1f-%.1f outside allowed range %.1f-%.1f", minTemp, maxTemp, rangeMin, rangeMax)
	}
	if maxTemp <= minTemp {
		return fmt.Errorf("max %.1f must be greater than min %.1f", maxTemp, minTemp)
	}
	if step <= 0 {
		return fmt.Errorf("step %.2f must be positive", step)
	}
	return nil
}

// SetZone1Constraints validates and stores the zone 1 setpoint range.
func (m *Manager) SetZone1Constraints(minTemp, maxTemp, step float64) error {
	if err := validate(minTemp, maxTemp, step, zoneMinTemp, zoneMaxTemp); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zone1 = types.TargetConstraints{MinTemp: minTemp, MaxTemp: maxTemp, TempStep: step}
	return nil
}

// SetZone2Constraints validates and stores the zone 2 setpoint range.
func (m *Manager) SetZone2Constraints(minTemp, maxTemp, step float64) error {
	if err := validate(minTemp, maxTemp, step, zoneMinTemp, zoneMaxTemp); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zone2 = types.TargetConstraints{MinTemp: minTemp, MaxTemp: maxTemp, TempStep: step}
	return nil
}

// SetTankConstraints validates and stores the tank setpoint range.
func (m *Manager) SetTankConstraints(minTemp, maxTemp, step float64) error {
	if err := validate(minTemp, maxTemp, step, tankMinTemp, tankMaxTemp); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tank = types.TargetConstraints{MinTemp: minTemp, MaxTemp: maxTemp, TempStep: step}
	return nil
}

func apply(c types.TargetConstraints, target float64) float64 {
	if c == (types.TargetConstraints{}) {
		return target
	}
	if target < c.MinTemp {
		target = c.MinTemp
	}
	if target > c.MaxTemp {
		target = c.MaxTemp
	}
	if c.TempStep > 0 {
		target = math.Round(target/c.TempStep) * c.TempStep
		// snapping can push past the bounds when the range is not a
		// multiple of the step
		if target > c.MaxTemp {
			target -= c.TempStep
		}
		if target < c.MinTemp {
			target += c.TempStep
		}
	}
	return target
}

// ApplyZone1Constraints clamps target to the zone 1 range and rounds it to
// the nearest step.
func (m *Manager) ApplyZone1Constraints(target float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return apply(m.zone1, target)
}

// ApplyZone2Constraints clamps target to the zone 2 range and rounds it to
// the nearest step.
func (m *Manager) ApplyZone2Constraints(target float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return apply(m.zone2, target)
}

// ApplyTankConstraints clamps target to the tank range and rounds it to
// the nearest step.
func (m *Manager) ApplyTankConstraints(target float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return apply(m.tank, target)
}

// ComfortBand returns the allowed indoor temperature band for the given
// occupancy from the configured presets, each side clamped to 16-26.
func ComfortBand(occupied bool, settings types.Settings) (minTemp, maxTemp float64) {
	if occupied {
		minTemp, maxTemp = settings.OccupiedComfortMin, settings.OccupiedComfortMax
	} else {
		minTemp, maxTemp = settings.AwayComfortMin, settings.AwayComfortMax
	}
	minTemp = math.Min(math.Max(minTemp, comfortFloor), comfortCeiling)
	maxTemp = math.Min(math.Max(maxTemp, comfortFloor), comfortCeiling)
	return minTemp, maxTemp
}
