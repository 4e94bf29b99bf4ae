// Package devstate tracks the last issued setpoint per target and
// enforces the minimum time between setpoint changes.
package devstate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/store"
)

const setpointsKey = "state.setpoints"

// TargetRecord is the last setpoint change issued for one target.
type TargetRecord struct {
	Setpoint  float64   `json:"setpoint"`
	Timestamp time.Time `json:"timestamp"`
}

type setpointState struct {
	Zone1 *TargetRecord `json:"zone1,omitempty"`
	Zone2 *TargetRecord `json:"zone2,omitempty"`
	Tank  *TargetRecord `json:"tank,omitempty"`
}

// Tracker remembers the last setpoint change per target across restarts so
// lockouts survive a process restart.
type Tracker struct {
	store store.Store

	mu    sync.Mutex
	state setpointState
	now   func() time.Time
}

// NewTracker returns a Tracker persisting through s.
func NewTracker(s store.Store) *Tracker {
	return &Tracker{
		store: s,
		now:   time.Now,
	}
}

// RecordZone1Change overwrites the last-change record for zone 1.
func (t *Tracker) RecordZone1Change(setpoint float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Zone1 = &TargetRecord{Setpoint: setpoint, Timestamp: ts}
}

// RecordZone2Change overwrites the last-change record for zone 2.
func (t *Tracker) RecordZone2Change(setpoint float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Zone2 = &TargetRecord{Setpoint: setpoint, Timestamp: ts}
}

// RecordTankChange overwrites the last-change record for the tank.
func (t *Tracker) RecordTankChange(setpoint float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Tank = &TargetRecord{Setpoint: setpoint, Timestamp: ts}
}

func (t *Tracker) lockedOut(r *TargetRecord, minMinutes int) bool {
	if r == nil || minMinutes <= 0 {
		return false
	}
	return t.now().Sub(r.Timestamp) < time.Duration(minMinutes)*time.Minute
}

func (t *Tracker) remaining(r *TargetRecord, minMinutes int) time.Duration {
	if !t.lockedOut(r, minMinutes) {
		return 0
	}
	return time.Duration(minMinutes)*time.Minute - t.now().Sub(r.Timestamp)
}

// IsZone1LockedOut reports whether zone 1 changed less than minMinutes ago.
func (t *Tracker) IsZone1LockedOut(minMinutes int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lockedOut(t.state.Zone1, minMinutes)
}

// IsZone2LockedOut reports whether zone 2 changed less than minMinutes ago.
func (t *Tracker) IsZone2LockedOut(minMinutes int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lockedOut(t.state.Zone2, minMinutes)
}

// IsTankLockedOut reports whether the tank changed less than minMinutes ago.
func (t *Tracker) IsTankLockedOut(minMinutes int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lockedOut(t.state.Tank, minMinutes)
}

// Zone1LockoutRemaining returns how long until zone 1 may change again.
func (t *Tracker) Zone1LockoutRemaining(minMinutes int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining(t.state.Zone1, minMinutes)
}

// Zone2LockoutRemaining returns how long until zone 2 may change again.
func (t *Tracker) Zone2LockoutRemaining(minMinutes int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining(t.state.Zone2, minMinutes)
}

// TankLockoutRemaining returns how long until the tank may change again.
func (t *Tracker) TankLockoutRemaining(minMinutes int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining(t.state.Tank, minMinutes)
}

// LastSetpoints returns the current records for status reporting. Nil
// entries mean no change has been issued for that target.
func (t *Tracker) LastSetpoints() (zone1, zone2, tank *TargetRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyRecord(t.state.Zone1), copyRecord(t.state.Zone2), copyRecord(t.state.Tank)
}

func copyRecord(r *TargetRecord) *TargetRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Save persists the non-nil records.
func (t *Tracker) Save(ctx context.Context) error {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if err := t.store.Set(ctx, setpointsKey, state); err != nil {
		return fmt.Errorf("failed to save setpoint state: %w", err)
	}
	return nil
}

// Load restores the records from the store, dropping any with a non-finite
// or non-positive setpoint.
func (t *Tracker) Load(ctx context.Context) error {
	var state setpointState
	ok, err := store.GetJSON(ctx, t.store, setpointsKey, &state)
	if err != nil {
		return fmt.Errorf("failed to load setpoint state: %w", err)
	}
	if !ok {
		return nil
	}

	for name, r := range map[string]**TargetRecord{
		"zone1": &state.Zone1,
		"zone2": &state.Zone2,
		"tank":  &state.Tank,
	} {
		rec := *r
		if rec == nil {
			continue
		}
		if math.IsNaN(rec.Setpoint) || math.IsInf(rec.Setpoint, 0) || rec.Setpoint <= 0 || rec.Timestamp.IsZero() {
			log.Ctx(ctx).WarnContext(ctx, "dropping invalid persisted setpoint record",
				slog.String("target", name),
				slog.Float64("setpoint", rec.Setpoint),
			)
			*r = nil
		}
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
	return nil
}
