package devstate

import (
	"context"
	"testing"
	"time"

	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockout(t *testing.T) {
	tr := NewTracker(store.NewMemory())
	t0 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	// no prior change means no lockout
	assert.False(t, tr.IsZone1LockedOut(30))
	assert.Equal(t, time.Duration(0), tr.Zone1LockoutRemaining(30))

	tr.RecordZone1Change(21, t0)

	tr.now = func() time.Time { return t0.Add(10 * time.Minute) }
	assert.True(t, tr.IsZone1LockedOut(30))
	assert.Equal(t, 20*time.Minute, tr.Zone1LockoutRemaining(30))

	tr.now = func() time.Time { return t0.Add(31 * time.Minute) }
	assert.False(t, tr.IsZone1LockedOut(30))
	assert.Equal(t, time.Duration(0), tr.Zone1LockoutRemaining(30))

	// targets are independent
	tr.now = func() time.Time { return t0.Add(5 * time.Minute) }
	assert.False(t, tr.IsZone2LockedOut(30))
	assert.False(t, tr.IsTankLockedOut(30))

	tr.RecordTankChange(52, t0.Add(4*time.Minute))
	assert.True(t, tr.IsTankLockedOut(30))
	assert.False(t, tr.IsZone2LockedOut(30))

	// a zero lockout never locks
	assert.False(t, tr.IsTankLockedOut(0))
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	t0 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	tr := NewTracker(mem)
	tr.RecordZone1Change(21, t0)
	tr.RecordTankChange(52, t0)
	require.NoError(t, tr.Save(ctx))

	// a fresh tracker restores the records and lockouts
	tr2 := NewTracker(mem)
	require.NoError(t, tr2.Load(ctx))
	tr2.now = func() time.Time { return t0.Add(10 * time.Minute) }
	assert.True(t, tr2.IsZone1LockedOut(30))
	assert.True(t, tr2.IsTankLockedOut(30))
	assert.False(t, tr2.IsZone2LockedOut(30))

	zone1, zone2, tank := tr2.LastSetpoints()
	require.NotNil(t, zone1)
	assert.Equal(t, 21.0, zone1.Setpoint)
	assert.Equal(t, t0, zone1.Timestamp.UTC())
	assert.Nil(t, zone2)
	require.NotNil(t, tank)
	assert.Equal(t, 52.0, tank.Setpoint)
}

func TestLoadRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.Set(ctx, "state.setpoints", map[string]interface{}{
		"zone1": map[string]interface{}{"setpoint": -3, "timestamp": "2026-01-15T10:00:00Z"},
		"zone2": map[string]interface{}{"setpoint": 21, "timestamp": "2026-01-15T10:00:00Z"},
		"tank":  map[string]interface{}{"setpoint": 52, "timestamp": "0001-01-01T00:00:00Z"},
	}))

	tr := NewTracker(mem)
	require.NoError(t, tr.Load(ctx))

	zone1, zone2, tank := tr.LastSetpoints()
	assert.Nil(t, zone1)
	require.NotNil(t, zone2)
	assert.Equal(t, 21.0, zone2.Setpoint)
	assert.Nil(t, tank)
}
