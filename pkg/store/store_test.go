package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("Get unset key", func(t *testing.T) {
		_, ok, err := m.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Set and Get", func(t *testing.T) {
		type payload struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		}
		require.NoError(t, m.Set(ctx, "cop.carnot_efficiency", payload{Name: "eff", Value: 0.4}))

		var got payload
		ok, err := GetJSON(ctx, m, "cop.carnot_efficiency", &got)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 0.4, got.Value)
	})

	t.Run("Set rejects empty key", func(t *testing.T) {
		require.Error(t, m.Set(ctx, "", 1))
	})

	t.Run("Keys with prefix", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "cop.calibration_result", map[string]int{"sampleCount": 9}))
		require.NoError(t, m.Set(ctx, "state.setpoints", map[string]float64{"zone1": 21}))

		keys, err := m.Keys(ctx, "cop.")
		require.NoError(t, err)
		assert.Equal(t, []string{"cop.calibration_result", "cop.carnot_efficiency"}, keys)
	})

	t.Run("GetJSON invalid value", func(t *testing.T) {
		m.mu.Lock()
		m.values["broken"] = json.RawMessage("{not json")
		m.mu.Unlock()

		var v map[string]any
		_, err := GetJSON(ctx, m, "broken", &v)
		require.Error(t, err)
	})
}

func TestFirestoreStore(t *testing.T) {
	// Requires the Firestore emulator; skip when it isn't reachable.
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		host = "127.0.0.1:8087"
	}
	conn, err := net.DialTimeout("tcp", host, 250*time.Millisecond)
	if err != nil {
		t.Skipf("firestore emulator not reachable at %s", host)
	}
	conn.Close()
	os.Setenv("FIRESTORE_EMULATOR_HOST", host)

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &Firestore{
		projectID: "test-project-id",
		database:  randDB,
		hubID:     "test-hub",
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("Get unset key", func(t *testing.T) {
		_, ok, err := f.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Set and Get round-trip", func(t *testing.T) {
		value := map[string]any{"carnotEfficiency": 0.42}
		require.NoError(t, f.Set(ctx, "cop.carnot_efficiency", value))

		raw, ok, err := f.Get(ctx, "cop.carnot_efficiency")
		require.NoError(t, err)
		require.True(t, ok)

		var got map[string]float64
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, 0.42, got["carnotEfficiency"])
	})

	t.Run("Keys", func(t *testing.T) {
		require.NoError(t, f.Set(ctx, "accounting.savings_history", []int{}))
		keys, err := f.Keys(ctx, "accounting.")
		require.NoError(t, err)
		assert.Contains(t, keys, "accounting.savings_history")
	})
}
