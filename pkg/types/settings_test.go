package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0.2, s.CheapPercentile)
		assert.Equal(t, 30, s.MinSetpointChangeMinutes)
		assert.Equal(t, TargetConstraints{MinTemp: 18, MaxTemp: 22, TempStep: 0.5}, s.Zone1)
	})

	t.Run("v1 to v2: tank and assumed hot water COP", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, TargetConstraints{MinTemp: 40, MaxTemp: 60, TempStep: 1}, s.Tank)
		assert.Equal(t, 4.0, s.AssumedMaxHotWaterCOP)
	})

	t.Run("v2 to v3: bands keep explicit values", func(t *testing.T) {
		old := Settings{COPBandExcellent: 0.9}
		s, changed, err := MigrateSettings(old, 2)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0.9, s.COPBandExcellent)
		assert.Equal(t, 0.6, s.COPBandGood)
		assert.Equal(t, 0.4, s.COPBandPoor)
	})

	t.Run("v3 to v4: currency default", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 3)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "EUR", s.Currency)
		assert.Equal(t, "entsoe", s.PriceProvider)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := Settings{
			Currency:      "EUR",
			PriceProvider: "entsoe",
		}
		s, changed, err := MigrateSettings(current, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}
