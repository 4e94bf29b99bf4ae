package energy

import (
	"testing"

	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestDetermineSeason(t *testing.T) {
	assert.Equal(t, types.SeasonSummer, DetermineSeason(0.99, 10))
	assert.Equal(t, types.SeasonSummer, DetermineSeason(0, 0))
	// 5 > 2*2
	assert.Equal(t, types.SeasonWinter, DetermineSeason(5, 2))
	// 3 is not > 4
	assert.Equal(t, types.SeasonTransition, DetermineSeason(3, 2))
	// exactly double is not winter
	assert.Equal(t, types.SeasonTransition, DetermineSeason(4, 2))
}

func TestDetermineOptimizationFocus(t *testing.T) {
	improving := types.COPTrendImproving
	stable := types.COPTrendStable
	declining := types.COPTrendDeclining

	trends := func(h, hw types.COPTrendDirection) types.COPTrends {
		return types.COPTrends{Heating: h, HotWater: hw}
	}

	t.Run("summer", func(t *testing.T) {
		assert.Equal(t, types.FocusHotWater, DetermineOptimizationFocus(trends(improving, declining), types.SeasonSummer))
	})

	t.Run("winter", func(t *testing.T) {
		assert.Equal(t, types.FocusHeating, DetermineOptimizationFocus(trends(stable, stable), types.SeasonWinter))
		assert.Equal(t, types.FocusHeating, DetermineOptimizationFocus(trends(improving, improving), types.SeasonWinter))
		assert.Equal(t, types.FocusBoth, DetermineOptimizationFocus(trends(declining, stable), types.SeasonWinter))
	})

	t.Run("transition", func(t *testing.T) {
		assert.Equal(t, types.FocusHeating, DetermineOptimizationFocus(trends(improving, stable), types.SeasonTransition))
		assert.Equal(t, types.FocusHotWater, DetermineOptimizationFocus(trends(declining, improving), types.SeasonTransition))
		assert.Equal(t, types.FocusBoth, DetermineOptimizationFocus(trends(improving, improving), types.SeasonTransition))
		assert.Equal(t, types.FocusBoth, DetermineOptimizationFocus(trends(stable, declining), types.SeasonTransition))
	})
}
