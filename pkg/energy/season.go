package energy

import "github.com/heatpilot/heatpilot/pkg/types"

// minHeatingKWH is the daily heating consumption below which the heating
// circuit is considered idle.
const minHeatingKWH = 1.0

// DetermineSeason classifies the operating season from the daily consumed
// energy split. The thresholds are fixed, not learned.
func DetermineSeason(heatingConsumedKWH, hotWaterConsumedKWH float64) types.SeasonalMode {
	if heatingConsumedKWH < minHeatingKWH {
		return types.SeasonSummer
	}
	if heatingConsumedKWH > 2*hotWaterConsumedKWH {
		return types.SeasonWinter
	}
	return types.SeasonTransition
}

// DetermineOptimizationFocus picks which circuit to prioritize for the
// cycle. In summer the heating circuit is idle so hot water is all there
// is to optimize. In winter heating dominates unless its COP is getting
// worse, in which case both circuits get attention. In the transition
// seasons the circuit with the improving trend wins, falling back to both
// when neither (or both) are improving.
func DetermineOptimizationFocus(trends types.COPTrends, season types.SeasonalMode) types.OptimizationFocus {
	switch season {
	case types.SeasonSummer:
		return types.FocusHotWater
	case types.SeasonWinter:
		if trends.Heating == types.COPTrendDeclining {
			return types.FocusBoth
		}
		return types.FocusHeating
	default:
		heatingImproving := trends.Heating == types.COPTrendImproving
		hotWaterImproving := trends.HotWater == types.COPTrendImproving
		if heatingImproving && !hotWaterImproving {
			return types.FocusHeating
		}
		if hotWaterImproving && !heatingImproving {
			return types.FocusHotWater
		}
		return types.FocusBoth
	}
}
