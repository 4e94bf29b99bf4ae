package types

import "time"

// PredictionMethod identifies how a COP prediction was produced.
type PredictionMethod string

const (
	PredictionMethodCarnot             PredictionMethod = "carnot"
	PredictionMethodHistoricalFallback PredictionMethod = "historical_fallback"
)

// COPPrediction is the result of a single COP model evaluation.
type COPPrediction struct {
	PredictedCOP     float64          `json:"predictedCOP"`
	CarnotCOP        float64          `json:"carnotCOP"`
	CarnotEfficiency float64          `json:"carnotEfficiency"`
	FlowTempSetpoint float64          `json:"flowTempSetpoint"`
	OutdoorTemp      float64          `json:"outdoorTemp"`
	TemperatureLift  float64          `json:"temperatureLift"`
	Confidence       float64          `json:"confidence"`
	Method           PredictionMethod `json:"method"`
	Timestamp        time.Time        `json:"timestamp"`
}

// CalibrationPoint is a single observed (setpoint, outdoor temp, COP) sample
// used to calibrate the Carnot efficiency coefficient.
type CalibrationPoint struct {
	FlowSetpoint float64   `json:"flowSetpoint"`
	OutdoorTemp  float64   `json:"outdoorTemp"`
	ActualCOP    float64   `json:"actualCOP"`
	Timestamp    time.Time `json:"timestamp"`
}

// CalibrationResult summarizes a calibration run.
type CalibrationResult struct {
	CarnotEfficiency float64   `json:"carnotEfficiency"`
	SampleCount      int       `json:"sampleCount"`
	AverageError     float64   `json:"averageError"` // mean absolute error, percent
	LastCalibration  time.Time `json:"lastCalibration"`
	Confidence       float64   `json:"confidence"`
}

// COPSource identifies where a COP value came from so degraded data is
// visible to consumers instead of being hidden behind fallback chains.
type COPSource string

const (
	COPSourceLive     COPSource = "live"
	COPSourceDerived  COPSource = "derived"
	COPSourceFallback COPSource = "fallback"
)

// COPValue is a COP observation annotated with its provenance.
type COPValue struct {
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     COPSource `json:"source"`
}

// COPTrendDirection describes how a COP series is moving over time.
type COPTrendDirection string

const (
	COPTrendImproving COPTrendDirection = "improving"
	COPTrendStable    COPTrendDirection = "stable"
	COPTrendDeclining COPTrendDirection = "declining"
)

// COPTrends carries the trend direction per circuit.
type COPTrends struct {
	Heating  COPTrendDirection `json:"heating"`
	HotWater COPTrendDirection `json:"hotWater"`
}

// COPReading is a pair of heating/hot-water COP values for one window.
type COPReading struct {
	HeatingCOP  float64   `json:"heatingCOP"`
	HotWaterCOP float64   `json:"hotWaterCOP"`
	Timestamp   time.Time `json:"timestamp"`
}

// DailyEnergyTotals is the consumed/produced energy split reported by the
// cloud API for the current day.
type DailyEnergyTotals struct {
	HeatingConsumedKWH  float64   `json:"heatingConsumedKWH"`
	HeatingProducedKWH  float64   `json:"heatingProducedKWH"`
	HotWaterConsumedKWH float64   `json:"hotWaterConsumedKWH"`
	HotWaterProducedKWH float64   `json:"hotWaterProducedKWH"`
	Timestamp           time.Time `json:"timestamp"`
}

// EnhancedCOPData is the full COP payload from the cloud API.
type EnhancedCOPData struct {
	Current    COPReading        `json:"current"`
	Daily      DailyEnergyTotals `json:"daily"`
	Historical COPReading        `json:"historical"`
	Trends     COPTrends         `json:"trends"`
}

// SeasonalMode classifies the current operating season.
type SeasonalMode string

const (
	SeasonSummer     SeasonalMode = "summer"
	SeasonWinter     SeasonalMode = "winter"
	SeasonTransition SeasonalMode = "transition"
)

// OptimizationFocus selects which circuit the optimizer should prioritize.
type OptimizationFocus string

const (
	FocusHeating  OptimizationFocus = "heating"
	FocusHotWater OptimizationFocus = "hotwater"
	FocusBoth     OptimizationFocus = "both"
)

// OptimizationMetrics is the per-cycle snapshot derived from energy data.
// It is recomputed every cycle and never persisted.
type OptimizationMetrics struct {
	RealHeatingCOP            COPValue          `json:"realHeatingCOP"`
	RealHotWaterCOP           COPValue          `json:"realHotWaterCOP"`
	DailyEnergyConsumptionKWH float64           `json:"dailyEnergyConsumptionKWH"`
	HeatingEfficiency         float64           `json:"heatingEfficiency"`
	HotWaterEfficiency        float64           `json:"hotWaterEfficiency"`
	SeasonalMode              SeasonalMode      `json:"seasonalMode"`
	OptimizationFocus         OptimizationFocus `json:"optimizationFocus"`
	Timestamp                 time.Time         `json:"timestamp"`
}
