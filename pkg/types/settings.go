package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 4

// TargetConstraints configures the allowed setpoint range for one target.
type TargetConstraints struct {
	MinTemp  float64 `json:"minTemp"`
	MaxTemp  float64 `json:"maxTemp"`
	TempStep float64 `json:"tempStep"`
}

// Settings represents the dynamic configuration stored in the settings
// store. These can be changed without redeploying.
type Settings struct {
	DryRun bool `json:"dryRun"`
	// Pause optimization cycles entirely
	Pause bool `json:"pause"`

	// Device identity on the cloud HVAC API
	DeviceID   string `json:"deviceID"`
	BuildingID string `json:"buildingID"`

	// Price Settings
	PriceProvider string `json:"priceProvider"`
	// PriceArea is the ENTSO-E bidding zone EIC code (e.g. 10YNO-3--------J)
	PriceArea string `json:"priceArea"`
	// CheapPercentile is the fraction of the price distribution considered
	// cheap (0.2 means the cheapest 20% of hours).
	CheapPercentile float64 `json:"cheapPercentile"`
	Currency        string  `json:"currency"`

	// Hot Water COP efficiency bands, on the 0-1 normalized scale.
	COPBandExcellent float64 `json:"copBandExcellent"`
	COPBandGood      float64 `json:"copBandGood"`
	COPBandPoor      float64 `json:"copBandPoor"`
	// AssumedMaxHotWaterCOP scales hot-water COP when no adaptive range
	// has been learned yet.
	AssumedMaxHotWaterCOP float64 `json:"assumedMaxHotWaterCOP"`
	// EstimatedDailyHotWaterKWH drives the pattern-schedule savings
	// estimate. Zero means no estimate and savings are reported as zero.
	EstimatedDailyHotWaterKWH float64 `json:"estimatedDailyHotWaterKWH"`

	// Comfort presets used to derive the occupancy comfort band.
	OccupiedComfortMin float64 `json:"occupiedComfortMin"`
	OccupiedComfortMax float64 `json:"occupiedComfortMax"`
	AwayComfortMin     float64 `json:"awayComfortMin"`
	AwayComfortMax     float64 `json:"awayComfortMax"`

	// Setpoint constraints per target.
	Zone1 TargetConstraints `json:"zone1"`
	Zone2 TargetConstraints `json:"zone2"`
	Tank  TargetConstraints `json:"tank"`

	// MinSetpointChangeMinutes is the lockout between issued setpoint
	// changes for the same target.
	MinSetpointChangeMinutes int `json:"minSetpointChangeMinutes"`
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
			if s.CheapPercentile == 0 {
				s.CheapPercentile = 0.2
				migrated = true
			}
			if s.MinSetpointChangeMinutes == 0 {
				s.MinSetpointChangeMinutes = 30
				migrated = true
			}
			if s.Zone1 == (TargetConstraints{}) {
				s.Zone1 = TargetConstraints{MinTemp: 18, MaxTemp: 22, TempStep: 0.5}
				migrated = true
			}
			if s.Zone2 == (TargetConstraints{}) {
				s.Zone2 = TargetConstraints{MinTemp: 18, MaxTemp: 22, TempStep: 0.5}
				migrated = true
			}
		case 2:
			// version 2: hot water tank support
			if s.Tank == (TargetConstraints{}) {
				s.Tank = TargetConstraints{MinTemp: 40, MaxTemp: 60, TempStep: 1}
				migrated = true
			}
			if s.AssumedMaxHotWaterCOP == 0 {
				s.AssumedMaxHotWaterCOP = 4.0
				migrated = true
			}
		case 3:
			// version 3: COP efficiency bands and comfort presets
			if s.COPBandExcellent == 0 {
				s.COPBandExcellent = 0.8
				migrated = true
			}
			if s.COPBandGood == 0 {
				s.COPBandGood = 0.6
				migrated = true
			}
			if s.COPBandPoor == 0 {
				s.COPBandPoor = 0.4
				migrated = true
			}
			if s.OccupiedComfortMin == 0 {
				s.OccupiedComfortMin = 20
				migrated = true
			}
			if s.OccupiedComfortMax == 0 {
				s.OccupiedComfortMax = 22
				migrated = true
			}
			if s.AwayComfortMin == 0 {
				s.AwayComfortMin = 17
				migrated = true
			}
			if s.AwayComfortMax == 0 {
				s.AwayComfortMax = 19
				migrated = true
			}
		case 4:
			// version 4: currency support for accounting
			if s.Currency == "" {
				s.Currency = "EUR"
				migrated = true
			}
			if s.PriceProvider == "" {
				s.PriceProvider = "entsoe"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
