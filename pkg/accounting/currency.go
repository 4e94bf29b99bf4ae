// Package accounting tracks realized cost impact and savings. Daily
// amounts are persisted in integer minor currency units.
package accounting

import "math"

// currencyDecimals holds the ISO 4217 exceptions; everything else uses 2
// decimal places.
var currencyDecimals = map[string]int{
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"VND": 0,
}

// CurrencyDecimals returns the number of minor-unit decimal places for the
// ISO 4217 currency code.
func CurrencyDecimals(code string) int {
	if d, ok := currencyDecimals[code]; ok {
		return d
	}
	return 2
}

// MajorToMinor converts a major-unit amount to integer minor units,
// rounding to the nearest minor unit.
func MajorToMinor(major float64, decimals int) int64 {
	return int64(math.Round(major * math.Pow10(decimals)))
}

// MinorToMajor converts integer minor units back to a major-unit amount.
func MinorToMajor(minor int64, decimals int) float64 {
	return float64(minor) / math.Pow10(decimals)
}
