package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/heatpilot/heatpilot/pkg/types"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := store.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now()

	// 1. Settings at the current version
	settings, _, err := types.MigrateSettings(types.Settings{
		DeviceID:                  "hp-0001",
		BuildingID:                "bld-0001",
		PriceProvider:             "entsoe",
		PriceArea:                 "10YNO-3--------J",
		Currency:                  "NOK",
		EstimatedDailyHotWaterKWH: 3.5,
	}, 0)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build settings", "error", err)
		os.Exit(1)
	}
	must(ctx, s, "settings", struct {
		Version  int            `json:"version"`
		Settings types.Settings `json:"settings"`
	}{Version: types.CurrentSettingsVersion, Settings: settings})

	// 2. Usage pattern with a morning and evening shower peak
	var pattern types.UsagePattern
	pattern.PeakHours = []int{7, 19}
	for hour := range pattern.HourlyDemandKWH {
		pattern.HourlyDemandKWH[hour] = 0.05
	}
	pattern.HourlyDemandKWH[7] = 1.2
	pattern.HourlyDemandKWH[8] = 0.4
	pattern.HourlyDemandKWH[19] = 0.9
	pattern.HourlyDemandKWH[20] = 0.3
	var daily float64
	for _, kwh := range pattern.HourlyDemandKWH {
		daily += kwh
	}
	pattern.EstimatedDailyKWH = daily
	must(ctx, s, "hotwater.usage_pattern", pattern)

	// 3. Calibration points spread over the last two weeks. Flow setpoint
	// follows a weather-compensation curve: colder outside, hotter flow.
	var points []types.CalibrationPoint
	for i := 0; i < 14; i++ {
		outdoor := -5 + rng.Float64()*15
		flow := 45 - outdoor*0.6
		lift := flow - outdoor
		carnotCOP := (flow + 273.15) / lift
		// simulate a unit running at ~40% of Carnot with sensor noise
		actual := carnotCOP * (0.36 + rng.Float64()*0.08)
		points = append(points, types.CalibrationPoint{
			FlowSetpoint: flow,
			OutdoorTemp:  outdoor,
			ActualCOP:    actual,
			Timestamp:    now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}
	must(ctx, s, "cop.calibration_points", points)

	// 4. A week of savings history
	var history []types.SavingsEntry
	var total int64
	for i := 6; i >= 0; i-- {
		day := now.Add(-time.Duration(i) * 24 * time.Hour)
		minor := int64(50 + rng.Intn(300))
		total += minor
		history = append(history, types.SavingsEntry{
			Date:       day.Format("2006-01-02"),
			TotalMinor: minor,
			Currency:   "NOK",
			Decimals:   2,
		})
	}
	must(ctx, s, "accounting.savings_history", history)
	must(ctx, s, "accounting.metrics", types.SavingsMetrics{
		TotalSavings:        float64(total) / 100,
		TotalCostImpact:     float64(total) / 100 * 0.4,
		DailyCostImpact:     0.12,
		DailyCostImpactDate: now.Format("2006-01-02"),
		LastUpdate:          now,
	})

	log.Ctx(ctx).InfoContext(ctx, "seed complete",
		"calibrationPoints", len(points),
		"historyDays", len(history),
	)
}

func must(ctx context.Context, s store.Store, key string, value any) {
	if err := s.Set(ctx, key, value); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed key", "key", key, "error", err)
		os.Exit(1)
	}
}
