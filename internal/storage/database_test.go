package storage

import (
	"path/filepath"
	"testing"
	"time"

	"solar-dashboard/internal/telemetry"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReading(ts time.Time, solarPower float64) telemetry.Reading {
	return telemetry.Reading{
		Timestamp:      ts,
		SolarVoltage:   40,
		BatteryVoltage: 12.3,
		ChargingAmps:   solarPower / 40,
		BatteryPercent: 46.15,
		SolarPower:     solarPower,
		InverterLoad:   30.75,
	}
}

func TestSaveAndGetLatest(t *testing.T) {
	db := testDB(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	counters := telemetry.ChargeCounters{KWHPositive: 1.25, KWHNegative: -0.75}

	for i := 0; i < 3; i++ {
		if err := db.SaveReading(sampleReading(base.Add(time.Duration(i)*time.Minute), float64(40+i)), counters, false); err != nil {
			t.Fatalf("failed to save reading: %v", err)
		}
	}

	latest, err := db.GetLatestReading()
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if latest.SolarPower != 42 {
		t.Errorf("expected latest SolarPower=42, got %f", latest.SolarPower)
	}
	if latest.KWHPositive != 1.25 {
		t.Errorf("expected KWHPositive=1.25, got %f", latest.KWHPositive)
	}
}

func TestGetReadingsByRange(t *testing.T) {
	db := testDB(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		if err := db.SaveReading(sampleReading(ts, 40), telemetry.ChargeCounters{}, false); err != nil {
			t.Fatalf("failed to save reading: %v", err)
		}
	}

	readings, err := db.GetReadingsByRange(base.Add(2*time.Hour), base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("failed to query range: %v", err)
	}
	if len(readings) != 4 {
		t.Errorf("expected 4 readings in range, got %d", len(readings))
	}
}

func TestGetDailyStats(t *testing.T) {
	db := testDB(t)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	powers := []float64{50, 120, 80}
	for i, p := range powers {
		ts := day.Add(time.Duration(10+i) * time.Hour)
		counters := telemetry.ChargeCounters{KWHPositive: 1.25, KWHNegative: -0.75}
		if err := db.SaveReading(sampleReading(ts, p), counters, false); err != nil {
			t.Fatalf("failed to save reading: %v", err)
		}
	}

	stats, err := db.GetDailyStats(day)
	if err != nil {
		t.Fatalf("failed to get daily stats: %v", err)
	}
	if stats.PeakPower != 120 {
		t.Errorf("expected PeakPower=120, got %f", stats.PeakPower)
	}
	if stats.ChargedWh != 1250 || stats.DischargedWh != 750 {
		t.Errorf("expected 1250/750 Wh, got %f/%f", stats.ChargedWh, stats.DischargedWh)
	}
	if stats.ReadingsCount != 3 {
		t.Errorf("expected 3 readings, got %d", stats.ReadingsCount)
	}
}

func TestCleanOldReadings(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	if err := db.SaveReading(sampleReading(now.Add(-48*time.Hour), 40), telemetry.ChargeCounters{}, false); err != nil {
		t.Fatalf("failed to save reading: %v", err)
	}
	if err := db.SaveReading(sampleReading(now, 40), telemetry.ChargeCounters{}, false); err != nil {
		t.Fatalf("failed to save reading: %v", err)
	}

	if err := db.CleanOldReadings(24 * time.Hour); err != nil {
		t.Fatalf("failed to clean: %v", err)
	}

	readings, err := db.GetReadingsWithLimit(10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(readings) != 1 {
		t.Errorf("expected 1 reading after cleanup, got %d", len(readings))
	}
}
