package storage

import (
	"fmt"
	"time"

	"solar-dashboard/internal/telemetry"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&StoredReading{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) SaveReading(r telemetry.Reading, counters telemetry.ChargeCounters, synthetic bool) error {
	stored := &StoredReading{
		Timestamp:      r.Timestamp,
		SolarVoltage:   r.SolarVoltage,
		BatteryVoltage: r.BatteryVoltage,
		ChargingAmps:   r.ChargingAmps,
		BatteryPercent: r.BatteryPercent,
		SolarPower:     r.SolarPower,
		InverterLoad:   r.InverterLoad,
		KWHPositive:    counters.KWHPositive,
		KWHNegative:    counters.KWHNegative,
		Synthetic:      synthetic,
	}

	return d.db.Create(stored).Error
}

func (d *Database) GetLatestReading() (*StoredReading, error) {
	var reading StoredReading
	result := d.db.Order("timestamp desc").First(&reading)
	if result.Error != nil {
		return nil, result.Error
	}
	return &reading, nil
}

func (d *Database) GetReadingsByRange(from, to time.Time) ([]StoredReading, error) {
	var readings []StoredReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp desc").
		Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetReadingsWithLimit(limit int) ([]StoredReading, error) {
	var readings []StoredReading
	result := d.db.Order("timestamp desc").Limit(limit).Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetDailyStats(date time.Time) (*DailyStats, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var stats DailyStats
	stats.Date = startOfDay

	// Peak solar power of the day
	var reading StoredReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("solar_power desc").
		First(&reading)
	if result.Error == nil {
		stats.PeakPower = reading.SolarPower
	}

	// Latest counters of the day carry the charged/discharged totals
	result = d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("timestamp desc").
		First(&reading)
	if result.Error == nil {
		stats.ChargedWh = reading.KWHPositive * 1000
		if reading.KWHNegative < 0 {
			stats.DischargedWh = -reading.KWHNegative * 1000
		} else {
			stats.DischargedWh = reading.KWHNegative * 1000
		}
	}

	var avgPct float64
	d.db.Model(&StoredReading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Select("AVG(battery_percent)").
		Scan(&avgPct)
	stats.AvgBatteryPct = avgPct

	d.db.Model(&StoredReading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Count(&stats.ReadingsCount)

	return &stats, nil
}

func (d *Database) CleanOldReadings(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return d.db.Where("timestamp < ?", cutoff).Delete(&StoredReading{}).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
