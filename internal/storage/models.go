package storage

import (
	"time"

	"gorm.io/gorm"
)

type StoredReading struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	SolarVoltage   float64 `json:"solar_voltage_v"`
	BatteryVoltage float64 `json:"battery_voltage_v"`
	ChargingAmps   float64 `json:"charging_amps_a"`
	BatteryPercent float64 `json:"battery_percent"`
	SolarPower     float64 `json:"solar_power_w"`
	InverterLoad   float64 `json:"inverter_load_w"`

	// Upstream running totals as of this sample.
	KWHPositive float64 `json:"kwh_positive"`
	KWHNegative float64 `json:"kwh_negative"`

	// Synthetic marks readings produced by the fallback generator.
	Synthetic bool `json:"synthetic"`
}

type DailyStats struct {
	Date          time.Time `json:"date"`
	PeakPower     float64   `json:"peak_power_w"`
	ChargedWh     float64   `json:"charged_wh"`
	DischargedWh  float64   `json:"discharged_wh"`
	AvgBatteryPct float64   `json:"avg_battery_percent"`
	ReadingsCount int64     `json:"readings_count"`
}
