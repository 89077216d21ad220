package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Positions of the fields this service consumes inside the logger's
// positional sensor record. Everything else in the record is ignored.
const (
	FieldDate           = 0
	FieldTime           = 1
	FieldBatteryVoltage = 2
	FieldSolarVoltage   = 3
	FieldChargingAmps   = 5
)

// Reading is one normalized sample of solar/battery telemetry.
// Readings are immutable once built.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`

	SolarVoltage   float64 `json:"solar_voltage_v"`
	BatteryVoltage float64 `json:"battery_voltage_v"`
	ChargingAmps   float64 `json:"charging_amps_a"`

	// BatteryPercent is derived from BatteryVoltage via the configured
	// calibration pair and is always within [0, 100].
	BatteryPercent float64 `json:"battery_percent"`

	// SolarPower is SolarVoltage * ChargingAmps at construction time.
	SolarPower float64 `json:"solar_power_w"`

	// InverterLoad is the power drawn from the battery side, derived from
	// the shunt voltage side channel.
	InverterLoad float64 `json:"inverter_load_w"`
}

// RawRecord is one upstream sample before normalization: the positional
// string fields of the sensor record plus the side-channel cumulative
// charge counters reported alongside it.
type RawRecord struct {
	Fields []string

	KWHPositive    string
	KWHNegative    string
	LastShuntVolts string
}

// ChargeCounters are the upstream running totals, parsed.
type ChargeCounters struct {
	KWHPositive    float64
	KWHNegative    float64
	LastShuntVolts float64
}

// Calibration maps battery voltage onto a 0-100 percentage.
type Calibration struct {
	MinVolts float64
	MaxVolts float64

	// DoubleVoltage scales a half-range sensor reading into full pack
	// range (a 12V sensor domain doubled for a 24V pack).
	DoubleVoltage bool
}

// Calibration pairs used by the deployments this service has run on.
var (
	Calibration12V = Calibration{MinVolts: 10.5, MaxVolts: 14.4}
	Calibration24V = Calibration{MinVolts: 20, MaxVolts: 29}
)

// LoadFloor optionally clamps tiny inverter-load results up into a
// plausible band. It papers over a shunt calibration quirk rather than
// reflecting real policy, so it is off unless configured on.
type LoadFloor struct {
	Enabled  bool
	MinWatts float64
	MaxWatts float64
}

// Normalizer converts raw positional records into Readings.
type Normalizer struct {
	calibration Calibration
	floor       LoadFloor

	// now is swappable for tests.
	now func() time.Time
}

func NewNormalizer(cal Calibration, floor LoadFloor) *Normalizer {
	return &Normalizer{
		calibration: cal,
		floor:       floor,
		now:         time.Now,
	}
}

// Normalize builds one Reading from a raw record. It never fails: missing
// or non-numeric fields parse to zero and an unparsable timestamp falls
// back to the wall clock.
func (n *Normalizer) Normalize(raw RawRecord) Reading {
	battVolts := parseFloat(field(raw.Fields, FieldBatteryVoltage))
	if n.calibration.DoubleVoltage {
		battVolts *= 2
	}

	solarVolts := parseFloat(field(raw.Fields, FieldSolarVoltage))
	amps := parseFloat(field(raw.Fields, FieldChargingAmps))
	solarPower := solarVolts * amps

	shunt := parseFloat(raw.LastShuntVolts)
	var load float64
	if shunt < 0 {
		load = math.Abs(shunt * battVolts)
	} else {
		load = math.Abs(solarPower - shunt*battVolts)
	}
	load = n.applyFloor(load)

	return Reading{
		Timestamp:      n.timestamp(raw.Fields),
		SolarVoltage:   solarVolts,
		BatteryVoltage: battVolts,
		ChargingAmps:   amps,
		BatteryPercent: n.calibration.Percent(battVolts),
		SolarPower:     solarPower,
		InverterLoad:   load,
	}
}

// Counters parses the cumulative charge counters of a raw record,
// failing soft to zero like every other field.
func (n *Normalizer) Counters(raw RawRecord) ChargeCounters {
	return ChargeCounters{
		KWHPositive:    parseFloat(raw.KWHPositive),
		KWHNegative:    parseFloat(raw.KWHNegative),
		LastShuntVolts: parseFloat(raw.LastShuntVolts),
	}
}

// Percent maps a battery voltage onto [0, 100] with clamping.
func (c Calibration) Percent(volts float64) float64 {
	span := c.MaxVolts - c.MinVolts
	if span <= 0 {
		return 0
	}
	pct := (volts - c.MinVolts) / span * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (n *Normalizer) applyFloor(load float64) float64 {
	if !n.floor.Enabled {
		return load
	}
	if load < n.floor.MinWatts {
		return n.floor.MinWatts
	}
	if n.floor.MaxWatts > 0 && load > n.floor.MaxWatts {
		return n.floor.MaxWatts
	}
	return load
}

// timestamp prefers the date+time embedded in the record, parsed as local
// calendar fields, and falls back to the wall clock silently.
func (n *Normalizer) timestamp(fields []string) time.Time {
	date := strings.TrimSpace(field(fields, FieldDate))
	clock := strings.TrimSpace(field(fields, FieldTime))
	if date != "" && clock != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, time.Local); err == nil {
			return t
		}
	}
	return n.now()
}

func field(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

// parseFloat is the fail-soft numeric parser used for every upstream
// field: any input that does not parse as a number yields 0.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
