package telemetry

import (
	"errors"
	"math"
)

// ErrEmptyWindow is returned when aggregation is requested over a window
// with no readings.
var ErrEmptyWindow = errors.New("telemetry: window is empty")

// solarNoiseFloorWatts filters out night-time sensor noise when summing
// generated solar energy.
const solarNoiseFloorWatts = 10

// StatsSnapshot is the derived aggregate the dashboard renders. It is
// recomputed wholesale on every window update and has no identity across
// updates.
type StatsSnapshot struct {
	ChargedWh    int64 `json:"charged_wh"`
	DischargedWh int64 `json:"discharged_wh"`

	CurrentPowerW int64 `json:"current_power_w"`
	CurrentLoadW  int64 `json:"current_load_w"`
	PeakPowerW    int64 `json:"peak_power_w"`

	BatteryPercent float64 `json:"battery_percent"`

	SolarGenerationKWh float64 `json:"solar_generation_kwh"`
	NetChargeKWh       float64 `json:"net_charge_kwh"`
}

// ChargeAccounting produces the daily charged/discharged energy figures,
// in watt-hours. The service supported two approaches over its lifetime
// and both remain selectable.
type ChargeAccounting interface {
	Energy(window []Reading, counters ChargeCounters) (chargedWh, dischargedWh float64)
	Name() string
}

// CounterAccounting trusts the upstream running totals: the device
// integrates continuously and is more accurate than 15-minute samples.
// This is the default.
type CounterAccounting struct{}

func (CounterAccounting) Name() string { return "counter" }

func (CounterAccounting) Energy(_ []Reading, counters ChargeCounters) (float64, float64) {
	return counters.KWHPositive * 1000, math.Abs(counters.KWHNegative) * 1000
}

// IntegrationAccounting integrates power*elapsed-hours between
// consecutive readings, bucketed into charge and discharge by the sign of
// the instantaneous net power (solar minus load).
type IntegrationAccounting struct{}

func (IntegrationAccounting) Name() string { return "integration" }

func (IntegrationAccounting) Energy(window []Reading, _ ChargeCounters) (float64, float64) {
	var charged, discharged float64
	for i := 1; i < len(window); i++ {
		hours := window[i].Timestamp.Sub(window[i-1].Timestamp).Hours()
		if hours <= 0 {
			continue
		}
		net := window[i].SolarPower - window[i].InverterLoad
		if net >= 0 {
			charged += net * hours
		} else {
			discharged += -net * hours
		}
	}
	return charged, discharged
}

// NewChargeAccounting resolves a configured strategy name, defaulting to
// counter accounting for anything unrecognized.
func NewChargeAccounting(name string) ChargeAccounting {
	if name == "integration" {
		return IntegrationAccounting{}
	}
	return CounterAccounting{}
}

// Aggregator reduces a window plus the latest cumulative counters into a
// StatsSnapshot.
type Aggregator struct {
	accounting ChargeAccounting
}

func NewAggregator(accounting ChargeAccounting) *Aggregator {
	if accounting == nil {
		accounting = CounterAccounting{}
	}
	return &Aggregator{accounting: accounting}
}

// Aggregate computes a snapshot from a non-empty window, oldest first.
func (a *Aggregator) Aggregate(window []Reading, counters ChargeCounters) (StatsSnapshot, error) {
	if len(window) == 0 {
		return StatsSnapshot{}, ErrEmptyWindow
	}

	latest := window[len(window)-1]

	var peak float64
	var generated float64
	for _, r := range window {
		if r.SolarPower > peak {
			peak = r.SolarPower
		}
		if r.SolarPower > solarNoiseFloorWatts {
			// Per-minute-equivalent cadence assumed; dividing the
			// watt sum by 60000 approximates kWh.
			generated += r.SolarPower
		}
	}

	charged, discharged := a.accounting.Energy(window, counters)

	return StatsSnapshot{
		ChargedWh:          roundWatts(charged),
		DischargedWh:       roundWatts(discharged),
		CurrentPowerW:      roundWatts(latest.SolarPower),
		CurrentLoadW:       roundWatts(latest.InverterLoad),
		PeakPowerW:         roundWatts(peak),
		BatteryPercent:     latest.BatteryPercent,
		SolarGenerationKWh: round2(generated / 60000),
		NetChargeKWh:       round2(counters.KWHPositive + counters.KWHNegative),
	}, nil
}

func roundWatts(v float64) int64 {
	return int64(math.Round(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
