package upstream

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"solar-dashboard/internal/telemetry"
)

// MockSource synthesizes plausible records when the real endpoint is
// unreachable, so the dashboard always has something to render. The
// generator is deterministic for a given seed.
type MockSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	ticks int
}

func NewMockSource(seed int64) *MockSource {
	return &MockSource{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

func (m *MockSource) Name() string { return "mock" }

// Fetch never fails. Values drift around a mild daytime charge profile.
func (m *MockSource) Fetch(_ context.Context) (telemetry.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ticks++
	now := m.now()

	battVolts := 12.1 + m.rng.Float64()*1.6
	solarVolts := 16 + m.rng.Float64()*6
	amps := m.rng.Float64() * 8
	if hour := now.Hour(); hour < 7 || hour > 18 {
		solarVolts = m.rng.Float64() * 2
		amps = 0
	}
	shunt := -0.5 - m.rng.Float64()*2.5

	fields := make([]string, 11)
	fields[telemetry.FieldDate] = now.Format("2006-01-02")
	fields[telemetry.FieldTime] = now.Format("15:04:05")
	fields[telemetry.FieldBatteryVoltage] = fmt.Sprintf("%.2f", battVolts)
	fields[telemetry.FieldSolarVoltage] = fmt.Sprintf("%.2f", solarVolts)
	fields[telemetry.FieldChargingAmps] = fmt.Sprintf("%.2f", amps)

	return telemetry.RawRecord{
		Fields:         fields,
		KWHPositive:    fmt.Sprintf("%.2f", float64(m.ticks)*0.01),
		KWHNegative:    fmt.Sprintf("%.2f", float64(m.ticks)*-0.005),
		LastShuntVolts: fmt.Sprintf("%.2f", shunt),
	}, nil
}
