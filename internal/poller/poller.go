package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solar-dashboard/internal/telemetry"
	"solar-dashboard/internal/upstream"
)

// ReadingStore persists normalized readings. Satisfied by storage.Database.
type ReadingStore interface {
	SaveReading(r telemetry.Reading, counters telemetry.ChargeCounters, synthetic bool) error
}

// StatsPublisher pushes each tick's result outward. Satisfied by
// mqtt.Publisher.
type StatsPublisher interface {
	Publish(r telemetry.Reading, stats telemetry.StatsSnapshot) error
}

// Poller drives the fetch -> normalize -> append -> aggregate cycle on a
// timer. Ticks run strictly one at a time: a slow fetch makes the ticker
// drop overlapping ticks rather than run them concurrently.
type Poller struct {
	client     *upstream.Client
	fallback   upstream.Source
	store      ReadingStore
	publisher  StatsPublisher
	aggregator *telemetry.Aggregator

	interval time.Duration
	enabled  bool
	strict   bool

	mu          sync.RWMutex
	normalizer  *telemetry.Normalizer
	window      *telemetry.Window
	snapshot    *telemetry.StatsSnapshot
	lastReading *telemetry.Reading
	counters    telemetry.ChargeCounters
	synthetic   bool
	lastErr     error
	isPolling   bool
}

type Config struct {
	Client     *upstream.Client
	Fallback   upstream.Source
	Store      ReadingStore
	Publisher  StatsPublisher
	Normalizer *telemetry.Normalizer
	Aggregator *telemetry.Aggregator

	WindowCapacity int
	Interval       time.Duration
	Enabled        bool

	// Strict disables the synthetic fallback and keeps the last good
	// data on screen instead.
	Strict bool
}

func New(cfg Config) *Poller {
	return &Poller{
		client:     cfg.Client,
		fallback:   cfg.Fallback,
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		normalizer: cfg.Normalizer,
		aggregator: cfg.Aggregator,
		window:     telemetry.NewWindow(cfg.WindowCapacity),
		interval:   cfg.Interval,
		enabled:    cfg.Enabled,
		strict:     cfg.Strict,
	}
}

func (p *Poller) Start(ctx context.Context) error {
	if !p.enabled {
		log.Println("Poller is disabled")
		return nil
	}

	p.mu.Lock()
	p.isPolling = true
	p.mu.Unlock()

	log.Printf("Starting poller with interval %s", p.interval)

	// Initial tick
	p.Tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Poller stopped")
			p.mu.Lock()
			p.isPolling = false
			p.mu.Unlock()
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one full cycle. It is also called directly by the one-shot
// CLI command.
func (p *Poller) Tick(ctx context.Context) {
	raw, synthetic, err := p.fetch(ctx)

	p.mu.Lock()
	p.lastErr = err
	if err != nil {
		p.mu.Unlock()
		log.Printf("Tick skipped: %v", err)
		return
	}

	reading := p.normalizer.Normalize(raw)
	counters := p.normalizer.Counters(raw)
	p.window.Append(reading)

	stats, aggErr := p.aggregator.Aggregate(p.window.Readings(), counters)
	if aggErr != nil {
		p.lastErr = aggErr
		p.mu.Unlock()
		log.Printf("Aggregation failed: %v", aggErr)
		return
	}

	p.snapshot = &stats
	p.lastReading = &reading
	p.counters = counters
	p.synthetic = synthetic
	store := p.store
	publisher := p.publisher
	p.mu.Unlock()

	if store != nil {
		if err := store.SaveReading(reading, counters, synthetic); err != nil {
			log.Printf("Error saving reading: %v", err)
		}
	}

	if publisher != nil {
		if err := publisher.Publish(reading, stats); err != nil {
			log.Printf("Error publishing: %v", err)
		}
	}

	log.Printf("Tick: solar=%.0fW load=%.0fW battery=%.1f%% (source=%s)",
		reading.SolarPower, reading.InverterLoad, reading.BatteryPercent, sourceLabel(synthetic))
}

// fetch tries the real endpoint and falls back to the synthetic source
// so the dashboard always has something to render; strict mode surfaces
// the failure instead.
func (p *Poller) fetch(ctx context.Context) (telemetry.RawRecord, bool, error) {
	raw, err := p.client.Fetch(ctx)
	if err == nil {
		return raw, false, nil
	}

	if p.strict || p.fallback == nil {
		return telemetry.RawRecord{}, false, err
	}

	log.Printf("Upstream unavailable, using synthetic data: %v", err)
	raw, mockErr := p.fallback.Fetch(ctx)
	if mockErr != nil {
		return telemetry.RawRecord{}, false, fmt.Errorf("fallback failed: %w", mockErr)
	}
	return raw, true, nil
}

func sourceLabel(synthetic bool) string {
	if synthetic {
		return "mock"
	}
	return "http"
}

// Snapshot returns the latest stats, or nil before the first tick.
func (p *Poller) Snapshot() *telemetry.StatsSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// LatestReading returns the last normalized reading, or nil.
func (p *Poller) LatestReading() *telemetry.Reading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastReading
}

// WindowReadings returns a copy of the current window, oldest first.
func (p *Poller) WindowReadings() []telemetry.Reading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.window.Readings()
}

// Counters returns the most recent upstream charge counters.
func (p *Poller) Counters() telemetry.ChargeCounters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters
}

// Synthetic reports whether the latest tick rendered fallback data.
func (p *Poller) Synthetic() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.synthetic
}

func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Poller) IsPolling() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isPolling
}

// UpdateUpstreamConfig points the poller at a new endpoint after a
// successful test fetch against it.
func (p *Poller) UpdateUpstreamConfig(ctx context.Context, url string, timeout time.Duration) error {
	log.Printf("Updating upstream configuration: %s", url)

	testClient := upstream.NewClient(upstream.ClientConfig{
		URL:      url,
		Timeout:  timeout,
		Attempts: 1,
	})
	if _, err := testClient.Fetch(ctx); err != nil {
		log.Printf("Failed to fetch with new config: %v", err)
		return fmt.Errorf("failed to fetch with new configuration: %w", err)
	}

	p.client.SetEndpoint(url, timeout)
	log.Printf("Upstream configuration updated successfully")
	return nil
}

// UpdateBatteryConfig swaps the normalizer calibration at runtime. Window
// contents are kept; old readings retain the percentages they were built
// with.
func (p *Poller) UpdateBatteryConfig(cal telemetry.Calibration, floor telemetry.LoadFloor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.normalizer = telemetry.NewNormalizer(cal, floor)
	log.Printf("Battery calibration updated: %.1f-%.1fV (double=%v)", cal.MinVolts, cal.MaxVolts, cal.DoubleVoltage)
}
