package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"solar-dashboard/config"
	"solar-dashboard/internal/poller"
	"solar-dashboard/internal/storage"
	"solar-dashboard/internal/telemetry"
	"solar-dashboard/internal/upstream"
)

const shapeABody = `{
	"first": ["2025-01-01","12:00:00","12.30","40.00","0","1.00","-1.20","10","MPPT","","0"],
	"second": [],
	"kwh_positive": "1.25",
	"kwh_negative": "-0.75",
	"last_shunt_voltage": "-2.5"
}`

func writeTestTemplates(t *testing.T) string {
	t.Helper()
	webPath := t.TempDir()
	templates := filepath.Join(webPath, "templates")
	if err := os.MkdirAll(templates, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(webPath, "static"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"dashboard.html", "settings.html"} {
		if err := os.WriteFile(filepath.Join(templates, name), []byte("<html>{{ .title }}</html>"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return webPath
}

func newTestServer(t *testing.T, upstreamURL string) (*Server, *poller.Poller) {
	t.Helper()

	client := upstream.NewClient(upstream.ClientConfig{
		URL:        upstreamURL,
		Attempts:   1,
		RetryDelay: time.Millisecond,
	})
	p := poller.New(poller.Config{
		Client:         client,
		Fallback:       upstream.NewMockSource(7),
		Normalizer:     telemetry.NewNormalizer(telemetry.Calibration12V, telemetry.LoadFloor{}),
		Aggregator:     telemetry.NewAggregator(telemetry.CounterAccounting{}),
		WindowCapacity: 96,
		Interval:       time.Hour,
		Enabled:        true,
	})

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Upstream.URL = upstreamURL
	cfg.Upstream.Timeout = 10 * time.Second
	cfg.Upstream.Attempts = 1
	cfg.Battery.Pack = "12v"

	s := NewServer(ServerConfig{
		Port:       0,
		Poller:     p,
		Database:   db,
		WebPath:    writeTestTemplates(t),
		Config:     cfg,
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
	})
	return s, p
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(w, req)
	return w
}

func TestStatsEndpoint(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shapeABody))
	}))
	defer upstreamSrv.Close()

	s, p := newTestServer(t, upstreamSrv.URL)

	t.Run("returns 503 before the first tick", func(t *testing.T) {
		if w := get(s, "/api/v1/stats"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})

	t.Run("returns the snapshot after a tick", func(t *testing.T) {
		p.Tick(context.Background())

		w := get(s, "/api/v1/stats")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var body struct {
			Stats     telemetry.StatsSnapshot `json:"stats"`
			Synthetic bool                    `json:"synthetic"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.Stats.ChargedWh != 1250 || body.Stats.DischargedWh != 750 {
			t.Errorf("expected 1250/750 Wh, got %d/%d", body.Stats.ChargedWh, body.Stats.DischargedWh)
		}
		if body.Synthetic {
			t.Error("expected synthetic=false")
		}
	})

	t.Run("window lists the readings oldest first", func(t *testing.T) {
		w := get(s, "/api/v1/window")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var readings []telemetry.Reading
		if err := json.Unmarshal(w.Body.Bytes(), &readings); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(readings) == 0 {
			t.Fatal("expected at least one reading")
		}
		if readings[0].BatteryVoltage != 12.30 {
			t.Errorf("expected battery voltage 12.30, got %f", readings[0].BatteryVoltage)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shapeABody))
	}))
	defer upstreamSrv.Close()

	s, _ := newTestServer(t, upstreamSrv.URL)

	w := get(s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status=healthy, got %v", body["status"])
	}
}

func TestDashboardPage(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shapeABody))
	}))
	defer upstreamSrv.Close()

	s, _ := newTestServer(t, upstreamSrv.URL)

	for _, path := range []string{"/", "/dashboard", "/settings"} {
		if w := get(s, path); w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestBatteryConfigEndpoint(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shapeABody))
	}))
	defer upstreamSrv.Close()

	s, p := newTestServer(t, upstreamSrv.URL)

	t.Run("GET resolves the preset pair", func(t *testing.T) {
		w := get(s, "/api/v1/config/battery")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var body BatteryConfigResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.MinVolts != 10.5 || body.MaxVolts != 14.4 {
			t.Errorf("expected 10.5-14.4, got %f-%f", body.MinVolts, body.MaxVolts)
		}
	})

	t.Run("PUT switches calibration", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/config/battery",
			jsonBody(`{"pack":"24v","double_voltage":true}`))
		req.Header.Set("Content-Type", "application/json")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
		}

		p.Tick(context.Background())
		reading := p.LatestReading()
		if reading == nil {
			t.Fatal("expected a reading")
		}
		if reading.BatteryVoltage != 24.60 {
			t.Errorf("expected doubled voltage 24.60, got %f", reading.BatteryVoltage)
		}
	})

	t.Run("PUT rejects an unknown pack", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/config/battery",
			jsonBody(`{"pack":"48v"}`))
		req.Header.Set("Content-Type", "application/json")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
