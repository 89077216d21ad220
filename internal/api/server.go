package api

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"solar-dashboard/config"
	"solar-dashboard/internal/poller"
	"solar-dashboard/internal/storage"
	"solar-dashboard/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

type Server struct {
	router      *gin.Engine
	server      *http.Server
	poller      *poller.Poller
	db          *storage.Database
	port        int
	webPath     string
	config      *config.Config
	configPath  string
	configMutex sync.RWMutex
}

type ServerConfig struct {
	Port       int
	Poller     *poller.Poller
	Database   *storage.Database
	WebPath    string
	Config     *config.Config
	ConfigPath string
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Default web path
	webPath := cfg.WebPath
	if webPath == "" {
		webPath = "./web"
	}

	s := &Server{
		router:     router,
		poller:     cfg.Poller,
		db:         cfg.Database,
		port:       cfg.Port,
		webPath:    webPath,
		config:     cfg.Config,
		configPath: cfg.ConfigPath,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Load HTML templates
	tmpl := template.Must(template.ParseGlob(s.webPath + "/templates/*.html"))
	s.router.SetHTMLTemplate(tmpl)

	// Serve static files
	s.router.Static("/static", s.webPath+"/static")

	// Dashboard routes
	s.router.GET("/", s.dashboardHandler)
	s.router.GET("/dashboard", s.dashboardHandler)
	s.router.GET("/settings", s.settingsHandler)
	s.router.HEAD("/", s.dashboardHandler)
	s.router.HEAD("/dashboard", s.dashboardHandler)
	s.router.HEAD("/settings", s.settingsHandler)

	// Health check
	s.router.GET("/health", s.healthHandler)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.GET("/stats", s.statsHandler)
		api.GET("/window", s.windowHandler)
		api.GET("/readings", s.readingsHandler)
		api.GET("/readings/latest", s.latestReadingHandler)
		api.GET("/stats/daily", s.dailyStatsHandler)

		// Config routes
		api.GET("/config/upstream", s.getUpstreamConfigHandler)
		api.PUT("/config/upstream", s.updateUpstreamConfigHandler)
		api.GET("/config/battery", s.getBatteryConfigHandler)
		api.PUT("/config/battery", s.updateBatteryConfigHandler)
	}
}

func (s *Server) dashboardHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"title": "Solar Dashboard",
	})
}

func (s *Server) settingsHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "settings.html", gin.H{
		"title": "Solar Dashboard - Settings",
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	synthetic := s.poller.Synthetic()
	var lastError string
	if err := s.poller.LastError(); err != nil {
		lastError = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"polling":    s.poller.IsPolling(),
		"synthetic":  synthetic,
		"last_error": lastError,
		"timestamp":  time.Now(),
	})
}

func (s *Server) statsHandler(c *gin.Context) {
	stats := s.poller.Snapshot()
	if stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No data available yet",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"synthetic": s.poller.Synthetic(),
	})
}

func (s *Server) windowHandler(c *gin.Context) {
	readings := s.poller.WindowReadings()
	if len(readings) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No data available yet",
		})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) readingsHandler(c *gin.Context) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	limitStr := c.DefaultQuery("limit", "100")

	var limit int
	fmt.Sscanf(limitStr, "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		readings, err := s.db.GetReadingsByRange(from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, readings)
		return
	}

	readings, err := s.db.GetReadingsWithLimit(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) latestReadingHandler(c *gin.Context) {
	reading := s.poller.LatestReading()
	if reading == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No data available yet"})
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (s *Server) dailyStatsHandler(c *gin.Context) {
	dateStr := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
		return
	}

	stats, err := s.db.GetDailyStats(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// UpstreamConfigResponse represents the upstream endpoint configuration
type UpstreamConfigResponse struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Attempts       int    `json:"attempts"`
	Strict         bool   `json:"strict"`
}

// UpstreamConfigRequest represents a configuration update request
type UpstreamConfigRequest struct {
	URL            string `json:"url" binding:"required"`
	TimeoutSeconds int    `json:"timeout_seconds" binding:"required,min=1,max=60"`
}

type BatteryConfigResponse struct {
	Pack          string  `json:"pack"`
	MinVolts      float64 `json:"min_volts"`
	MaxVolts      float64 `json:"max_volts"`
	DoubleVoltage bool    `json:"double_voltage"`
}

type BatteryConfigRequest struct {
	Pack          string  `json:"pack"`
	MinVolts      float64 `json:"min_volts"`
	MaxVolts      float64 `json:"max_volts"`
	DoubleVoltage bool    `json:"double_voltage"`
}

func (s *Server) getUpstreamConfigHandler(c *gin.Context) {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()

	c.JSON(http.StatusOK, UpstreamConfigResponse{
		URL:            s.config.Upstream.URL,
		TimeoutSeconds: int(s.config.Upstream.Timeout.Seconds()),
		Attempts:       s.config.Upstream.Attempts,
		Strict:         s.config.Upstream.Strict,
	})
}

// Update upstream configuration after a test fetch against the new
// endpoint succeeds.
func (s *Server) updateUpstreamConfigHandler(c *gin.Context) {
	var req UpstreamConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if err := s.poller.UpdateUpstreamConfig(c.Request.Context(), req.URL, timeout); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Configuration test failed: %v", err),
		})
		return
	}

	s.configMutex.Lock()
	s.config.Upstream.URL = req.URL
	s.config.Upstream.Timeout = timeout
	s.configMutex.Unlock()

	if err := s.saveConfigToFile(); err != nil {
		log.Printf("Warning: Failed to save config to file: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"message": "Configuration applied but not persisted to file",
			"warning": err.Error(),
		})
		return
	}

	log.Printf("Upstream configuration updated: %s", req.URL)

	c.JSON(http.StatusOK, gin.H{
		"message": "Configuration updated successfully",
	})
}

func (s *Server) getBatteryConfigHandler(c *gin.Context) {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()

	cfg := s.config.Battery
	minV, maxV, double := cfg.Calibration()
	c.JSON(http.StatusOK, BatteryConfigResponse{
		Pack:          cfg.Pack,
		MinVolts:      minV,
		MaxVolts:      maxV,
		DoubleVoltage: double,
	})
}

func (s *Server) updateBatteryConfigHandler(c *gin.Context) {
	var req BatteryConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pack := strings.ToLower(strings.TrimSpace(req.Pack))
	if pack == "" {
		pack = "12v"
	}
	if pack != "12v" && pack != "24v" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pack must be 12v or 24v"})
		return
	}
	if req.MinVolts != 0 || req.MaxVolts != 0 {
		if req.MaxVolts <= req.MinVolts {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_volts must exceed min_volts"})
			return
		}
	}

	s.configMutex.Lock()
	s.config.Battery.Pack = pack
	s.config.Battery.MinVolts = req.MinVolts
	s.config.Battery.MaxVolts = req.MaxVolts
	s.config.Battery.DoubleVoltage = req.DoubleVoltage
	battery := s.config.Battery
	s.configMutex.Unlock()

	minV, maxV, double := battery.Calibration()
	s.poller.UpdateBatteryConfig(
		telemetry.Calibration{MinVolts: minV, MaxVolts: maxV, DoubleVoltage: double},
		telemetry.LoadFloor{
			Enabled:  battery.LoadFloorEnabled,
			MinWatts: battery.LoadFloorMin,
			MaxWatts: battery.LoadFloorMax,
		},
	)

	if err := s.saveConfigToFile(); err != nil {
		log.Printf("Warning: Failed to save config to file: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"message": "Configuration applied but not persisted to file",
			"warning": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Battery configuration updated successfully",
	})
}

// Save configuration to YAML file
func (s *Server) saveConfigToFile() error {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()

	// Determine config file path
	configPath := s.configPath
	if configPath == "" {
		configPath = "config.yaml"
	}

	viper.SetConfigFile(configPath)

	// Update values
	viper.Set("upstream.url", s.config.Upstream.URL)
	viper.Set("upstream.timeout", s.config.Upstream.Timeout.String())
	viper.Set("upstream.strict", s.config.Upstream.Strict)
	viper.Set("battery.pack", s.config.Battery.Pack)
	viper.Set("battery.min_volts", s.config.Battery.MinVolts)
	viper.Set("battery.max_volts", s.config.Battery.MaxVolts)
	viper.Set("battery.double_voltage", s.config.Battery.DoubleVoltage)

	// Write back to file
	return viper.WriteConfig()
}
