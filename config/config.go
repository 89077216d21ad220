package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Window     WindowConfig     `mapstructure:"window"`
	Battery    BatteryConfig    `mapstructure:"battery"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	API        APIConfig        `mapstructure:"api"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Database   DatabaseConfig   `mapstructure:"database"`
}

type UpstreamConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// Strict surfaces fetch failures instead of masking them with
	// synthetic fallback data.
	Strict   bool `mapstructure:"strict"`
	Fallback bool `mapstructure:"fallback"`
}

type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

type WindowConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type BatteryConfig struct {
	// Pack selects a calibration preset ("12v" or "24v"); explicit
	// min/max volts override it.
	Pack          string  `mapstructure:"pack"`
	MinVolts      float64 `mapstructure:"min_volts"`
	MaxVolts      float64 `mapstructure:"max_volts"`
	DoubleVoltage bool    `mapstructure:"double_voltage"`

	LoadFloorEnabled bool    `mapstructure:"load_floor_enabled"`
	LoadFloorMin     float64 `mapstructure:"load_floor_min_w"`
	LoadFloorMax     float64 `mapstructure:"load_floor_max_w"`
}

type AccountingConfig struct {
	// Strategy is "counter" (upstream running totals) or "integration"
	// (local power*time integration).
	Strategy string `mapstructure:"strategy"`
}

type APIConfig struct {
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
	WebPath string `mapstructure:"web_path"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/solar-dashboard")
	}

	// Set defaults
	viper.SetDefault("upstream.url", "http://192.168.1.80/data.json")
	viper.SetDefault("upstream.timeout", "10s")
	viper.SetDefault("upstream.attempts", 3)
	viper.SetDefault("upstream.retry_delay", "2s")
	viper.SetDefault("upstream.strict", false)
	viper.SetDefault("upstream.fallback", true)
	viper.SetDefault("poller.interval", "30s")
	viper.SetDefault("poller.enabled", true)
	viper.SetDefault("window.capacity", 96)
	viper.SetDefault("battery.pack", "12v")
	viper.SetDefault("battery.min_volts", 0)
	viper.SetDefault("battery.max_volts", 0)
	viper.SetDefault("battery.double_voltage", false)
	viper.SetDefault("battery.load_floor_enabled", false)
	viper.SetDefault("battery.load_floor_min_w", 100)
	viper.SetDefault("battery.load_floor_max_w", 200)
	viper.SetDefault("accounting.strategy", "counter")
	viper.SetDefault("api.port", 8045)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.web_path", "./web")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "solar")
	viper.SetDefault("mqtt.client_id", "solar-dashboard")
	viper.SetDefault("database.path", "./solar.db")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Calibration resolves the battery section into a (min, max, double)
// triple, preferring explicit volts over the pack preset.
func (b BatteryConfig) Calibration() (minVolts, maxVolts float64, double bool) {
	if b.MinVolts > 0 && b.MaxVolts > b.MinVolts {
		return b.MinVolts, b.MaxVolts, b.DoubleVoltage
	}
	if b.Pack == "24v" {
		return 20, 29, b.DoubleVoltage
	}
	return 10.5, 14.4, b.DoubleVoltage
}
