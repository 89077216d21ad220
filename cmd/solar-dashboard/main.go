package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solar-dashboard/config"
	"solar-dashboard/internal/api"
	"solar-dashboard/internal/mqtt"
	"solar-dashboard/internal/poller"
	"solar-dashboard/internal/storage"
	"solar-dashboard/internal/telemetry"
	"solar-dashboard/internal/upstream"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "solar-dashboard",
		Short: "Solar/battery dashboard",
		Long:  "A dashboard that polls a charge-controller logger endpoint and renders solar/battery statistics",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(testCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildPoller(cfg *config.Config, db *storage.Database, publisher *mqtt.Publisher) *poller.Poller {
	client := upstream.NewClient(upstream.ClientConfig{
		URL:        cfg.Upstream.URL,
		Timeout:    cfg.Upstream.Timeout,
		Attempts:   cfg.Upstream.Attempts,
		RetryDelay: cfg.Upstream.RetryDelay,
	})

	minV, maxV, double := cfg.Battery.Calibration()
	normalizer := telemetry.NewNormalizer(
		telemetry.Calibration{MinVolts: minV, MaxVolts: maxV, DoubleVoltage: double},
		telemetry.LoadFloor{
			Enabled:  cfg.Battery.LoadFloorEnabled,
			MinWatts: cfg.Battery.LoadFloorMin,
			MaxWatts: cfg.Battery.LoadFloorMax,
		},
	)

	var fallback upstream.Source
	if cfg.Upstream.Fallback {
		fallback = upstream.NewMockSource(time.Now().UnixNano())
	}

	pollerCfg := poller.Config{
		Client:         client,
		Fallback:       fallback,
		Normalizer:     normalizer,
		Aggregator:     telemetry.NewAggregator(telemetry.NewChargeAccounting(cfg.Accounting.Strategy)),
		WindowCapacity: cfg.Window.Capacity,
		Interval:       cfg.Poller.Interval,
		Enabled:        cfg.Poller.Enabled,
		Strict:         cfg.Upstream.Strict,
	}
	if db != nil {
		pollerCfg.Store = db
	}
	if publisher != nil {
		pollerCfg.Publisher = publisher
	}

	return poller.New(pollerCfg)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring service",
		Long:  "Start the poller, API server, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Create database
			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			log.Printf("Database opened at %s", cfg.Database.Path)

			// Create MQTT publisher
			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
				publisher.PublishHomeAssistantDiscovery()
			}

			p := buildPoller(cfg, db, publisher)

			// Setup context for graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Handle signals
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// Start poller in goroutine
			go func() {
				if err := p.Start(ctx); err != nil {
					log.Printf("Poller error: %v", err)
				}
			}()

			// Start API server if enabled
			if cfg.API.Enabled {
				server := api.NewServer(api.ServerConfig{
					Port:       cfg.API.Port,
					Poller:     p,
					Database:   db,
					WebPath:    cfg.API.WebPath,
					Config:     cfg,
					ConfigPath: configFile,
				})

				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("Solar Dashboard started. Press Ctrl+C to stop.")

			// Wait for signal
			<-sigChan
			log.Println("Shutting down...")
			cancel()
			if publisher != nil {
				publisher.Close()
			}

			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and normalize one reading",
		Long:  "Fetch the logger endpoint once, normalize the payload, and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			p := buildPoller(cfg, nil, nil)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			p.Tick(ctx)
			if err := p.LastError(); err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}

			out := map[string]interface{}{
				"reading":   p.LatestReading(),
				"stats":     p.Snapshot(),
				"counters":  p.Counters(),
				"synthetic": p.Synthetic(),
			}
			output, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(output))

			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connection to the logger endpoint",
		Long:  "Fetch the upstream endpoint once and report which payload shape it returned",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Printf("Testing connection to %s...\n", cfg.Upstream.URL)

			client := upstream.NewClient(upstream.ClientConfig{
				URL:      cfg.Upstream.URL,
				Timeout:  cfg.Upstream.Timeout,
				Attempts: 1,
			})

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.Timeout+5*time.Second)
			defer cancel()

			raw, err := client.Fetch(ctx)
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}

			fmt.Println("Connection SUCCESS!")
			fmt.Printf("\nSensor record: %d fields\n", len(raw.Fields))
			fmt.Printf("  kwh_positive:  %s\n", raw.KWHPositive)
			fmt.Printf("  kwh_negative:  %s\n", raw.KWHNegative)
			fmt.Printf("  shunt voltage: %s\n", raw.LastShuntVolts)

			minV, maxV, double := cfg.Battery.Calibration()
			normalizer := telemetry.NewNormalizer(
				telemetry.Calibration{MinVolts: minV, MaxVolts: maxV, DoubleVoltage: double},
				telemetry.LoadFloor{},
			)
			reading := normalizer.Normalize(raw)
			fmt.Printf("\nNormalized:\n")
			fmt.Printf("  Battery: %.2fV (%.1f%%)\n", reading.BatteryVoltage, reading.BatteryPercent)
			fmt.Printf("  Solar:   %.2fV x %.2fA = %.1fW\n", reading.SolarVoltage, reading.ChargingAmps, reading.SolarPower)
			fmt.Printf("  Load:    %.1fW\n", reading.InverterLoad)

			return nil
		},
	}
}
