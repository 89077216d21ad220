package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"solar-dashboard/internal/telemetry"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const deviceID = "charge-controller"

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// Publish pushes the latest reading and snapshot: one topic per value,
// plus the full snapshot retained as JSON.
func (p *Publisher) Publish(r telemetry.Reading, stats telemetry.StatsSnapshot) error {
	if !p.enabled {
		return nil
	}

	topics := map[string]interface{}{
		"battery_voltage": r.BatteryVoltage,
		"solar_voltage":   r.SolarVoltage,
		"charging_amps":   r.ChargingAmps,
		"battery_percent": r.BatteryPercent,
		"solar_power":     r.SolarPower,
		"inverter_load":   r.InverterLoad,
		"charged_wh":      stats.ChargedWh,
		"discharged_wh":   stats.DischargedWh,
		"peak_power":      stats.PeakPowerW,
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/%s/%s", p.topicPrefix, deviceID, name)
		payload := fmt.Sprintf("%v", value)
		token := p.client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v", topic, token.Error())
		}
	}

	statusJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/%s/stats", p.topicPrefix, deviceID)
	token := p.client.Publish(statusTopic, 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish stats: %w", token.Error())
	}

	return nil
}

func (p *Publisher) PublishHomeAssistantDiscovery() error {
	if !p.enabled {
		return nil
	}

	sensors := []struct {
		Name        string
		ID          string
		Unit        string
		DeviceClass string
		StateTopic  string
	}{
		{"Battery Voltage", "battery_voltage", "V", "voltage", "battery_voltage"},
		{"Solar Voltage", "solar_voltage", "V", "voltage", "solar_voltage"},
		{"Charging Current", "charging_amps", "A", "current", "charging_amps"},
		{"Battery", "battery_percent", "%", "battery", "battery_percent"},
		{"Solar Power", "solar_power", "W", "power", "solar_power"},
		{"Inverter Load", "inverter_load", "W", "power", "inverter_load"},
		{"Energy Charged", "charged_wh", "Wh", "energy", "charged_wh"},
		{"Energy Discharged", "discharged_wh", "Wh", "energy", "discharged_wh"},
	}

	for _, sensor := range sensors {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/solar_dashboard/%s/config", sensor.ID)

		config := map[string]interface{}{
			"name":                fmt.Sprintf("Solar %s", sensor.Name),
			"unique_id":           fmt.Sprintf("solar_dashboard_%s", sensor.ID),
			"state_topic":         fmt.Sprintf("%s/%s/%s", p.topicPrefix, deviceID, sensor.StateTopic),
			"unit_of_measurement": sensor.Unit,
			"device": map[string]interface{}{
				"identifiers":  []string{"solar_dashboard"},
				"name":         "Solar Dashboard",
				"manufacturer": "EPEVER",
				"model":        "Tracer logger",
			},
		}

		if sensor.DeviceClass != "" {
			config["device_class"] = sensor.DeviceClass
		}

		payload, _ := json.Marshal(config)
		token := p.client.Publish(discoveryTopic, 0, true, payload)
		token.Wait()
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
