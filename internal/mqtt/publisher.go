package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"deye-monitor/internal/inverter"
)

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	deviceID    string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	DeviceID    string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "deye"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logrus.Warnf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logrus.Info("MQTT connected")
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
		deviceID:    cfg.DeviceID,
		enabled:     true,
	}, nil
}

func (p *Publisher) Publish(snap *inverter.Snapshot) error {
	if !p.enabled {
		return nil
	}
	if snap.Err != "" {
		return nil
	}

	// Publish individual values
	topics := map[string]interface{}{
		"pv_power":          snap.PVTotalPower,
		"pv1_power":         snap.PV1Power,
		"pv2_power":         snap.PV2Power,
		"battery_voltage":   snap.BatteryVoltage,
		"battery_power":     snap.BatteryPower,
		"battery_soc":       snap.BatterySOC,
		"battery_status":    snap.BatteryStatus,
		"grid_voltage":      snap.GridVoltage,
		"grid_power":        snap.GridPower,
		"grid_status":       snap.GridStatus,
		"load_power":        snap.LoadPower,
		"gen_power":         snap.GeneratorPower,
		"dc_temp":           snap.DCTemp,
		"heatsink_temp":     snap.HeatsinkTemp,
		"daily_pv":          snap.DailyPV,
		"daily_grid_import": snap.DailyGridImport,
		"daily_load":        snap.DailyLoad,
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/%s/%s", p.topicPrefix, p.deviceID, name)
		payload := fmt.Sprintf("%v", value)
		token := p.client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			logrus.Warnf("failed to publish to %s: %v", topic, token.Error())
		}
	}

	// Publish full snapshot as JSON
	statusJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/%s/status", p.topicPrefix, p.deviceID)
	token := p.client.Publish(statusTopic, 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish status: %w", token.Error())
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
	}{
		{"PV Power", "pv_power", "W", "power"},
		{"Battery SOC", "battery_soc", "%", "battery"},
		{"Battery Voltage", "battery_voltage", "V", "voltage"},
		{"Battery Power", "battery_power", "W", "power"},
		{"Grid Voltage", "grid_voltage", "V", "voltage"},
		{"Grid Power", "grid_power", "W", "power"},
		{"Load Power", "load_power", "W", "power"},
		{"Generator Power", "gen_power", "W", "power"},
		{"Heatsink Temperature", "heatsink_temp", "°C", "temperature"},
		{"Daily PV", "daily_pv", "kWh", "energy"},
		{"Daily Grid Import", "daily_grid_import", "kWh", "energy"},
		{"Daily Load", "daily_load", "kWh", "energy"},
	}

	for _, sensor := range sensors {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", p.deviceID, sensor.ID)

		config := map[string]interface{}{
			"name":                fmt.Sprintf("Deye %s", sensor.Name),
			"unique_id":           fmt.Sprintf("%s_%s", p.deviceID, sensor.ID),
			"state_topic":         fmt.Sprintf("%s/%s/%s", p.topicPrefix, p.deviceID, sensor.ID),
			"unit_of_measurement": sensor.Unit,
			"device": map[string]interface{}{
				"identifiers":  []string{p.deviceID + "_inverter"},
				"name":         "Deye Hybrid Inverter",
				"manufacturer": "Deye",
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
