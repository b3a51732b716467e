package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Inverter  InverterConfig  `mapstructure:"inverter"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Battery   BatteryConfig   `mapstructure:"battery"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Outage    OutageConfig    `mapstructure:"outage"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	API       APIConfig       `mapstructure:"api"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type InverterConfig struct {
	IP        string        `mapstructure:"ip"`
	Port      int           `mapstructure:"port"`
	Serial    uint32        `mapstructure:"serial"`
	Transport string        `mapstructure:"transport"` // solarman or modbus-tcp
	SlaveID   uint8         `mapstructure:"slave_id"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// Family: "" means auto-detect, otherwise three-phase or
	// single-phase-hybrid.
	Family string `mapstructure:"family"`

	// Capability overrides; nil means detect.
	HasBattery   *bool `mapstructure:"has_battery"`
	HasGenerator *bool `mapstructure:"has_generator"`
	PVStrings    int   `mapstructure:"pv_strings"`
}

type PollerConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	CachePath string        `mapstructure:"cache_path"`
	CacheAge  time.Duration `mapstructure:"cache_max_age"`
}

type BatteryConfig struct {
	CapacityKWh    float64       `mapstructure:"capacity_kwh"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	BufferSize     int           `mapstructure:"buffer_size"`
}

type MonitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	StatePath string        `mapstructure:"state_path"`
}

type OutageConfig struct {
	Provider   string         `mapstructure:"provider"`
	Group      string         `mapstructure:"group"`
	Interval   time.Duration  `mapstructure:"interval"`
	EventsPath string         `mapstructure:"events_path"`
	Windows    []WindowConfig `mapstructure:"windows"`
}

type WindowConfig struct {
	StartHour int `mapstructure:"start_hour"`
	StartMin  int `mapstructure:"start_min"`
	EndHour   int `mapstructure:"end_hour"`
	EndMin    int `mapstructure:"end_min"`
}

type TelegramConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Token   string  `mapstructure:"token"`
	ChatIDs []int64 `mapstructure:"chat_ids"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	DeviceID    string `mapstructure:"device_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type WeatherConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Latitude  float64       `mapstructure:"latitude"`
	Longitude float64       `mapstructure:"longitude"`
	Interval  time.Duration `mapstructure:"interval"`
}

type StatsConfig struct {
	PhaseStatsPath   string `mapstructure:"phase_stats_path"`
	PhaseHistoryPath string `mapstructure:"phase_history_path"`
	GridImportPath   string `mapstructure:"grid_import_path"`
	GeneratorPath    string `mapstructure:"generator_path"`
}

type GeneratorConfig struct {
	FuelLPerHour     float64 `mapstructure:"fuel_l_per_hour"`
	OilIntervalHours float64 `mapstructure:"oil_interval_hours"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/deye-monitor")
	}

	// Set defaults
	viper.SetDefault("inverter.ip", "192.168.1.100")
	viper.SetDefault("inverter.port", 8899)
	viper.SetDefault("inverter.serial", 0)
	viper.SetDefault("inverter.transport", "solarman")
	viper.SetDefault("inverter.slave_id", 1)
	viper.SetDefault("inverter.timeout", "10s")
	viper.SetDefault("inverter.family", "")
	viper.SetDefault("inverter.pv_strings", 0)
	viper.SetDefault("poller.interval", "1m")
	viper.SetDefault("poller.cache_path", "./data/snapshot.json")
	viper.SetDefault("poller.cache_max_age", "5m")
	viper.SetDefault("battery.capacity_kwh", 16)
	viper.SetDefault("battery.sample_interval", "10s")
	viper.SetDefault("battery.buffer_size", 6)
	viper.SetDefault("monitor.interval", "2m")
	viper.SetDefault("monitor.state_path", "./data/monitor_state.json")
	viper.SetDefault("outage.provider", "none")
	viper.SetDefault("outage.group", "")
	viper.SetDefault("outage.interval", "1m")
	viper.SetDefault("outage.events_path", "./data/outages.json")
	viper.SetDefault("telegram.enabled", false)
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("api.port", 8045)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "deye")
	viper.SetDefault("mqtt.client_id", "deye-monitor")
	viper.SetDefault("mqtt.device_id", "deye")
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.path", "./data/deye.db")
	viper.SetDefault("database.retention", "2160h")
	viper.SetDefault("weather.enabled", false)
	viper.SetDefault("weather.latitude", 0)
	viper.SetDefault("weather.longitude", 0)
	viper.SetDefault("weather.interval", "15m")
	viper.SetDefault("stats.phase_stats_path", "./data/phase_stats.json")
	viper.SetDefault("stats.phase_history_path", "./data/phase_history.json")
	viper.SetDefault("stats.grid_import_path", "./data/grid_import.json")
	viper.SetDefault("stats.generator_path", "./data/generator.json")
	viper.SetDefault("generator.fuel_l_per_hour", 0)
	viper.SetDefault("generator.oil_interval_hours", 0)

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
