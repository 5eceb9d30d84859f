package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akosnad/alarm-node/internal/entity"
)

// Config is the root configuration structure for the alarm node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT              MQTTConfig            `yaml:"mqtt"`
	AvailabilityTopic string                `yaml:"availability_topic"`
	DiscoveryPrefix   string                `yaml:"discovery_prefix"`
	OTA               OTAConfig             `yaml:"ota"`
	Alarm             AlarmConfig           `yaml:"alarm"`
	Sensor            SensorConfig          `yaml:"sensor"`
	Database          DatabaseConfig        `yaml:"database"`
	Telemetry         TelemetryConfig       `yaml:"telemetry"`
	Logging           LoggingConfig         `yaml:"logging"`
	GPIO              GPIOConfig            `yaml:"gpio"`
	Devices           []entity.DeviceConfig `yaml:"devices"`
	Entities          []entity.EntityConfig `yaml:"entities"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds; the backoff doubles from InitialDelay up to MaxDelay.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// OTAConfig contains firmware update settings.
type OTAConfig struct {
	// Topic is the MQTT topic firmware chunks arrive on.
	// Update status is published to <Topic>/status.
	Topic string `yaml:"topic"`

	// ChunkTimeout is the maximum gap between chunks (seconds) before an
	// in-flight update is abandoned.
	ChunkTimeout int `yaml:"chunk_timeout"`

	// SlotsDir is the directory holding the two firmware slots and the
	// active-slot pointer.
	SlotsDir string `yaml:"slots_dir"`

	// Verifier selects how received images are verified before the boot
	// slot is switched.
	Verifier VerifierConfig `yaml:"verifier"`
}

// VerifierConfig selects the OTA image verification mechanism.
type VerifierConfig struct {
	// Type is "minisign" (signature) or "sha256" (checksum).
	Type string `yaml:"type"`

	// PublicKey is the base64 minisign public key. Required for minisign.
	PublicKey string `yaml:"public_key"`
}

// AlarmConfig contains alarm state machine settings.
// These are boot defaults; runtime overrides arrive over MQTT and are
// persisted in the database.
type AlarmConfig struct {
	// EntryDelay is the pending window in seconds before a sensor trip
	// escalates to triggered. Zero triggers immediately.
	EntryDelay int `yaml:"entry_delay"`

	// ArmingTimeout is the exit window in seconds between an arm command
	// and the armed state. Zero arms immediately.
	ArmingTimeout int `yaml:"arming_timeout"`

	// SirenPin, when set, is a GPIO output driven high while triggered.
	SirenPin *int `yaml:"siren_pin"`
}

// SensorConfig contains sensor poll loop settings.
type SensorConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// DebounceMs is how long a level must hold before it is published.
	// Zero disables debouncing.
	DebounceMs int `yaml:"debounce_ms"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TelemetryConfig contains InfluxDB telemetry settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// GPIOConfig contains hardware binding settings.
type GPIOConfig struct {
	// Chip is the gpiochip device name (e.g. "gpiochip0").
	Chip string `yaml:"chip"`

	// Simulated replaces the kernel GPIO chip with an in-memory binder.
	// Useful on hosts without the configured chip.
	Simulated bool `yaml:"simulated"`

	// PullUp enables internal pull-ups on sensor input lines.
	PullUp bool `yaml:"pull_up"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ALARMNODE_SECTION_KEY
// For example: ALARMNODE_MQTT_HOST, ALARMNODE_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Entity and device lists have no defaults; an empty entity set is a
// validation error.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "alarm-node",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		AvailabilityTopic: "alarm/availability",
		DiscoveryPrefix:   "homeassistant",
		OTA: OTAConfig{
			Topic:        "alarm/ota",
			ChunkTimeout: 30,
			SlotsDir:     "./data/firmware",
			Verifier: VerifierConfig{
				Type: "sha256",
			},
		},
		Alarm: AlarmConfig{
			EntryDelay:    30,
			ArmingTimeout: 90,
		},
		Sensor: SensorConfig{
			PollIntervalMs: 250,
		},
		Database: DatabaseConfig{
			Path:        "./data/alarmnode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ALARMNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("ALARMNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ALARMNODE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ALARMNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ALARMNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("ALARMNODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// OTA
	if v := os.Getenv("ALARMNODE_OTA_SLOTS_DIR"); v != "" {
		cfg.OTA.SlotsDir = v
	}
	if v := os.Getenv("ALARMNODE_OTA_PUBLIC_KEY"); v != "" {
		cfg.OTA.Verifier.PublicKey = v
	}

	// Telemetry
	if v := os.Getenv("ALARMNODE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Entity-level validation (duplicate topics, pins, identifiers) is the
// entity compiler's job; this only checks infrastructure settings.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.AvailabilityTopic == "" {
		errs = append(errs, "availability_topic is required")
	}
	if c.DiscoveryPrefix == "" {
		errs = append(errs, "discovery_prefix is required")
	}

	if c.OTA.Topic == "" {
		errs = append(errs, "ota.topic is required")
	}
	if c.OTA.ChunkTimeout < 1 {
		errs = append(errs, "ota.chunk_timeout must be at least 1 second")
	}
	switch c.OTA.Verifier.Type {
	case "sha256":
	case "minisign":
		if c.OTA.Verifier.PublicKey == "" {
			errs = append(errs, "ota.verifier.public_key is required for minisign")
		}
	default:
		errs = append(errs, "ota.verifier.type must be sha256 or minisign")
	}

	if c.Alarm.EntryDelay < 0 {
		errs = append(errs, "alarm.entry_delay must not be negative")
	}
	if c.Alarm.ArmingTimeout < 0 {
		errs = append(errs, "alarm.arming_timeout must not be negative")
	}

	if c.Sensor.PollIntervalMs < 1 {
		errs = append(errs, "sensor.poll_interval_ms must be at least 1")
	}
	if c.Sensor.DebounceMs < 0 {
		errs = append(errs, "sensor.debounce_ms must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Token == "" {
			errs = append(errs, "telemetry.token is required when telemetry is enabled (set ALARMNODE_TELEMETRY_TOKEN)")
		}
	}

	if len(c.Entities) == 0 {
		errs = append(errs, "at least one entity must be declared")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// EntityDocument returns the entity/device portion of the configuration
// in the form consumed by the entity compiler.
func (c *Config) EntityDocument() entity.Document {
	return entity.Document{
		Devices:  c.Devices,
		Entities: c.Entities,
	}
}

// PollInterval returns the sensor poll cadence as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sensor.PollIntervalMs) * time.Millisecond
}

// DebounceWindow returns the sensor debounce window as a Duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Sensor.DebounceMs) * time.Millisecond
}

// EntryDelay returns the alarm entry delay as a Duration.
func (c *Config) EntryDelay() time.Duration {
	return time.Duration(c.Alarm.EntryDelay) * time.Second
}

// ArmingTimeout returns the alarm exit window as a Duration.
func (c *Config) ArmingTimeout() time.Duration {
	return time.Duration(c.Alarm.ArmingTimeout) * time.Second
}

// ChunkTimeout returns the OTA chunk timeout as a Duration.
func (c *Config) ChunkTimeout() time.Duration {
	return time.Duration(c.OTA.ChunkTimeout) * time.Second
}
