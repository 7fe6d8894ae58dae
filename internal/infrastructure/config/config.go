package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic IR Learn.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig       `yaml:"site"`
	Store       StoreConfig      `yaml:"store"`
	Learning    LearningConfig   `yaml:"learning"`
	CodeSource  CodeSourceConfig `yaml:"code_source"`
	Controllers []string         `yaml:"controllers"`
	Emitter     EmitterConfig    `yaml:"emitter"`
	Database    DatabaseConfig   `yaml:"database"`
	MQTT        MQTTConfig       `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig   `yaml:"influxdb"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// StoreConfig locates the device snapshot file.
type StoreConfig struct {
	Path            string `yaml:"path"`
	CreateIfMissing bool   `yaml:"create_if_missing"`
}

// LearningConfig contains capture and reconciliation timing.
// Durations are whole seconds except Debounce, which is milliseconds.
type LearningConfig struct {
	AckTimeout        int `yaml:"ack_timeout"`
	ReconcileDeadline int `yaml:"reconcile_deadline"`
	PollInterval      int `yaml:"poll_interval"`
	Debounce          int `yaml:"debounce_ms"`
}

// CodeSourceConfig locates the externally-owned learned-code files.
type CodeSourceConfig struct {
	Dir         string `yaml:"dir"`
	FilePattern string `yaml:"file_pattern"`
	Watch       bool   `yaml:"watch"`
}

// EmitterConfig controls entity configuration output.
type EmitterConfig struct {
	OutputDir          string `yaml:"output_dir"`
	RemoteEntityPrefix string `yaml:"remote_entity_prefix"`
	UniqueIDPrefix     string `yaml:"unique_id_prefix"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_STORE_PATH, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
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
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Store: StoreConfig{
			Path:            "./data/irlearn/devices.json",
			CreateIfMissing: true,
		},
		Learning: LearningConfig{
			AckTimeout:        10,
			ReconcileDeadline: 60,
			PollInterval:      2,
			Debounce:          250,
		},
		CodeSource: CodeSourceConfig{
			Dir:         "./data/storage",
			FilePattern: "broadlink_remote_%s_codes",
			Watch:       true,
		},
		Emitter: EmitterConfig{
			OutputDir:          "./data/irlearn/generated",
			RemoteEntityPrefix: "remote.",
			UniqueIDPrefix:     "irlearn_",
		},
		Database: DatabaseConfig{
			Path:        "./data/irlearn/history.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-irlearn",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_CODE_SOURCE_DIR"); v != "" {
		cfg.CodeSource.Dir = v
	}
	if v := os.Getenv("GRAYLOGIC_EMITTER_OUTPUT_DIR"); v != "" {
		cfg.Emitter.OutputDir = v
	}
	if v := os.Getenv("GRAYLOGIC_CONTROLLERS"); v != "" {
		cfg.Controllers = splitList(v)
	}
	if v := os.Getenv("GRAYLOGIC_LEARNING_RECONCILE_DEADLINE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Learning.ReconcileDeadline = n
		}
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Site.ID == "" {
		errs = append(errs, errors.New("site.id is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	if c.Learning.AckTimeout <= 0 {
		errs = append(errs, errors.New("learning.ack_timeout must be positive"))
	}
	if c.Learning.ReconcileDeadline <= 0 {
		errs = append(errs, errors.New("learning.reconcile_deadline must be positive"))
	}
	if c.Learning.PollInterval <= 0 {
		errs = append(errs, errors.New("learning.poll_interval must be positive"))
	} else if c.Learning.ReconcileDeadline > 0 && c.Learning.PollInterval > c.Learning.ReconcileDeadline {
		errs = append(errs, errors.New("learning.poll_interval must not exceed learning.reconcile_deadline"))
	}
	if c.Learning.Debounce < 0 {
		errs = append(errs, errors.New("learning.debounce_ms must not be negative"))
	}

	if c.CodeSource.Dir == "" {
		errs = append(errs, errors.New("code_source.dir is required"))
	}
	if strings.Count(c.CodeSource.FilePattern, "%s") != 1 {
		errs = append(errs, errors.New("code_source.file_pattern must contain exactly one %s"))
	}

	seen := make(map[string]struct{}, len(c.Controllers))
	for _, ctrl := range c.Controllers {
		if strings.TrimSpace(ctrl) == "" {
			errs = append(errs, errors.New("controllers must not contain empty entries"))
			continue
		}
		if _, dup := seen[ctrl]; dup {
			errs = append(errs, fmt.Errorf("controllers: duplicate entry %q", ctrl))
		}
		seen[ctrl] = struct{}{}
	}

	if c.Emitter.OutputDir == "" {
		errs = append(errs, errors.New("emitter.output_dir is required"))
	}

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1, or 2"))
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, errors.New("mqtt.broker.port must be between 1 and 65535"))
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, errors.New("influxdb.bucket is required when influxdb is enabled"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}
	return nil
}

// AckTimeout returns the learn directive acknowledgement timeout.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Learning.AckTimeout) * time.Second
}

// ReconcileDeadline returns how long a pending capture may wait for its code.
func (c *Config) ReconcileDeadline() time.Duration {
	return time.Duration(c.Learning.ReconcileDeadline) * time.Second
}

// PollInterval returns the reconciliation tick interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Learning.PollInterval) * time.Second
}

// Debounce returns the code source watcher debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Learning.Debounce) * time.Millisecond
}
