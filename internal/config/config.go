// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yeonjoon13/swim-adsb/internal/flights"
	"github.com/yeonjoon13/swim-adsb/internal/model"
	"github.com/yeonjoon13/swim-adsb/internal/topics"
)

const (
	// ConfigPathEnvVar overrides the config file path.
	ConfigPathEnvVar = "CONFIG_PATH"
	DefaultPath      = "config.yml"
)

var ErrNotYAML = errors.New("config files must have a .yml or .yaml extension")

type Config struct {
	ADSB    ADSBConfig    `yaml:"ADSB"`
	OpenSky OpenSkyConfig `yaml:"OPENSKY"`
	Kafka   KafkaConfig   `yaml:"KAFKA"`
	Relay   RelayConfig   `yaml:"RELAY"`
	Metrics MetricsConfig `yaml:"METRICS"`
	Logging LoggingConfig `yaml:"LOGGING"`
}

type ADSBConfig struct {
	TrafficTimespanInDays int    `yaml:"TRAFFIC_TIMESPAN_IN_DAYS"`
	IntervalInSec         int    `yaml:"INTERVAL_IN_SEC"`
	WindowPolicy          string `yaml:"WINDOW_POLICY"`
	ResolveAirportNames   bool   `yaml:"RESOLVE_AIRPORT_NAMES"`
	// Cities maps a display name to its airport ICAO code.
	Cities map[string]string `yaml:"CITIES"`
}

// Interval is the publish interval of every topic.
func (c ADSBConfig) Interval() time.Duration {
	return time.Duration(c.IntervalInSec) * time.Second
}

type OpenSkyConfig struct {
	BaseURL        string  `yaml:"BASE_URL"`
	TimeoutInSec   int     `yaml:"TIMEOUT_IN_SEC"`
	Username       string  `yaml:"USERNAME"`
	Password       string  `yaml:"PASSWORD"`
	RequestsPerSec float64 `yaml:"REQUESTS_PER_SEC"`
}

func (c OpenSkyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutInSec) * time.Second
}

type KafkaConfig struct {
	Brokers           []string `yaml:"BROKERS"`
	CreateTopics      bool     `yaml:"CREATE_TOPICS"`
	Partitions        int      `yaml:"PARTITIONS"`
	ReplicationFactor int      `yaml:"REPLICATION_FACTOR"`
}

type RelayConfig struct {
	Addr    string `yaml:"ADDR"`
	GroupID string `yaml:"GROUP_ID"`
}

type MetricsConfig struct {
	// Addr of the /metrics listener, empty disables it.
	Addr string `yaml:"ADDR"`
}

type LoggingConfig struct {
	Level  string `yaml:"LEVEL"`
	Format string `yaml:"FORMAT"`
}

// Default returns the configuration used for any key the file omits.
func Default() *Config {
	return &Config{
		ADSB: ADSBConfig{
			TrafficTimespanInDays: 1,
			IntervalInSec:         5,
			WindowPolicy:          "rolling",
		},
		OpenSky: OpenSkyConfig{
			BaseURL:      "https://opensky-network.org/api",
			TimeoutInSec: 30,
		},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			CreateTopics:      true,
			Partitions:        1,
			ReplicationFactor: 1,
		},
		Relay: RelayConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Path returns the config path from the flag value, CONFIG_PATH or the default.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadYAML unmarshals the file into dst, keeping the values of absent keys.
func loadYAML[T any](path string, dst *T) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
	default:
		return fmt.Errorf("%w: %s", ErrNotYAML, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Kafka.Brokers = brokers
	}
	if v := os.Getenv("OPENSKY_USERNAME"); v != "" {
		c.OpenSky.Username = v
	}
	if v := os.Getenv("OPENSKY_PASSWORD"); v != "" {
		c.OpenSky.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ADSB.TrafficTimespanInDays < 0 {
		errs = append(errs, fmt.Errorf("ADSB.TRAFFIC_TIMESPAN_IN_DAYS must not be negative, got %d", c.ADSB.TrafficTimespanInDays))
	}
	if c.ADSB.IntervalInSec <= 0 {
		errs = append(errs, fmt.Errorf("ADSB.INTERVAL_IN_SEC must be positive, got %d", c.ADSB.IntervalInSec))
	}
	if _, err := flights.ParseWindowPolicy(c.ADSB.WindowPolicy); err != nil {
		errs = append(errs, fmt.Errorf("ADSB.WINDOW_POLICY: %w", err))
	}
	if len(c.ADSB.Cities) == 0 {
		errs = append(errs, errors.New("ADSB.CITIES must list at least one airport"))
	}
	seen := make(map[string]string, len(c.ADSB.Cities))
	for city, code := range c.ADSB.Cities {
		if strings.TrimSpace(code) == "" {
			errs = append(errs, fmt.Errorf("ADSB.CITIES.%s has no airport code", city))
		}
		name := topics.TopicName(model.Arrivals, city)
		if other, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("ADSB.CITIES %q and %q map to the same topic %s", other, city, name))
		}
		seen[name] = city
	}

	if c.OpenSky.BaseURL == "" {
		errs = append(errs, errors.New("OPENSKY.BASE_URL is required"))
	}
	if c.OpenSky.TimeoutInSec <= 0 {
		errs = append(errs, fmt.Errorf("OPENSKY.TIMEOUT_IN_SEC must be positive, got %d", c.OpenSky.TimeoutInSec))
	}
	if c.OpenSky.RequestsPerSec < 0 {
		errs = append(errs, errors.New("OPENSKY.REQUESTS_PER_SEC must not be negative"))
	}

	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA.BROKERS must list at least one broker"))
	}
	if c.Kafka.Partitions < 1 {
		errs = append(errs, errors.New("KAFKA.PARTITIONS must be at least 1"))
	}
	if c.Kafka.ReplicationFactor < 1 {
		errs = append(errs, errors.New("KAFKA.REPLICATION_FACTOR must be at least 1"))
	}

	return errors.Join(errs...)
}
