// Package config loads the static YAML configuration file read once at
// process start. Nothing re-reads it; every component receives its settings
// explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses human-readable YAML values like "30m" or "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full process configuration.
type Config struct {
	HTTPAddr        string   `yaml:"http_addr"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	SnapshotDir     string   `yaml:"snapshot_dir"`

	Database DatabaseConfig `yaml:"database"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Kafka    KafkaConfig    `yaml:"kafka"`

	Sources    []SourceConfig   `yaml:"sources"`
	Weather    WeatherConfig    `yaml:"weather"`
	Congestion CongestionConfig `yaml:"congestion"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// WorkflowConfig addresses the external classification/extraction service.
// One base URL; each workflow has its own API key.
type WorkflowConfig struct {
	BaseURL        string   `yaml:"base_url"`
	User           string   `yaml:"user"`
	Timeout        Duration `yaml:"timeout"`
	ClassifyAPIKey string   `yaml:"classify_api_key"`
	AnalyzeAPIKey  string   `yaml:"analyze_api_key"`
	WeatherAPIKey  string   `yaml:"weather_api_key"`
}

// KafkaConfig enables the optional mirror of persisted events to a topic.
// Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether the mirror should be constructed.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// SourceConfig configures one provincial feed worker.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Province string `yaml:"province"`

	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Cookie string `yaml:"cookie"`
	Path   string `yaml:"path"`

	Interval   Duration `yaml:"interval"`
	MaxRetries int      `yaml:"max_retries"`
	RetryDelay Duration `yaml:"retry_delay"`

	// Classify routes the source through the workflow bridge; bypass
	// sources supply type and category themselves.
	Classify  bool `yaml:"classify"`
	BatchSize int  `yaml:"batch_size"`

	// DedupGate pre-checks (province, publish_time) existence before
	// classification.
	DedupGate bool `yaml:"dedup_gate"`

	// CategoryRule: "classifier", "heuristic", or "realtime".
	CategoryRule      string `yaml:"category_rule"`
	NoIncidentKeyword string `yaml:"no_incident_keyword"`
}

// WeatherConfig configures the meteorological alert worker.
type WeatherConfig struct {
	Enabled   bool     `yaml:"enabled"`
	ListURL   string   `yaml:"list_url"`
	BaseURL   string   `yaml:"base_url"`
	Interval  Duration `yaml:"interval"`
	CacheSize int      `yaml:"cache_size"`
}

// CongestionConfig configures the section and toll-station ranking workers.
type CongestionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	SectionURL string   `yaml:"section_url"`
	StationURL string   `yaml:"station_url"`
	Interval   Duration `yaml:"interval"`
	MaxRetries int      `yaml:"max_retries"`
	RetryDelay Duration `yaml:"retry_delay"`
}

// Load reads and validates the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	applySourceDefaults(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: Duration(10 * time.Second),
		SnapshotDir:     "files",
		Database: DatabaseConfig{
			Port:     5432,
			MaxConns: 4,
		},
		Workflow: WorkflowConfig{
			User:    "highway-etl",
			Timeout: Duration(60 * time.Second),
		},
		Weather: WeatherConfig{
			Interval:  Duration(5 * time.Minute),
			CacheSize: 1000,
		},
		Congestion: CongestionConfig{
			Interval:   Duration(5 * time.Minute),
			MaxRetries: 5,
			RetryDelay: Duration(10 * time.Second),
		},
	}
}

func applySourceDefaults(cfg *Config) {
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Name == "" {
			src.Name = src.Type
		}
		if src.Interval == 0 {
			src.Interval = Duration(30 * time.Minute)
		}
		if src.MaxRetries == 0 {
			src.MaxRetries = 100
		}
		if src.RetryDelay == 0 {
			src.RetryDelay = Duration(10 * time.Second)
		}
		if src.BatchSize == 0 {
			src.BatchSize = 15
		}
		if src.CategoryRule == "" {
			if src.Classify {
				src.CategoryRule = "classifier"
			} else {
				src.CategoryRule = "realtime"
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}

	names := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.Type == "" {
			return fmt.Errorf("source %q: type is required", src.Name)
		}
		if src.Province == "" && src.Type != "file" {
			return fmt.Errorf("source %q: province is required", src.Name)
		}
		name := src.Name
		if name == "" {
			name = src.Type
		}
		if names[name] {
			return fmt.Errorf("duplicate source name %q", name)
		}
		names[name] = true

		if src.Classify && c.Workflow.BaseURL == "" {
			return fmt.Errorf("source %q requires workflow.base_url", name)
		}
		switch src.CategoryRule {
		case "", "classifier", "heuristic", "realtime":
		default:
			return fmt.Errorf("source %q: unknown category_rule %q", name, src.CategoryRule)
		}
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	if c.Weather.Enabled && c.Weather.ListURL == "" {
		return errors.New("weather.list_url is required when weather is enabled")
	}
	if c.Congestion.Enabled && (c.Congestion.SectionURL == "" || c.Congestion.StationURL == "") {
		return errors.New("congestion.section_url and congestion.station_url are required when congestion is enabled")
	}
	return nil
}
