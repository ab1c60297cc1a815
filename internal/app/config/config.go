package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/AegisWatch/internal/adapters/cloudwatch"
	"github.com/ghalamif/AegisWatch/internal/adapters/watermark"
	"github.com/ghalamif/AegisWatch/internal/app/heartbeat"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// DefaultPath is the parameter file the relay writes next to the plugin.
const DefaultPath = "param.json"

// MaxRetryDelay leaves room for the two heartbeats around a retry sleep
// inside the relay timeout.
const MaxRetryDelay = 25 * time.Second

// Config keeps the relay's camelCase pollInterval key so an existing
// param.json loads unchanged.
type Config struct {
	AccessKeyID    string `json:"access_key_id" yaml:"access_key_id"`
	SecretKey      string `json:"secret_key" yaml:"secret_key"`
	PollIntervalMS int    `json:"pollInterval" yaml:"pollInterval"`
	LogFile        string `json:"log_file" yaml:"log_file"`
	ReportLogFile  string `json:"report_log_file" yaml:"report_log_file"`
	LogLevel       string `json:"log_level" yaml:"log_level"`

	Kind         string   `json:"kind" yaml:"kind"`
	Regions      []string `json:"regions" yaml:"regions"`
	MetricPrefix string   `json:"metric_prefix" yaml:"metric_prefix"`
	Source       string   `json:"source" yaml:"source"`
	StatusStore  string   `json:"status_store" yaml:"status_store"`
	StateDir     string   `json:"state_dir" yaml:"state_dir"`

	RetryCount            int     `json:"retry_count" yaml:"retry_count"`
	RetryDelayMS          int     `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	KeepaliveIntervalMS   int     `json:"keepalive_interval_ms" yaml:"keepalive_interval_ms"`
	LookbackMinutes       int     `json:"lookback_minutes" yaml:"lookback_minutes"`
	BackfillBufferMinutes int     `json:"backfill_buffer_minutes" yaml:"backfill_buffer_minutes"`
	MaxBackfillHours      int     `json:"max_backfill_hours" yaml:"max_backfill_hours"`
	FetchConcurrency      int     `json:"fetch_concurrency" yaml:"fetch_concurrency"`
	RequestsPerSecond     float64 `json:"requests_per_second" yaml:"requests_per_second"`

	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Timescale TimescaleConfig `json:"timescale" yaml:"timescale"`
}

type MetricsConfig struct {
	// Addr is empty to disable the /metrics server.
	Addr string `json:"addr" yaml:"addr"`
}

type TimescaleConfig struct {
	ConnString string `json:"conn_string" yaml:"conn_string"`
	Table      string `json:"table" yaml:"table"`
}

// Load reads path as YAML when the extension says so and as JSON with
// comments otherwise.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when every key is omitted.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 1000
	}
	if c.Kind == "" {
		c.Kind = "elb"
	}
	if c.StatusStore == "" {
		c.StatusStore = watermark.DefaultBasename
	}
	if c.RetryDelayMS == 0 {
		c.RetryDelayMS = 5000
	}
	if c.KeepaliveIntervalMS == 0 {
		c.KeepaliveIntervalMS = int(heartbeat.DefaultInterval / time.Millisecond)
	}
	if c.LookbackMinutes == 0 {
		c.LookbackMinutes = 20
	}
	if c.BackfillBufferMinutes == 0 {
		c.BackfillBufferMinutes = 20
	}
	if c.MaxBackfillHours == 0 {
		c.MaxBackfillHours = 14 * 24
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = 4
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 20
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "aegis_watch_samples"
	}
}

func (c *Config) validate() error {
	if c.PollIntervalMS < 0 {
		return fmt.Errorf("pollInterval must be positive")
	}
	if !validKind(c.Kind) {
		return fmt.Errorf("kind %q is not one of %v", c.Kind, cloudwatch.KindNames())
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0 (0 retries forever)")
	}
	if d := c.RetryDelay(); d <= 0 || d >= MaxRetryDelay {
		return fmt.Errorf("retry_delay_ms must be in (0, %d)", MaxRetryDelay.Milliseconds())
	}
	if d := c.KeepaliveInterval(); d <= 0 || d >= heartbeat.RelayTimeout {
		return fmt.Errorf("keepalive_interval_ms must be in (0, %d)", heartbeat.RelayTimeout.Milliseconds())
	}
	if c.LookbackMinutes < 0 || c.BackfillBufferMinutes < 0 || c.MaxBackfillHours < 0 {
		return fmt.Errorf("lookback, backfill buffer and max backfill must not be negative")
	}
	if c.FetchConcurrency < 0 {
		return fmt.Errorf("fetch_concurrency must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if c.SecretKey != "" && c.AccessKeyID == "" {
		return fmt.Errorf("secret_key set without access_key_id")
	}
	return nil
}

func validKind(kind string) bool {
	for _, k := range cloudwatch.KindNames() {
		if k == kind {
			return true
		}
	}
	return false
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.KeepaliveIntervalMS) * time.Millisecond
}

// StorePath is where the watermark snapshot lives.
func (c *Config) StorePath() string {
	return watermark.Path(c.StateDir, c.StatusStore)
}

func (c *Config) Policy() ports.Policy {
	return ports.Policy{
		RetryCount:        c.RetryCount,
		RetryDelay:        c.RetryDelay(),
		KeepaliveInterval: c.KeepaliveInterval(),
		PollInterval:      c.PollInterval(),
		Lookback:          time.Duration(c.LookbackMinutes) * time.Minute,
		BackfillBuffer:    time.Duration(c.BackfillBufferMinutes) * time.Minute,
		MaxBackfill:       time.Duration(c.MaxBackfillHours) * time.Hour,
		FetchConcurrency:  c.FetchConcurrency,
	}
}
