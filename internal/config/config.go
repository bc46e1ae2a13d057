package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gokaycavdar/go-nightguard/internal/logging"
)

// ErrMissingCredentials is returned by RequireMeraki when the dashboard
// credentials are not configured.
var ErrMissingCredentials = errors.New("meraki credentials missing")

type Config struct {
	Meraki     MerakiConfig     `yaml:"meraki"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        logging.Config   `yaml:"log"`
}

type MerakiConfig struct {
	APIKey    string `yaml:"api_key"`
	OrgID     string `yaml:"org_id"`
	NetworkID string `yaml:"network_id"`
	BaseURL   string `yaml:"base_url"`
}

type AnalysisConfig struct {
	BaselineNights int     `yaml:"baseline_nights"`
	LoiteringHours float64 `yaml:"loitering_hours"`
	OutputDir      string  `yaml:"output_dir"`
	CollectDays    int     `yaml:"collect_days"`
}

// LoiteringDuration converts LoiteringHours into a duration.
func (a AnalysisConfig) LoiteringDuration() time.Duration {
	return time.Duration(a.LoiteringHours * float64(time.Hour))
}

// ClickHouseConfig is optional; an empty Addr disables the archive.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Addr != "" }

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the optional YAML file at path, overlays the environment
// (including a .env file in the working directory) and applies defaults.
// An empty path means environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Meraki.APIKey, "MERAKI_DASHBOARD_API_KEY")
	setString(&c.Meraki.OrgID, "MERAKI_ORG_ID")
	setString(&c.Meraki.NetworkID, "MERAKI_NETWORK_ID")
	setString(&c.Meraki.BaseURL, "MERAKI_BASE_URL")

	setString(&c.HTTP.Addr, "NIGHTGUARD_HTTP_ADDR")
	setString(&c.Analysis.OutputDir, "NIGHTGUARD_OUTPUT_DIR")
	setString(&c.Log.Level, "NIGHTGUARD_LOG_LEVEL")
	setString(&c.Log.Format, "NIGHTGUARD_LOG_FORMAT")

	if v := os.Getenv("NIGHTGUARD_BASELINE_NIGHTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NIGHTGUARD_BASELINE_NIGHTS: %w", err)
		}
		c.Analysis.BaselineNights = n
	}
	if v := os.Getenv("NIGHTGUARD_LOITERING_HOURS"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("NIGHTGUARD_LOITERING_HOURS: %w", err)
		}
		c.Analysis.LoiteringHours = h
	}

	setString(&c.ClickHouse.Addr, "CLICKHOUSE_ADDR")
	setString(&c.ClickHouse.Database, "CLICKHOUSE_DB")
	setString(&c.ClickHouse.Username, "CLICKHOUSE_USER")
	setString(&c.ClickHouse.Password, "CLICKHOUSE_PASS")
	setString(&c.ClickHouse.Table, "CLICKHOUSE_TABLE")
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Meraki.BaseURL == "" {
		c.Meraki.BaseURL = "https://api.meraki.com/api/v1"
	}
	if c.Analysis.BaselineNights == 0 {
		c.Analysis.BaselineNights = 7
	}
	if c.Analysis.LoiteringHours == 0 {
		c.Analysis.LoiteringHours = 8
	}
	if c.Analysis.OutputDir == "" {
		c.Analysis.OutputDir = "."
	}
	if c.Analysis.CollectDays == 0 {
		c.Analysis.CollectDays = 30
	}
	if c.ClickHouse.Enabled() {
		if c.ClickHouse.Database == "" {
			c.ClickHouse.Database = "default"
		}
		if c.ClickHouse.Username == "" {
			c.ClickHouse.Username = "default"
		}
		if c.ClickHouse.Table == "" {
			c.ClickHouse.Table = "wireless_connections"
		}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}

	def := logging.DefaultConfig()
	if c.Log.Level == "" {
		c.Log.Level = def.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Format
	}
	if c.Log.Output == "" {
		c.Log.Output = def.Output
	}
	if c.Log.Component == "" {
		c.Log.Component = def.Component
	}
}

func (c *Config) validate() error {
	if c.Analysis.BaselineNights < 1 {
		return fmt.Errorf("analysis.baseline_nights must be at least 1, got %d", c.Analysis.BaselineNights)
	}
	if c.Analysis.LoiteringHours < 0 {
		return fmt.Errorf("analysis.loitering_hours must not be negative, got %g", c.Analysis.LoiteringHours)
	}
	if c.Analysis.CollectDays < 1 {
		return fmt.Errorf("analysis.collect_days must be at least 1, got %d", c.Analysis.CollectDays)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log config: unknown format %q", c.Log.Format)
	}
	return nil
}

// RequireMeraki reports whether the dashboard can be queried. Offline
// commands (analyze, history) never call it.
func (c *Config) RequireMeraki() error {
	if c.Meraki.APIKey == "" {
		return fmt.Errorf("%w: MERAKI_DASHBOARD_API_KEY is not set", ErrMissingCredentials)
	}
	if c.Meraki.NetworkID == "" && c.Meraki.OrgID == "" {
		return fmt.Errorf("%w: set MERAKI_NETWORK_ID or MERAKI_ORG_ID", ErrMissingCredentials)
	}
	return nil
}
