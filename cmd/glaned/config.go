package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// config is the top-level glaned configuration.
type config struct {
	Listen    string          `yaml:"listen"`
	RunsDB    string          `yaml:"runs_db"`
	ObsDB     string          `yaml:"observability_db"`
	LogLevel  string          `yaml:"log_level"`
	Browser   browserConfig   `yaml:"browser"`
	Oracle    oracleConfig    `yaml:"oracle"`
	MCP       mcpConfig       `yaml:"mcp"`
	Retention retentionConfig `yaml:"retention"`
}

// browserConfig controls the Chrome lifecycle.
type browserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // plain | headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// oracleConfig selects the LLM backend. Empty provider disables the oracle.
type oracleConfig struct {
	Provider string `yaml:"provider"` // claude | openai
	Model    string `yaml:"model"`
}

// mcpConfig enables the MCP-over-QUIC listener. Empty addr disables it.
// Without a cert/key pair the server uses an ephemeral self-signed cert.
type mcpConfig struct {
	QUICAddr string `yaml:"quic_addr"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
}

// retentionConfig bounds the observability tables. Zero disables cleanup
// for that table.
type retentionConfig struct {
	MetricsDays  int `yaml:"metrics_days"`
	EventDays    int `yaml:"event_days"`
	HTTPLogsDays int `yaml:"http_logs_days"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = env("LISTEN", ":8086")
	}
	if c.RunsDB == "" {
		c.RunsDB = env("RUNS_DB", "db/runs.db")
	}
	if c.ObsDB == "" {
		c.ObsDB = env("OBSERVABILITY_DB", "db/observability.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = env("LOG_LEVEL", "info")
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"fonts", "media"}
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = env("ORACLE_PROVIDER", "")
	}
	if c.Retention.MetricsDays == 0 {
		c.Retention.MetricsDays = 30
	}
	if c.Retention.EventDays == 0 {
		c.Retention.EventDays = 90
	}
	if c.Retention.HTTPLogsDays == 0 {
		c.Retention.HTTPLogsDays = 7
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
