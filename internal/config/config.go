// Package config loads the Mira configuration file.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main configuration structure for Mira.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Tools         ToolsConfig         `yaml:"tools"`
	Channels      ChannelsConfig      `yaml:"channels"`
	OAuth         OAuthConfig         `yaml:"oauth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Dedupe        DedupeConfig        `yaml:"dedupe"`
	Reminders     RemindersConfig     `yaml:"reminders"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Workers bounds concurrently processed messages.
	Workers int `yaml:"workers"`
}

// EngineConfig tunes action resolution.
type EngineConfig struct {
	MaxRefinements int           `yaml:"max_refinements"`
	HistoryLimit   int           `yaml:"history_limit"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`
	Traits         []string      `yaml:"traits"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is one of memory, postgres, sqlite or sqlite3.
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     *bool         `yaml:"auto_migrate"`
}

// OAuthConfig configures signed OAuth state.
type OAuthConfig struct {
	StateSecret string        `yaml:"state_secret"`
	StateExpiry time.Duration `yaml:"state_expiry"`
}

// DedupeConfig controls duplicate inbound suppression.
type DedupeConfig struct {
	// Window drops repeated text from the same user.
	Window time.Duration `yaml:"window"`
	// IDWindow drops redelivered platform message ids.
	IDWindow time.Duration `yaml:"id_window"`
}

// RemindersConfig controls reminder delivery.
type RemindersConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone"`
}

// RemindersEnabled reports whether the reminder scheduler runs. Default: true
func (c *Config) RemindersEnabled() bool {
	return c.Reminders.Enabled == nil || *c.Reminders.Enabled
}

// Location resolves the reminder timezone. An empty name is time.Local.
func (c RemindersConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// Load reads the file at path, applies defaults and environment overrides,
// and validates the result. An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	raw := map[string]any{}
	if strings.TrimSpace(path) != "" {
		var err error
		raw, err = LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = 16
	}
	if cfg.Engine.MaxRefinements == 0 {
		cfg.Engine.MaxRefinements = 3
	}
	if cfg.Engine.HistoryLimit == 0 {
		cfg.Engine.HistoryLimit = 20
	}
	if cfg.Engine.ToolTimeout == 0 {
		cfg.Engine.ToolTimeout = 30 * time.Second
	}
	if cfg.Engine.TurnTimeout == 0 {
		cfg.Engine.TurnTimeout = 2 * time.Minute
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.OAuth.StateExpiry == 0 {
		cfg.OAuth.StateExpiry = 15 * time.Minute
	}
	if cfg.Dedupe.Window == 0 {
		cfg.Dedupe.Window = 10 * time.Second
	}
	if cfg.Dedupe.IDWindow == 0 {
		cfg.Dedupe.IDWindow = time.Hour
	}
	if cfg.Reminders.Schedule == "" {
		cfg.Reminders.Schedule = "@every 30s"
	}
	applyLLMDefaults(&cfg.LLM)
	applyToolDefaults(&cfg.Tools)
	applyChannelDefaults(&cfg.Channels)
	applyObservabilityDefaults(&cfg.Observability)
}
