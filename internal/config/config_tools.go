package config

import "time"

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	Search    SearchConfig    `yaml:"search"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Evaluate  EvaluateConfig  `yaml:"evaluate"`
}

// SearchConfig configures web_search.
type SearchConfig struct {
	// Backend is bing, brave or searxng. Empty disables the tool.
	Backend    string        `yaml:"backend"`
	APIKey     string        `yaml:"api_key"`
	Endpoint   string        `yaml:"endpoint"`
	MaxResults int           `yaml:"max_results"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// SummarizeConfig configures page fetching and summarization.
type SummarizeConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CalendarConfig configures the Google Calendar tool and its OAuth client.
// The tool is registered only when ClientID is set.
type CalendarConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	MaxEvents    int64  `yaml:"max_events"`
}

// EvaluateConfig configures the restricted code evaluator.
type EvaluateConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxLength int           `yaml:"max_length"`
	// InProcess evaluates without spawning a child process.
	InProcess bool `yaml:"in_process"`
}

func applyToolDefaults(cfg *ToolsConfig) {
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 3
	}
	if cfg.Search.CacheTTL == 0 {
		cfg.Search.CacheTTL = 5 * time.Minute
	}
	if cfg.Summarize.ChunkSize == 0 {
		cfg.Summarize.ChunkSize = 3000
	}
	if cfg.Summarize.MaxBodyBytes == 0 {
		cfg.Summarize.MaxBodyBytes = 2 << 20
	}
	if cfg.Summarize.Timeout == 0 {
		cfg.Summarize.Timeout = 15 * time.Second
	}
	if cfg.Calendar.MaxEvents == 0 {
		cfg.Calendar.MaxEvents = 10
	}
	if cfg.Evaluate.Timeout == 0 {
		cfg.Evaluate.Timeout = 2 * time.Second
	}
	if cfg.Evaluate.MaxLength == 0 {
		cfg.Evaluate.MaxLength = 1024
	}
}

// EvaluateEnabled reports whether the evaluate tool is registered. Default: true
func (c ToolsConfig) EvaluateEnabled() bool {
	return c.Evaluate.Enabled == nil || *c.Evaluate.Enabled
}
