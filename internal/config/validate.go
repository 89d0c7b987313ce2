package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/haasonsaas/mira/internal/cron"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

var (
	knownProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderBedrock}
	knownDrivers   = []string{"memory", "postgres", "sqlite", "sqlite3"}
	knownBackends  = []string{"bing", "brave", "searxng"}
	knownLevels    = []string{"debug", "info", "warn", "error"}
	knownFormats   = []string{"json", "text"}
)

// Validate reports configuration errors. A missing oracle credential is an
// error so the process fails at startup rather than on the first message.
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if err := ValidateVersion(c.Version); err != nil {
		add("version: %v", err)
	}
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		add("server.http_port must be between 1 and 65535")
	}

	switch {
	case !slices.Contains(knownProviders, c.LLM.Provider):
		add("llm.provider %q is not one of %s", c.LLM.Provider, strings.Join(knownProviders, ", "))
	case c.LLM.Provider == ProviderBedrock:
		if c.LLM.Region == "" {
			add("llm.region is required for bedrock")
		}
	case strings.TrimSpace(c.LLM.APIKey) == "":
		add("llm.api_key is required for %s (or set %s)", c.LLM.Provider, strings.Join(providerKeyEnv[c.LLM.Provider], " or "))
	}
	if t := c.LLM.ChatTemperature(); t < 0 || t > 2 {
		add("llm.temperature must be between 0 and 2")
	}

	if c.Engine.MaxRefinements < 0 {
		add("engine.max_refinements must not be negative")
	}

	if !slices.Contains(knownDrivers, c.Storage.Driver) {
		add("storage.driver %q is not one of %s", c.Storage.Driver, strings.Join(knownDrivers, ", "))
	} else if c.Storage.Driver != "memory" && strings.TrimSpace(c.Storage.DSN) == "" {
		add("storage.dsn is required for %s", c.Storage.Driver)
	}

	if b := c.Tools.Search.Backend; b != "" && !slices.Contains(knownBackends, strings.ToLower(b)) {
		add("tools.search.backend %q is not one of %s", b, strings.Join(knownBackends, ", "))
	}
	if cal := c.Tools.Calendar; cal.ClientID != "" {
		if cal.ClientSecret == "" || cal.RedirectURL == "" {
			add("tools.calendar requires client_secret and redirect_url")
		}
		if len(c.OAuth.StateSecret) < 16 {
			add("oauth.state_secret must be at least 16 bytes when the calendar is enabled")
		}
	}

	wa := c.Channels.WhatsApp
	if wa.Enabled && (wa.AccessToken == "" || wa.PhoneNumberID == "" || wa.VerifyToken == "") {
		add("channels.whatsapp requires access_token, phone_number_id and verify_token")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.BotToken == "" {
		add("channels.telegram.bot_token is required")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.BotToken == "" {
		add("channels.discord.bot_token is required")
	}

	if !slices.Contains(knownLevels, strings.ToLower(c.Observability.Log.Level)) {
		add("observability.log.level %q is not one of %s", c.Observability.Log.Level, strings.Join(knownLevels, ", "))
	}
	if !slices.Contains(knownFormats, strings.ToLower(c.Observability.Log.Format)) {
		add("observability.log.format must be json or text")
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		add("observability.tracing.sampling_rate must be between 0 and 1")
	}

	if c.RemindersEnabled() {
		if _, err := cron.ParseSpec(c.Reminders.Schedule); err != nil {
			add("reminders.schedule: %v", err)
		}
	}
	if _, err := c.Reminders.Location(); err != nil {
		add("%v", err)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
