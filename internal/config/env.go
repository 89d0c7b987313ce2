package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv loads .env from the working directory and from the config
// file's directory. Variables already set are left alone and missing files
// are ignored.
func loadDotEnv(configPath string) {
	files := []string{".env"}
	if strings.TrimSpace(configPath) != "" {
		if dir := filepath.Dir(configPath); dir != "." {
			files = append(files, filepath.Join(dir, ".env"))
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// applyEnvOverrides applies MIRA_* variables, then fills empty credentials
// from the conventional provider variables.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "MIRA_HOST")
	setInt(&cfg.Server.HTTPPort, "MIRA_HTTP_PORT")

	setString(&cfg.LLM.Provider, "MIRA_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "MIRA_LLM_MODEL")
	setString(&cfg.LLM.APIKey, "MIRA_LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "MIRA_LLM_BASE_URL")
	setString(&cfg.LLM.Region, "MIRA_LLM_REGION")

	setString(&cfg.Storage.Driver, "MIRA_STORAGE_DRIVER")
	setString(&cfg.Storage.DSN, "MIRA_STORAGE_DSN")

	setString(&cfg.OAuth.StateSecret, "MIRA_OAUTH_STATE_SECRET")
	setString(&cfg.Observability.Log.Level, "MIRA_LOG_LEVEL")
	setString(&cfg.Observability.Log.Format, "MIRA_LOG_FORMAT")
	setString(&cfg.Observability.Tracing.Endpoint, "MIRA_OTLP_ENDPOINT")

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.APIKey == "" {
		for _, name := range providerKeyEnv[cfg.LLM.Provider] {
			if v := os.Getenv(name); v != "" {
				cfg.LLM.APIKey = v
				break
			}
		}
	}
	if cfg.LLM.Provider == ProviderBedrock && cfg.LLM.Region == "" {
		cfg.LLM.Region = os.Getenv("AWS_REGION")
	}

	fillString(&cfg.Channels.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	fillString(&cfg.Channels.WhatsApp.AppSecret, "WHATSAPP_APP_SECRET")
	fillString(&cfg.Channels.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	fillString(&cfg.Channels.Discord.BotToken, "DISCORD_BOT_TOKEN")
	fillString(&cfg.Tools.Calendar.ClientSecret, "GOOGLE_CLIENT_SECRET")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func fillString(dst *string, name string) {
	if *dst == "" {
		setString(dst, name)
	}
}

func setInt(dst *int, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}
