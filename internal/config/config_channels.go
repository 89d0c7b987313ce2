package config

// ChannelsConfig enables the messaging channels.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// WhatsAppConfig configures the WhatsApp Cloud API channel.
type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled"`
	AccessToken   string `yaml:"access_token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	VerifyToken   string `yaml:"verify_token"`
	// AppSecret enables X-Hub-Signature-256 verification.
	AppSecret  string `yaml:"app_secret"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

func applyChannelDefaults(cfg *ChannelsConfig) {
	if cfg.WhatsApp.APIVersion == "" {
		cfg.WhatsApp.APIVersion = "v21.0"
	}
}

// Enabled reports whether any networked channel is on.
func (c ChannelsConfig) Enabled() bool {
	return c.WhatsApp.Enabled || c.Telegram.Enabled || c.Discord.Enabled
}
