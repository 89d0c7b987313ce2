// Package whatsapp implements the WhatsApp Cloud API channel: a webhook
// receiver and a Graph API sender.
package whatsapp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/haasonsaas/mira/internal/backoff"
	"github.com/haasonsaas/mira/internal/channels"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"
)

// Config holds WhatsApp adapter configuration.
type Config struct {
	// AccessToken is the Cloud API bearer token (required).
	AccessToken string
	// PhoneNumberID is the sender phone number id (required).
	PhoneNumberID string
	// VerifyToken answers the webhook subscription handshake.
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret string

	BaseURL    string
	APIVersion string
	HTTPClient *http.Client

	// MaxAttempts bounds delivery retries. Default: 3
	MaxAttempts int
	Policy      backoff.BackoffPolicy
	// MaxBodyBytes bounds webhook payloads. Default: 1 MiB
	MaxBodyBytes int64
	// SendRate caps outbound messages per second; negative disables. Default: 20
	SendRate  float64
	SendBurst int

	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return channels.ErrConfig("whatsapp: access_token is required", nil)
	}
	if c.PhoneNumberID == "" {
		return channels.ErrConfig("whatsapp: phone_number_id is required", nil)
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.SendRate == 0 {
		c.SendRate = 20
	}
	if c.SendBurst <= 0 {
		c.SendBurst = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Policy == (backoff.BackoffPolicy{}) {
		c.Policy = backoff.DeliveryPolicy()
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
