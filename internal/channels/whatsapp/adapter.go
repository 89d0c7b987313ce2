package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/mira/internal/backoff"
	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/pkg/models"
)

// Adapter receives WhatsApp messages through the webhook handler and sends
// replies through the Graph API.
type Adapter struct {
	cfg     Config
	logger  *slog.Logger
	limiter *channels.RateLimiter

	mu       sync.Mutex
	closed   bool
	messages chan models.Inbound
}

// New creates an adapter.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:      cfg,
		logger:   cfg.Logger.With("adapter", "whatsapp"),
		limiter:  channels.NewRateLimiter(cfg.SendRate, cfg.SendBurst),
		messages: make(chan models.Inbound, 100),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelWhatsApp }

func (a *Adapter) Messages() <-chan models.Inbound { return a.messages }

// Start is a no-op: messages arrive through ServeHTTP.
func (a *Adapter) Start(ctx context.Context) error {
	a.logger.InfoContext(ctx, "whatsapp adapter ready", "phone_number_id", a.cfg.PhoneNumberID)
	return nil
}

// Stop closes the Messages channel. Later webhook deliveries are rejected.
func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.messages)
	}
	return nil
}

// enqueue hands a message to the dispatcher without blocking the webhook.
func (a *Adapter) enqueue(msg models.Inbound) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	select {
	case a.messages <- msg:
		return true
	default:
		a.logger.Warn("messages channel full, dropping message", "external_id", msg.ExternalID)
		return false
	}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers text to a whatsapp user id, split at the platform limit.
func (a *Adapter) Send(ctx context.Context, userID, text string) error {
	to, err := channels.Address(models.ChannelWhatsApp, userID)
	if err != nil {
		return err
	}
	for _, chunk := range channels.SplitText(text, channels.MaxWhatsAppText) {
		res, err := backoff.RetryWithBackoff(ctx, a.cfg.Policy, a.cfg.MaxAttempts, func(int) (struct{}, error) {
			if err := a.limiter.Wait(ctx); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			err := a.post(ctx, to, chunk)
			if err != nil && !channels.IsRetryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		})
		if errors.Is(err, backoff.ErrMaxAttemptsExhausted) {
			err = res.LastError
		}
		if err != nil {
			a.logger.ErrorContext(ctx, "whatsapp send failed", "error", err, "attempts", res.Attempts)
			return fmt.Errorf("whatsapp: send: %w", err)
		}
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, to, text string) error {
	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return channels.ErrInternal("marshal request", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", strings.TrimSuffix(a.cfg.BaseURL, "/"), a.cfg.APIVersion, a.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return channels.ErrInternal("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return channels.ErrTimeout("send message", err)
		}
		return channels.ErrConnection("send message", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		a.logger.DebugContext(ctx, "message sent", "to", to, "latency_ms", time.Since(start).Milliseconds())
		return nil
	}

	var ge graphError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ge)
	msg := fmt.Sprintf("graph api status %d", resp.StatusCode)
	if ge.Error.Message != "" {
		msg += ": " + ge.Error.Message
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return channels.ErrRateLimit(msg, nil)
	case resp.StatusCode >= 500:
		return channels.ErrUnavailable(msg, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return channels.ErrAuthentication(msg, nil)
	default:
		return channels.ErrInvalidInput(msg, nil)
	}
}
