// Package telegram implements the Telegram channel on go-telegram/bot using
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/pkg/models"
)

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required).
	Token  string
	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("telegram: token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.Adapter for Telegram.
type Adapter struct {
	cfg      Config
	logger   *slog.Logger
	client   BotClient
	limiter  *channels.RateLimiter
	messages chan models.Inbound

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// sendRate is the Bot API's global limit in messages per second.
const sendRate = 30

// NewAdapter creates an adapter. The bot connects on Start.
func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:      cfg,
		logger:   cfg.Logger.With("adapter", "telegram"),
		limiter:  channels.NewRateLimiter(sendRate, sendRate),
		messages: make(chan models.Inbound, 100),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelTelegram }

func (a *Adapter) Messages() <-chan models.Inbound { return a.messages }

// Start connects the bot and begins long polling.
func (a *Adapter) Start(ctx context.Context) error {
	if a.client == nil {
		client, err := newBotClient(a.cfg.Token, a.handleUpdate)
		if err != nil {
			return channels.ErrAuthentication("telegram: create bot", err)
		}
		a.client = client
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.client.Start(ctx)
	}()
	a.logger.InfoContext(ctx, "telegram adapter started")
	return nil
}

// Stop ends polling and closes the Messages channel.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = channels.ErrTimeout("telegram: stop", ctx.Err())
	}

	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.messages)
	}
	a.mu.Unlock()
	return err
}

func (a *Adapter) handleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	msg, ok := convertUpdate(update, time.Now())
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.messages <- msg:
	default:
		a.logger.WarnContext(ctx, "messages channel full, dropping message", "external_id", msg.ExternalID)
	}
}

// convertUpdate maps a text message update to an Inbound. Bot authors and
// non-text updates are skipped.
func convertUpdate(update *tgmodels.Update, now time.Time) (models.Inbound, bool) {
	if update == nil || update.Message == nil {
		return models.Inbound{}, false
	}
	m := update.Message
	text := strings.TrimSpace(m.Text)
	if text == "" || (m.From != nil && m.From.IsBot) {
		return models.Inbound{}, false
	}
	received := now
	if m.Date > 0 {
		received = time.Unix(int64(m.Date), 0).UTC()
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	return models.Inbound{
		UserID:     models.UserID(models.ChannelTelegram, chatID),
		Channel:    models.ChannelTelegram,
		ExternalID: fmt.Sprintf("%s:%d", chatID, m.ID),
		Text:       text,
		ReceivedAt: received,
	}, true
}

// Send delivers text to a telegram chat id, split at the platform limit.
func (a *Adapter) Send(ctx context.Context, userID, text string) error {
	address, err := channels.Address(models.ChannelTelegram, userID)
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return channels.ErrInvalidInput("telegram: chat id "+address, err)
	}
	if a.client == nil {
		return channels.ErrInternal("telegram: bot not started", nil)
	}
	for _, chunk := range channels.SplitText(text, channels.MaxTelegramText) {
		if err := a.limiter.Wait(ctx); err != nil {
			return channels.ErrTimeout("telegram: rate limit wait", err)
		}
		if _, err := a.client.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			a.logger.ErrorContext(ctx, "failed to send message", "error", err, "chat_id", chatID)
			return channels.ErrUnavailable("telegram: send message", err)
		}
	}
	return nil
}
