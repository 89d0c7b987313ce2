// Package discord implements the Discord channel on bwmarrin/discordgo. It
// answers direct messages and messages that mention the bot.
package discord

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/pkg/models"
)

// session is the subset of *discordgo.Session the adapter uses.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Config holds configuration for the Discord adapter.
type Config struct {
	// Token is the bot token from the Discord Developer Portal (required).
	Token  string
	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("discord: token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.Adapter for Discord. User ids are the author
// ids; replies go to the channel the user last wrote from, or a DM.
type Adapter struct {
	cfg      Config
	logger   *slog.Logger
	session  session
	messages chan models.Inbound

	mu       sync.Mutex
	botID    string
	closed   bool
	replyTo  map[string]string // author id -> channel id
	removers []func()
}

// NewAdapter creates an adapter. The gateway connection opens on Start.
func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:      cfg,
		logger:   cfg.Logger.With("adapter", "discord"),
		messages: make(chan models.Inbound, 100),
		replyTo:  make(map[string]string),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelDiscord }

func (a *Adapter) Messages() <-chan models.Inbound { return a.messages }

// Start opens the gateway connection.
func (a *Adapter) Start(ctx context.Context) error {
	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.cfg.Token)
		if err != nil {
			return channels.ErrAuthentication("discord: create session", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
		a.session = dg
	}

	a.removers = append(a.removers,
		a.session.AddHandler(a.handleReady),
		a.session.AddHandler(a.handleMessageCreate),
	)
	if err := a.session.Open(); err != nil {
		return channels.ErrConnection("discord: open gateway", err)
	}
	a.logger.InfoContext(ctx, "discord adapter started")
	return nil
}

// Stop closes the connection and the Messages channel.
func (a *Adapter) Stop(context.Context) error {
	for _, remove := range a.removers {
		remove()
	}
	a.removers = nil

	var err error
	if a.session != nil {
		if cerr := a.session.Close(); cerr != nil {
			err = channels.ErrConnection("discord: close gateway", cerr)
		}
	}

	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.messages)
	}
	a.mu.Unlock()
	return err
}

func (a *Adapter) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	a.mu.Lock()
	a.botID = r.User.ID
	a.mu.Unlock()
	a.logger.Info("discord connection ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (a *Adapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	a.mu.Lock()
	botID := a.botID
	a.mu.Unlock()

	msg, ok := convertMessage(botID, m, time.Now())
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.replyTo[m.Author.ID] = m.ChannelID
	select {
	case a.messages <- msg:
	default:
		a.logger.Warn("messages channel full, dropping message", "external_id", msg.ExternalID)
	}
}

// convertMessage accepts direct messages and guild messages that mention
// botID. Mention tokens are stripped from the text.
func convertMessage(botID string, m *discordgo.MessageCreate, now time.Time) (models.Inbound, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return models.Inbound{}, false
	}
	if botID != "" && m.Author.ID == botID {
		return models.Inbound{}, false
	}

	text := m.Content
	if m.GuildID != "" {
		if botID == "" || !mentions(m.Mentions, botID) {
			return models.Inbound{}, false
		}
		text = strings.NewReplacer("<@"+botID+">", "", "<@!"+botID+">", "").Replace(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Inbound{}, false
	}

	received := now
	if !m.Timestamp.IsZero() {
		received = m.Timestamp.UTC()
	}
	return models.Inbound{
		UserID:     models.UserID(models.ChannelDiscord, m.Author.ID),
		Channel:    models.ChannelDiscord,
		ExternalID: m.ID,
		Text:       text,
		ReceivedAt: received,
	}, true
}

func mentions(users []*discordgo.User, id string) bool {
	for _, u := range users {
		if u != nil && u.ID == id {
			return true
		}
	}
	return false
}

// Send replies in the user's last channel, or opens a DM.
func (a *Adapter) Send(ctx context.Context, userID, text string) error {
	authorID, err := channels.Address(models.ChannelDiscord, userID)
	if err != nil {
		return err
	}
	if a.session == nil {
		return channels.ErrInternal("discord: session not started", nil)
	}

	a.mu.Lock()
	channelID := a.replyTo[authorID]
	a.mu.Unlock()
	if channelID == "" {
		dm, err := a.session.UserChannelCreate(authorID, discordgo.WithContext(ctx))
		if err != nil {
			return channels.ErrUnavailable("discord: open dm", err)
		}
		channelID = dm.ID
	}

	for _, chunk := range channels.SplitText(text, channels.MaxDiscordText) {
		if _, err := a.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			a.logger.ErrorContext(ctx, "failed to send message", "error", err, "channel_id", channelID)
			return channels.ErrUnavailable("discord: send message", err)
		}
	}
	return nil
}
