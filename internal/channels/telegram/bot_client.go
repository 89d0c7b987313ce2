package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// BotClient is the subset of *bot.Bot the adapter uses. Tests inject fakes.
type BotClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	// Start long-polls until ctx ends.
	Start(ctx context.Context)
}

// newBotClient creates a long-polling bot that forwards every update to handler.
func newBotClient(token string, handler bot.HandlerFunc) (BotClient, error) {
	return bot.New(token, bot.WithDefaultHandler(handler))
}
