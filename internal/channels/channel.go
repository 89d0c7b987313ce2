// Package channels connects the assistant to messaging platforms. Each
// adapter turns platform events into models.Inbound values and delivers
// replies addressed by user id.
package channels

import (
	"context"

	"github.com/haasonsaas/mira/pkg/models"
)

// Sender delivers text to a user. userID carries the channel prefix, e.g.
// "whatsapp:15551234567".
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// Adapter is the interface that all channel adapters implement.
type Adapter interface {
	Sender

	// Start begins receiving messages. It returns once the adapter is
	// listening; delivery continues until ctx ends or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the adapter down and closes the Messages channel.
	Stop(ctx context.Context) error

	// Messages returns inbound messages.
	Messages() <-chan models.Inbound

	// Type returns the channel type.
	Type() models.ChannelType
}

// Address returns the platform address of userID after checking that it
// belongs to channel.
func Address(channel models.ChannelType, userID string) (string, error) {
	prefix, address, ok := models.SplitUserID(userID)
	if !ok || prefix != channel {
		return "", ErrInvalidInput("user "+userID+" is not a "+string(channel)+" user", nil)
	}
	return address, nil
}
