package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelConsole  ChannelType = "console"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem messages carry oracle instructions and are never shown to the user.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is one persisted turn of a conversation. Messages are immutable
// once written; insertion order is the only ordering.
type ChatMessage struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	ActionID string `json:"action_id,omitempty"` // empty for plain chat
	Hash     string `json:"hash,omitempty"`
	// Seq is assigned by the message log on append.
	Seq       int64     `json:"seq,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentHash returns the hex sha256 of the NFC-normalized, trimmed content.
// Equal text typed on different keyboards hashes the same.
func ContentHash(content string) string {
	normalized := norm.NFC.String(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Inbound is a message received from a channel before it is persisted.
type Inbound struct {
	// UserID is "<channel>:<address>", e.g. "whatsapp:15551234567".
	UserID string `json:"user_id"`
	// Channel is the adapter that received the message.
	Channel ChannelType `json:"channel"`
	// ExternalID is the platform message id, used for duplicate suppression.
	ExternalID string    `json:"external_id,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// UserID builds the owner key for an address on a channel.
func UserID(channel ChannelType, address string) string {
	return string(channel) + ":" + address
}

// SplitUserID returns the channel and address parts of a user id. ok is false
// when the id carries no channel prefix.
func SplitUserID(userID string) (channel ChannelType, address string, ok bool) {
	prefix, rest, found := strings.Cut(userID, ":")
	if !found || prefix == "" || rest == "" {
		return "", userID, false
	}
	return ChannelType(prefix), rest, true
}
