// Package llm is the language model gateway: a request/response contract over
// an external completion oracle, with OpenAI, Anthropic, Gemini and Bedrock
// implementations.
//
// The gateway carries no business logic. Callers render prompts with
// internal/prompts and interpret the reply themselves.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrNoCompletion is returned when the oracle answers without any content.
var ErrNoCompletion = errors.New("llm: no completion returned")

// Role tags a message for the oracle.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the oracle conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Request is a single completion request.
type Request struct {
	Messages []Message
	// Temperature is passed through as-is; 0 asks for the most deterministic reply.
	Temperature float32
	// Stop lists optional stop sequences.
	Stop []string
	// MaxTokens caps the reply length; 0 uses the provider default.
	MaxTokens int
}

// Completion is the oracle's reply.
type Completion struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Gateway is implemented by every oracle backend.
type Gateway interface {
	// Complete returns the oracle's reply, or ErrNoCompletion when it is empty.
	Complete(ctx context.Context, req Request) (Completion, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (Completion, error)

// Complete calls f.
func (f GatewayFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// splitSystem separates system instructions from the turn list for
// providers that take the system prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	var (
		system []string
		turns  []Message
	)
	for _, m := range messages {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// alternateTurns merges consecutive same-role turns and makes sure the list
// starts with a user turn, as Anthropic, Gemini and Bedrock require.
func alternateTurns(turns []Message) []Message {
	out := make([]Message, 0, len(turns)+1)
	for _, m := range turns {
		if m.Role != RoleAssistant {
			m.Role = RoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 || out[0].Role != RoleUser {
		out = append([]Message{User("Continue.")}, out...)
	}
	return out
}

func completionFrom(content string) (Completion, error) {
	if strings.TrimSpace(content) == "" {
		return Completion{}, ErrNoCompletion
	}
	return Completion{Role: RoleAssistant, Content: content}, nil
}
