// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/haasonsaas/mira/internal/llm"
)

// Reply is one scripted oracle answer.
type Reply struct {
	Content string
	Err     error
}

// Responder chooses the reply for a request. Returning ok=false falls back
// to the scripted queue.
type Responder func(req llm.Request) (reply Reply, ok bool)

// Fake is a scripted oracle. Replies are consumed in order; once the queue
// is empty Default is returned, or llm.ErrNoCompletion when Default is empty.
type Fake struct {
	mu        sync.Mutex
	replies   []Reply
	responder Responder
	requests  []llm.Request

	Default string
}

// New creates a fake that answers with the given contents in order.
func New(contents ...string) *Fake {
	f := &Fake{}
	for _, c := range contents {
		f.replies = append(f.replies, Reply{Content: c})
	}
	return f
}

// Push appends replies to the queue.
func (f *Fake) Push(replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
	return f
}

// Respond installs a responder consulted before the queue.
func (f *Fake) Respond(r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = r
	return f
}

// Complete implements llm.Gateway.
func (f *Fake) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	responder := f.responder
	f.mu.Unlock()

	if responder != nil {
		if reply, ok := responder(req); ok {
			return result(reply)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return result(Reply{Content: f.Default})
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return result(reply)
}

func result(reply Reply) (llm.Completion, error) {
	if reply.Err != nil {
		return llm.Completion{}, reply.Err
	}
	if strings.TrimSpace(reply.Content) == "" {
		return llm.Completion{}, llm.ErrNoCompletion
	}
	return llm.Completion{Role: llm.RoleAssistant, Content: reply.Content}, nil
}

// Calls returns the number of Complete calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of every request seen.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastPrompt returns the concatenated content of the last request, or "".
func (f *Fake) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return Prompt(f.requests[len(f.requests)-1])
}

// Prompt joins every message content of req.
func Prompt(req llm.Request) string {
	parts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
