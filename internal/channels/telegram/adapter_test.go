package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/pkg/models"
)

type fakeClient struct {
	mu      sync.Mutex
	sent    []*bot.SendMessageParams
	err     error
	started chan struct{}
}

func (f *fakeClient) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

func (f *fakeClient) Start(ctx context.Context) {
	close(f.started)
	<-ctx.Done()
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeClient) {
	t.Helper()
	a, err := NewAdapter(Config{Token: "123:abc"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	fc := &fakeClient{started: make(chan struct{})}
	a.client = fc
	return a, fc
}

func TestConfigValidate(t *testing.T) {
	if _, err := NewAdapter(Config{}); channels.GetErrorCode(err) != channels.ErrCodeConfig {
		t.Errorf("NewAdapter() error = %v, want config error", err)
	}
}

func TestConvertUpdate(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		update *tgmodels.Update
		want   models.Inbound
		ok     bool
	}{
		{
			name: "text",
			update: &tgmodels.Update{Message: &tgmodels.Message{
				ID: 7, Chat: tgmodels.Chat{ID: 42}, From: &tgmodels.User{ID: 42}, Text: " hello ", Date: 1760436000,
			}},
			want: models.Inbound{
				UserID: "telegram:42", Channel: models.ChannelTelegram, ExternalID: "42:7",
				Text: "hello", ReceivedAt: time.Unix(1760436000, 0).UTC(),
			},
			ok: true,
		},
		{
			name:   "no date uses now",
			update: &tgmodels.Update{Message: &tgmodels.Message{ID: 1, Chat: tgmodels.Chat{ID: 5}, Text: "hi"}},
			want:   models.Inbound{UserID: "telegram:5", Channel: models.ChannelTelegram, ExternalID: "5:1", Text: "hi", ReceivedAt: now},
			ok:     true,
		},
		{name: "empty text", update: &tgmodels.Update{Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 1}}}},
		{name: "bot author", update: &tgmodels.Update{Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 1}, Text: "x", From: &tgmodels.User{IsBot: true}}}},
		{name: "no message", update: &tgmodels.Update{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertUpdate(tt.update, now)
			if ok != tt.ok || got != tt.want {
				t.Errorf("convertUpdate() = %+v, %v, want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	a, fc := newTestAdapter(t)
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-fc.started

	a.handleUpdate(ctx, nil, &tgmodels.Update{Message: &tgmodels.Message{ID: 1, Chat: tgmodels.Chat{ID: 9}, Text: "ping"}})
	if msg := <-a.Messages(); msg.UserID != "telegram:9" || msg.Text != "ping" {
		t.Errorf("inbound = %+v", msg)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, ok := <-a.Messages(); ok {
		t.Error("messages channel should be closed")
	}
	// Updates after stop are dropped.
	a.handleUpdate(ctx, nil, &tgmodels.Update{Message: &tgmodels.Message{ID: 2, Chat: tgmodels.Chat{ID: 9}, Text: "late"}})
}

func TestSend(t *testing.T) {
	a, fc := newTestAdapter(t)
	long := strings.Repeat("word ", 1000) // over the 4096 byte limit
	if err := a.Send(context.Background(), "telegram:42", long); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(fc.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(fc.sent))
	}
	if fc.sent[0].ChatID != int64(42) || len(fc.sent[0].Text) > channels.MaxTelegramText {
		t.Errorf("first params = %+v", fc.sent[0])
	}
}

func TestSendErrors(t *testing.T) {
	a, fc := newTestAdapter(t)
	ctx := context.Background()

	if err := a.Send(ctx, "telegram:not-a-number", "x"); channels.GetErrorCode(err) != channels.ErrCodeInvalidInput {
		t.Errorf("bad chat id error = %v", err)
	}
	if err := a.Send(ctx, "whatsapp:1", "x"); channels.GetErrorCode(err) != channels.ErrCodeInvalidInput {
		t.Errorf("wrong channel error = %v", err)
	}
	fc.err = errors.New("boom")
	if err := a.Send(ctx, "telegram:1", "x"); !channels.IsRetryable(err) {
		t.Errorf("api error = %v, want retryable", err)
	}
}
