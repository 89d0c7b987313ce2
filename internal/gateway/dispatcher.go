// Package gateway connects channels to the engine. The dispatcher runs one
// turn per inbound message and delivers the reply; the HTTP server exposes
// webhooks, the OAuth callback, health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/haasonsaas/mira/internal/cache"
	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/internal/engine"
	"github.com/haasonsaas/mira/internal/observability"
	"github.com/haasonsaas/mira/internal/storage"
	"github.com/haasonsaas/mira/pkg/models"
)

const failureText = "Sorry, something went wrong on my side. Please try again in a moment."

// Handler resolves one message. *engine.Engine implements it.
type Handler interface {
	HandleMessage(ctx context.Context, in models.Inbound) (engine.Response, error)
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// Workers bounds concurrently processed messages. Default: 16
	Workers int64
	// DedupeWindow drops repeated text from the same user. Default: 10s
	DedupeWindow time.Duration
	// IDWindow drops redelivered platform message ids. Default: 1h
	IDWindow time.Duration
	// TurnTimeout bounds one turn including delivery. Default: 2m
	TurnTimeout time.Duration
	// Now overrides time.Now for the duplicate windows.
	Now func() time.Time
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = 10 * time.Second
	}
	if c.IDWindow <= 0 {
		c.IDWindow = time.Hour
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 2 * time.Minute
	}
	return c
}

// Dispatcher runs turns and delivers replies.
type Dispatcher struct {
	handler  Handler
	sender   channels.Sender
	messages storage.MessageLog

	cfg     DispatcherConfig
	ids     *cache.DedupeCache
	hashes  *cache.DedupeCache
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	metrics *observability.Metrics
	logger  *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(handler Handler, sender channels.Sender, messages storage.MessageLog, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		handler:  handler,
		sender:   sender,
		messages: messages,
		cfg:      cfg,
		ids:      cache.NewDedupeCache(cache.DedupeOptions{TTL: cfg.IDWindow, Now: cfg.Now}),
		hashes:   cache.NewDedupeCache(cache.DedupeOptions{TTL: cfg.DedupeWindow, Now: cfg.Now}),
		sem:      semaphore.NewWeighted(cfg.Workers),
		metrics:  observability.Nop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes messages until the channel closes or ctx ends, then waits
// for in-flight turns.
func (d *Dispatcher) Run(ctx context.Context, in <-chan models.Inbound) error {
	defer d.wg.Wait()
	for {
		var msg models.Inbound
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return nil
			}
			msg = m
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.sem.Release(1)
			if err := d.Dispatch(ctx, msg); err != nil {
				d.logger.Error("dispatch failed", "error", err, "user_id", msg.UserID)
			}
		}()
	}
}

// Dispatch runs one turn: suppress duplicates, resolve, send once, then
// record the user message and the reply. The turn ignores cancellation of
// ctx and is bounded by the turn timeout instead.
func (d *Dispatcher) Dispatch(ctx context.Context, in models.Inbound) error {
	if in.Channel == "" {
		in.Channel, _, _ = models.SplitUserID(in.UserID)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.TurnTimeout)
	defer cancel()
	ctx = observability.AddChannel(ctx, string(in.Channel))
	ctx = observability.AddUserID(ctx, in.UserID)

	if d.duplicate(in) {
		d.metrics.DuplicatesSuppressed.Inc()
		d.logger.InfoContext(ctx, "duplicate message suppressed", "user_id", in.UserID, "external_id", in.ExternalID)
		return nil
	}
	d.metrics.Messages.WithLabelValues(string(in.Channel), string(models.DirectionInbound)).Inc()

	resp, turnErr := d.handler.HandleMessage(ctx, in)
	if turnErr != nil {
		resp = engine.Response{Text: failureText}
	}

	var errs []error
	if turnErr != nil {
		errs = append(errs, fmt.Errorf("gateway: turn: %w", turnErr))
	}
	if err := d.sender.Send(ctx, in.UserID, resp.Text); err != nil {
		errs = append(errs, fmt.Errorf("gateway: send: %w", err))
	} else {
		d.metrics.Messages.WithLabelValues(string(in.Channel), string(models.DirectionOutbound)).Inc()
	}
	// A failed turn leaves no history.
	if turnErr != nil {
		return errors.Join(errs...)
	}

	if err := d.messages.Append(ctx,
		models.ChatMessage{UserID: in.UserID, Role: models.RoleUser, Content: in.Text, ActionID: resp.ActionID},
		models.ChatMessage{UserID: in.UserID, Role: models.RoleAssistant, Content: resp.Text, ActionID: resp.ActionID},
	); err != nil {
		errs = append(errs, fmt.Errorf("gateway: record turn: %w", err))
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) duplicate(in models.Inbound) bool {
	idKey := ""
	if in.ExternalID != "" {
		idKey = string(in.Channel) + ":" + in.ExternalID
	}
	byID := d.ids.Seen(idKey)
	byHash := d.hashes.Seen(in.UserID + ":" + models.ContentHash(in.Text))
	return byID || byHash
}
