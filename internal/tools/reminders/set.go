// Package reminders provides the tool that schedules reminders for later
// delivery by the reminder scheduler.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/observability"
	"github.com/haasonsaas/mira/internal/storage"
	"github.com/haasonsaas/mira/internal/tools"
	"github.com/haasonsaas/mira/pkg/models"
)

// Name is the registered tool name.
const Name = "create_reminder"

// defaultTime is used when the user gives a date without a time.
const defaultTime = "09:00"

// ErrInPast is returned for reminders scheduled before now.
var ErrInPast = errors.New("reminders: cannot set a reminder in the past")

// Tool creates reminders.
type Tool struct {
	store    storage.ReminderStore
	oracle   llm.Gateway
	now      func() time.Time
	location *time.Location
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Option configures the tool.
type Option func(*Tool)

// WithOracle enables oracle date conversion for phrases the rules miss.
func WithOracle(g llm.Gateway) Option {
	return func(t *Tool) { t.oracle = g }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tool) { t.now = now }
}

// WithLocation sets the time zone reminders are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(t *Tool) {
		if loc != nil {
			t.location = loc
		}
	}
}

// WithMetrics counts malformed date conversions.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Tool) { t.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates the reminder tool.
func New(store storage.ReminderStore, opts ...Option) *Tool {
	t := &Tool{
		store:    store,
		now:      time.Now,
		location: time.Local,
		metrics:  observability.Nop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Descriptor implements tools.Tool.
func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:         Name,
		DisplayName:  "Create Reminder",
		Description:  "Schedules a reminder message for the user at a date and time.",
		UsageExample: "TOOL:create_reminder|text=call mom&date=tomorrow&time=6pm",
		Params: []tools.ParamSpec{
			{Name: "text", Description: "what to remind the user about", Required: true},
			{Name: "date", Description: "the day, e.g. tomorrow, friday or 2024-05-01", Required: true, Pattern: `\d{4}-\d{2}-\d{2}`},
			{Name: "time", Description: "the time of day, e.g. 3pm or 15:00", Pattern: `\d{2}:\d{2}`},
		},
	}
}

// Invoke implements tools.Tool. Arguments are expected in normalized form.
func (t *Tool) Invoke(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	if t.store == nil {
		return tools.Result{}, errors.New("reminders: store unavailable")
	}

	text := strings.TrimSpace(inv.Arg("text"))
	clock := strings.TrimSpace(inv.Arg("time"))
	if clock == "" {
		clock = defaultTime
	}
	dueAt, err := time.ParseInLocation(dateLayout+" "+timeLayout, inv.Arg("date")+" "+clock, t.location)
	if err != nil {
		return tools.Result{}, fmt.Errorf("reminders: parse due time: %w", err)
	}
	if dueAt.Before(t.now()) {
		return tools.Result{}, &tools.InvalidArgumentError{Params: []string{"date", "time"}, Err: ErrInPast}
	}

	reminder := &models.Reminder{
		ID:        uuid.NewString(),
		UserID:    inv.UserID,
		Text:      text,
		DueAt:     dueAt.UTC(),
		CreatedAt: t.now().UTC(),
	}
	if err := t.store.CreateReminder(ctx, reminder); err != nil {
		return tools.Result{}, fmt.Errorf("reminders: create: %w", err)
	}
	t.logger.InfoContext(ctx, "reminder scheduled", "reminder_id", reminder.ID, "due_at", reminder.DueAt)

	return tools.Result{
		Value:          reminder,
		Summary:        fmt.Sprintf("I'll remind you to %s on %s.", text, dueAt.Format("Monday, January 2 at 3:04 PM")),
		SatisfiesQuery: tools.Bool(true),
	}, nil
}
