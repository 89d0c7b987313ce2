// Package calendar reads upcoming events from the user's Google Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/haasonsaas/mira/internal/auth"
	"github.com/haasonsaas/mira/internal/tools"
)

// Name is the registered tool name.
const Name = "calendar_events"

// DefaultMaxEvents is the number of events listed.
const DefaultMaxEvents = 10

// TokenProvider hands out per-user token sources and consent URLs.
type TokenProvider interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
	AuthURL(userID string) (string, error)
}

// Config configures the tool.
type Config struct {
	MaxEvents int64
	// Endpoint overrides the Calendar API base URL.
	Endpoint   string
	HTTPClient *http.Client
	Location   *time.Location
}

// Tool lists upcoming calendar events.
type Tool struct {
	tokens TokenProvider
	cfg    Config
	now    func() time.Time
}

// New creates the calendar tool.
func New(tokens TokenProvider, cfg Config) *Tool {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Tool{tokens: tokens, cfg: cfg, now: time.Now}
}

// Descriptor implements tools.Tool.
func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:         Name,
		DisplayName:  "Check Calendar",
		Description:  "Lists the user's next upcoming events from their Google Calendar.",
		UsageExample: "TOOL:calendar_events",
	}
}

// Invoke implements tools.Tool.
func (t *Tool) Invoke(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	ts, err := t.tokens.TokenSource(ctx, inv.UserID)
	if errors.Is(err, auth.ErrNoToken) || errors.Is(err, auth.ErrTokenExpired) {
		return tools.Result{}, t.authorizationRequired(inv.UserID)
	}
	if err != nil {
		return tools.Result{}, err
	}

	token, err := ts.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return tools.Result{}, t.authorizationRequired(inv.UserID)
		}
		return tools.Result{}, fmt.Errorf("calendar: token: %w", err)
	}

	clientCtx := ctx
	if t.cfg.HTTPClient != nil {
		clientCtx = context.WithValue(ctx, oauth2.HTTPClient, t.cfg.HTTPClient)
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(clientCtx, oauth2.ReuseTokenSource(token, ts))),
	}
	if t.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(t.cfg.Endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return tools.Result{}, fmt.Errorf("calendar: client: %w", err)
	}

	events, err := svc.Events.List("primary").
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(t.now().Format(time.RFC3339)).
		MaxResults(t.cfg.MaxEvents).
		Context(ctx).
		Do()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return tools.Result{}, t.authorizationRequired(inv.UserID)
		}
		return tools.Result{}, fmt.Errorf("calendar: list events: %w", err)
	}

	lines := make([]string, 0, len(events.Items))
	for _, ev := range events.Items {
		lines = append(lines, t.formatEvent(ev))
	}
	if len(lines) == 0 {
		return tools.Result{Value: "No upcoming events found."}, nil
	}
	return tools.Result{Value: lines}, nil
}

func (t *Tool) authorizationRequired(userID string) error {
	url, err := t.tokens.AuthURL(userID)
	if err != nil {
		return fmt.Errorf("calendar: build consent url: %w", err)
	}
	return &tools.AuthorizationRequiredError{Provider: auth.ProviderGoogle, AuthURL: url}
}

func (t *Tool) formatEvent(ev *gcal.Event) string {
	summary := strings.TrimSpace(ev.Summary)
	if summary == "" {
		summary = "(no title)"
	}
	when := "unscheduled"
	if ev.Start != nil {
		switch {
		case ev.Start.DateTime != "":
			if start, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
				when = start.In(t.cfg.Location).Format("Mon Jan 2 2006 15:04")
			} else {
				when = ev.Start.DateTime
			}
		case ev.Start.Date != "":
			when = ev.Start.Date + " (all day)"
		}
	}
	line := when + ": " + summary
	if loc := strings.TrimSpace(ev.Location); loc != "" {
		line += " at " + loc
	}
	return line
}
