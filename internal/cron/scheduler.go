// Package cron delivers due reminders on a cron schedule.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/internal/storage"
)

// Scheduler polls the reminder store and sends what is due.
type Scheduler struct {
	store    storage.ReminderStore
	sender   channels.Sender
	schedule cron.Schedule
	batch    int
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithNow overrides time.Now.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithBatchSize bounds reminders sent per run. Default: 100
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// NewScheduler creates a scheduler that runs on spec.
func NewScheduler(store storage.ReminderStore, sender channels.Sender, spec string, opts ...Option) (*Scheduler, error) {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		store:    store,
		sender:   sender,
		schedule: schedule,
		batch:    100,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the polling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			timer := time.NewTimer(nextDelay(s.schedule, s.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce delivers the reminders due now and returns how many were sent.
// A reminder whose delivery fails stays pending for the next run.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	due, err := s.store.ListDueReminders(ctx, s.now(), s.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "list due reminders", "error", err)
		return 0
	}

	sent := 0
	for _, r := range due {
		if err := s.sender.Send(ctx, r.UserID, FormatReminder(r.Text)); err != nil {
			s.logger.WarnContext(ctx, "reminder delivery failed", "error", err, "reminder_id", r.ID, "user_id", r.UserID)
			continue
		}
		if err := s.store.MarkReminderDelivered(ctx, r.ID); err != nil {
			s.logger.ErrorContext(ctx, "mark reminder delivered", "error", err, "reminder_id", r.ID)
			continue
		}
		sent++
	}
	if sent > 0 {
		s.logger.InfoContext(ctx, "reminders delivered", "count", sent)
	}
	return sent
}

// FormatReminder is the text sent for a due reminder.
func FormatReminder(text string) string {
	return fmt.Sprintf("Reminder: %s", text)
}
