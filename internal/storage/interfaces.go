// Package storage persists actions, the message log, OAuth credentials and
// reminders. It ships an in-memory implementation and a database/sql
// implementation for Postgres and SQLite.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/mira/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrActionClosed is returned when mutating an action that is no longer PENDING.
	ErrActionClosed = errors.New("action is closed")
	// ErrInvalidStatus is returned for unknown statuses or an attempt to reopen an action.
	ErrInvalidStatus = errors.New("invalid action status")
)

// ActionStore persists actions. Implementations guarantee at most one
// PENDING action per user.
type ActionStore interface {
	// GetPendingAction returns the user's PENDING action, or nil when there is none.
	GetPendingAction(ctx context.Context, userID string) (*models.Action, error)

	// CreatePendingAction atomically creates a PENDING action for the user
	// unless one exists. created is false when the existing one is returned.
	CreatePendingAction(ctx context.Context, userID, tool string) (action *models.Action, created bool, err error)

	// CreateAction inserts an action with the given status. A PENDING status
	// fails with ErrAlreadyExists when the user already has one.
	CreateAction(ctx context.Context, userID, tool string, status models.ActionStatus) (*models.Action, error)

	GetAction(ctx context.Context, id string) (*models.Action, error)

	// UpdateActionStatus moves a PENDING action to a terminal status. On a
	// closed action it returns the current record and ErrActionClosed.
	UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus) (*models.Action, error)

	// SaveActionProgress stores Tool, Args, Refinements and Attempts while the
	// action is still PENDING.
	SaveActionProgress(ctx context.Context, action *models.Action) error
}

// MessageLog is the append-only conversation history.
type MessageLog interface {
	// Append writes messages in order. IDs, hashes and timestamps are filled
	// in when empty.
	Append(ctx context.Context, messages ...models.ChatMessage) error

	// ListForUser returns the most recent limit messages in insertion order.
	// A limit of 0 returns everything.
	ListForUser(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error)

	// ListForAction returns every message tagged with the action id.
	ListForAction(ctx context.Context, actionID string) ([]models.ChatMessage, error)
}

// CredentialStore persists per-user OAuth tokens.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error)
	PutCredential(ctx context.Context, cred *models.Credential) error
	DeleteCredential(ctx context.Context, userID, provider string) error
}

// ReminderStore persists scheduled reminders.
type ReminderStore interface {
	CreateReminder(ctx context.Context, reminder *models.Reminder) error
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error)
	MarkReminderDelivered(ctx context.Context, id string) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Actions     ActionStore
	Messages    MessageLog
	Credentials CredentialStore
	Reminders   ReminderStore
	closer      func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func validTerminal(status models.ActionStatus) error {
	if !status.Valid() || !status.Terminal() {
		return ErrInvalidStatus
	}
	return nil
}
