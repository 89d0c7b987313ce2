package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/mira/pkg/models"
)

// MemoryStore implements every store interface in process memory. It is
// safe for concurrent use; one mutex makes create-if-absent atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	actions     map[string]*models.Action
	pending     map[string]string // user id -> pending action id
	messages    []models.ChatMessage
	seq         int64
	credentials map[string]*models.Credential
	reminders   map[string]*models.Reminder
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions:     make(map[string]*models.Action),
		pending:     make(map[string]string),
		credentials: make(map[string]*models.Credential),
		reminders:   make(map[string]*models.Reminder),
		now:         time.Now,
	}
}

// NewMemoryStores returns a StoreSet backed by a single MemoryStore.
func NewMemoryStores() StoreSet {
	s := NewMemoryStore()
	return StoreSet{Actions: s, Messages: s, Credentials: s, Reminders: s}
}

func (s *MemoryStore) GetPendingAction(ctx context.Context, userID string) (*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pending[userID]
	if !ok {
		return nil, nil
	}
	return s.actions[id].Clone(), nil
}

func (s *MemoryStore) CreatePendingAction(ctx context.Context, userID, tool string) (*models.Action, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.pending[userID]; ok {
		return s.actions[id].Clone(), false, nil
	}
	action := s.insertLocked(userID, tool, models.ActionPending)
	return action.Clone(), true, nil
}

func (s *MemoryStore) CreateAction(ctx context.Context, userID, tool string, status models.ActionStatus) (*models.Action, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if status == models.ActionPending {
		action, created, err := s.CreatePendingAction(ctx, userID, tool)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, ErrAlreadyExists
		}
		return action, nil
	}
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(userID, tool, status).Clone(), nil
}

func (s *MemoryStore) insertLocked(userID, tool string, status models.ActionStatus) *models.Action {
	now := s.now()
	action := &models.Action{
		ID:        uuid.NewString(),
		UserID:    userID,
		Tool:      tool,
		Status:    status,
		Args:      map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.actions[action.ID] = action
	if status == models.ActionPending {
		s.pending[userID] = action.ID
	}
	return action
}

func (s *MemoryStore) GetAction(ctx context.Context, id string) (*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	action, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return action.Clone(), nil
}

func (s *MemoryStore) UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus) (*models.Action, error) {
	if err := validTerminal(status); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if action.Status != models.ActionPending {
		return action.Clone(), ErrActionClosed
	}
	action.Status = status
	action.UpdatedAt = s.now()
	delete(s.pending, action.UserID)
	return action.Clone(), nil
}

func (s *MemoryStore) SaveActionProgress(ctx context.Context, in *models.Action) error {
	if in == nil || in.ID == "" {
		return fmt.Errorf("action is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[in.ID]
	if !ok {
		return ErrNotFound
	}
	if action.Status != models.ActionPending {
		return ErrActionClosed
	}
	copied := in.Clone()
	action.Tool = copied.Tool
	action.Args = copied.Args
	action.Refinements = copied.Refinements
	action.Attempts = copied.Attempts
	action.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, messages ...models.ChatMessage) error {
	for _, msg := range messages {
		if msg.UserID == "" {
			return fmt.Errorf("message user id is required")
		}
		if !msg.Role.Valid() {
			return fmt.Errorf("invalid message role %q", msg.Role)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range messages {
		s.seq++
		msg.Seq = s.seq
		fillMessage(&msg, s.now())
		s.messages = append(s.messages, msg)
	}
	return nil
}

func fillMessage(msg *models.ChatMessage, now time.Time) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Hash == "" {
		msg.Hash = models.ContentHash(msg.Content)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
}

func (s *MemoryStore) ListForUser(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatMessage
	for _, msg := range s.messages {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) ListForAction(ctx context.Context, actionID string) ([]models.ChatMessage, error) {
	if actionID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatMessage
	for _, msg := range s.messages {
		if msg.ActionID == actionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func credentialKey(userID, provider string) string {
	return provider + "\x00" + userID
}

func (s *MemoryStore) GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[credentialKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *MemoryStore) PutCredential(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.UserID == "" || cred.Provider == "" {
		return fmt.Errorf("credential user and provider are required")
	}
	copied := *cred
	s.mu.Lock()
	defer s.mu.Unlock()
	copied.UpdatedAt = s.now()
	s.credentials[credentialKey(cred.UserID, cred.Provider)] = &copied
	return nil
}

func (s *MemoryStore) DeleteCredential(ctx context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey(userID, provider)
	if _, ok := s.credentials[key]; !ok {
		return ErrNotFound
	}
	delete(s.credentials, key)
	return nil
}

func (s *MemoryStore) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	if reminder == nil || reminder.UserID == "" {
		return fmt.Errorf("reminder user is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if _, exists := s.reminders[reminder.ID]; exists {
		return ErrAlreadyExists
	}
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = s.now()
	}
	copied := *reminder
	s.reminders[reminder.ID] = &copied
	return nil
}

func (s *MemoryStore) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*models.Reminder
	for _, r := range s.reminders {
		if !r.Delivered && !r.DueAt.After(now) {
			copied := *r
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) MarkReminderDelivered(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.Delivered = true
	return nil
}
