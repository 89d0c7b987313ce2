package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/mira/pkg/models"
)

const maxCreateAttempts = 3

// SQLStore implements every store interface on database/sql. Queries are
// written with "?" placeholders and rebound for Postgres.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// Open returns the StoreSet selected by cfg. The memory driver needs no DSN.
func Open(ctx context.Context, cfg Config) (StoreSet, error) {
	if err := cfg.Validate(); err != nil {
		return StoreSet{}, err
	}
	driver := strings.ToLower(cfg.Driver)
	if driver == "" || driver == DriverMemory {
		return NewMemoryStores(), nil
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	store := NewSQLStore(db, driver == DriverPostgres)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return StoreSet{}, err
		}
	}
	return StoreSet{
		Actions:     store,
		Messages:    store,
		Credentials: store,
		Reminders:   store,
		closer:      db.Close,
	}, nil
}

// NewSQLStore wraps an open database. postgres selects "$n" placeholders.
func NewSQLStore(db *sql.DB, postgres bool) *SQLStore {
	return &SQLStore{db: db, postgres: postgres, now: time.Now}
}

// Migrate creates tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if s.postgres {
		statements = postgresSchema
	}
	for _, stmt := range append(append([]string{}, statements...), schemaIndexes...) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind converts "?" placeholders to "$1..$n" for Postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

const actionColumns = `id, user_id, tool, status, args, refinements, attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*models.Action, error) {
	var (
		action             models.Action
		status             string
		args, attempts     string
		createdAt, updated int64
	)
	if err := row.Scan(&action.ID, &action.UserID, &action.Tool, &status, &args,
		&action.Refinements, &attempts, &createdAt, &updated); err != nil {
		return nil, err
	}
	action.Status = models.ActionStatus(status)
	action.CreatedAt = fromMicros(createdAt)
	action.UpdatedAt = fromMicros(updated)
	if args != "" {
		if err := json.Unmarshal([]byte(args), &action.Args); err != nil {
			return nil, fmt.Errorf("unmarshal action args: %w", err)
		}
	}
	if action.Args == nil {
		action.Args = map[string]string{}
	}
	if attempts != "" {
		if err := json.Unmarshal([]byte(attempts), &action.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal action attempts: %w", err)
		}
	}
	return &action, nil
}

func (s *SQLStore) GetPendingAction(ctx context.Context, userID string) (*models.Action, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+actionColumns+` FROM actions WHERE user_id = ? AND status = ?`),
		userID, string(models.ActionPending))
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending action: %w", err)
	}
	return action, nil
}

func (s *SQLStore) insertAction(ctx context.Context, userID, tool string, status models.ActionStatus) (*models.Action, error) {
	now := s.now().UTC()
	action := &models.Action{
		ID:        uuid.NewString(),
		UserID:    userID,
		Tool:      tool,
		Status:    status,
		Args:      map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		action.ID, action.UserID, action.Tool, string(action.Status), "{}", 0, "[]",
		toMicros(now), toMicros(now),
	)
	if err != nil {
		return nil, err
	}
	action.CreatedAt = fromMicros(toMicros(now))
	action.UpdatedAt = action.CreatedAt
	return action, nil
}

func (s *SQLStore) CreatePendingAction(ctx context.Context, userID, tool string) (*models.Action, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("user id is required")
	}
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		action, err := s.insertAction(ctx, userID, tool, models.ActionPending)
		if err == nil {
			return action, true, nil
		}
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("create action: %w", err)
		}
		existing, err := s.GetPendingAction(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// The conflicting action closed between insert and select; try again.
	}
	return nil, false, fmt.Errorf("create action: pending action for %s kept changing", userID)
}

func (s *SQLStore) CreateAction(ctx context.Context, userID, tool string, status models.ActionStatus) (*models.Action, error) {
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
	action, err := s.insertAction(ctx, userID, tool, status)
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return action, nil
}

func (s *SQLStore) GetAction(ctx context.Context, id string) (*models.Action, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+actionColumns+` FROM actions WHERE id = ?`), id)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return action, nil
}

// closedOrMissing explains why a conditional update touched no rows.
func (s *SQLStore) closedOrMissing(ctx context.Context, id string) (*models.Action, error) {
	current, err := s.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrActionClosed
}

func (s *SQLStore) UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus) (*models.Action, error) {
	if err := validTerminal(status); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE actions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		string(status), toMicros(s.now()), id, string(models.ActionPending))
	if err != nil {
		return nil, fmt.Errorf("update action status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update action status: %w", err)
	}
	if n == 0 {
		return s.closedOrMissing(ctx, id)
	}
	return s.GetAction(ctx, id)
}

func (s *SQLStore) SaveActionProgress(ctx context.Context, action *models.Action) error {
	if action == nil || action.ID == "" {
		return fmt.Errorf("action is required")
	}
	args := action.Args
	if args == nil {
		args = map[string]string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal action args: %w", err)
	}
	attempts := action.Attempts
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	attemptsJSON, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("marshal action attempts: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE actions SET tool = ?, args = ?, refinements = ?, attempts = ?, updated_at = ?
		 WHERE id = ? AND status = ?`),
		action.Tool, string(argsJSON), action.Refinements, string(attemptsJSON),
		toMicros(s.now()), action.ID, string(models.ActionPending))
	if err != nil {
		return fmt.Errorf("save action progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save action progress: %w", err)
	}
	if n == 0 {
		_, err := s.closedOrMissing(ctx, action.ID)
		return err
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, messages ...models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(`INSERT INTO chat_messages (id, user_id, role, content, action_id, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	now := s.now()
	for _, msg := range messages {
		if msg.UserID == "" {
			return fmt.Errorf("message user id is required")
		}
		if !msg.Role.Valid() {
			return fmt.Errorf("invalid message role %q", msg.Role)
		}
		fillMessage(&msg, now)
		if _, err := tx.ExecContext(ctx, query,
			msg.ID, msg.UserID, string(msg.Role), msg.Content, msg.ActionID, msg.Hash, toMicros(msg.CreatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("append message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

const messageColumns = `seq, id, user_id, role, content, action_id, hash, created_at`

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			msg       models.ChatMessage
			role      string
			createdAt int64
		)
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.UserID, &role, &msg.Content, &msg.ActionID, &msg.Hash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.CreatedAt = fromMicros(createdAt)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListForUser(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return s.queryMessages(ctx,
			`SELECT `+messageColumns+` FROM chat_messages WHERE user_id = ? ORDER BY seq ASC`, userID)
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM chat_messages WHERE user_id = ? ORDER BY seq DESC LIMIT ?
		) recent ORDER BY seq ASC`, userID, limit)
}

func (s *SQLStore) ListForAction(ctx context.Context, actionID string) ([]models.ChatMessage, error) {
	if actionID == "" {
		return nil, nil
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE action_id = ? ORDER BY seq ASC`, actionID)
}

func (s *SQLStore) GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT user_id, provider, access_token, refresh_token, token_type, expiry, updated_at
		 FROM credentials WHERE user_id = ? AND provider = ?`), userID, provider)
	var (
		cred            models.Credential
		expiry, updated int64
	)
	if err := row.Scan(&cred.UserID, &cred.Provider, &cred.AccessToken, &cred.RefreshToken,
		&cred.TokenType, &expiry, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	cred.Expiry = fromMicros(expiry)
	cred.UpdatedAt = fromMicros(updated)
	return &cred, nil
}

func (s *SQLStore) PutCredential(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.UserID == "" || cred.Provider == "" {
		return fmt.Errorf("credential user and provider are required")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO credentials (user_id, provider, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   token_type = excluded.token_type,
		   expiry = excluded.expiry,
		   updated_at = excluded.updated_at`),
		cred.UserID, cred.Provider, cred.AccessToken, cred.RefreshToken, cred.TokenType,
		toMicros(cred.Expiry), toMicros(s.now()))
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteCredential(ctx context.Context, userID, provider string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM credentials WHERE user_id = ? AND provider = ?`), userID, provider)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	if reminder == nil || reminder.UserID == "" {
		return fmt.Errorf("reminder user is required")
	}
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO reminders (id, user_id, text, due_at, delivered_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		reminder.ID, reminder.UserID, reminder.Text, toMicros(reminder.DueAt), 0, toMicros(reminder.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

func (s *SQLStore) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, text, due_at, created_at FROM reminders
		 WHERE delivered_at = 0 AND due_at <= ? ORDER BY due_at ASC LIMIT ?`), toMicros(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		var (
			r              models.Reminder
			due, createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &due, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.DueAt = fromMicros(due)
		r.CreatedAt = fromMicros(createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkReminderDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE reminders SET delivered_at = ? WHERE id = ?`), toMicros(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark reminder delivered: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
