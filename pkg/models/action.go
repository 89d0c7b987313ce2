package models

import "time"

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

const (
	// ActionPending is the only non-terminal status.
	ActionPending   ActionStatus = "PENDING"
	ActionCompleted ActionStatus = "COMPLETED"
	ActionFailed    ActionStatus = "FAILED"
	ActionCancelled ActionStatus = "CANCELLED"
)

// Terminal reports whether the status closes the action.
func (s ActionStatus) Terminal() bool {
	return s == ActionCompleted || s == ActionFailed || s == ActionCancelled
}

// Valid reports whether s is a known status.
func (s ActionStatus) Valid() bool {
	return s == ActionPending || s.Terminal()
}

// Action is the persisted state machine for one multi-turn tool invocation.
// A user owns at most one PENDING action at a time.
type Action struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Tool   string       `json:"tool,omitempty"` // empty until a tool is bound
	Status ActionStatus `json:"status"`

	// Args is the running argument set merged across user turns.
	Args map[string]string `json:"args,omitempty"`
	// Refinements counts unsatisfying tool results for this action.
	Refinements int `json:"refinements"`
	// Attempts records the tools tried so far and what they produced.
	Attempts []Attempt `json:"attempts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attempt is one tool invocation recorded on an action.
type Attempt struct {
	Tool    string            `json:"tool"`
	Args    map[string]string `json:"args,omitempty"`
	Summary string            `json:"summary,omitempty"`
}

// Clone returns a deep copy so stores never share maps with callers.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	out := *a
	out.Args = CloneArgs(a.Args)
	if a.Attempts != nil {
		out.Attempts = make([]Attempt, len(a.Attempts))
		for i, at := range a.Attempts {
			at.Args = CloneArgs(at.Args)
			out.Attempts[i] = at
		}
	}
	return &out
}

// CloneArgs copies an argument map. A nil map stays nil.
func CloneArgs(args map[string]string) map[string]string {
	if args == nil {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// Credential is a per-user OAuth token for an external provider.
type Credential struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Reminder is a note to deliver to a user at a given time.
type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	DueAt     time.Time `json:"due_at"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}
