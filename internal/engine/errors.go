package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClassificationAmbiguous marks an oracle reply that did not parse, or
	// named an unknown tool. The turn falls back to chat.
	ErrClassificationAmbiguous = errors.New("engine: ambiguous classification")

	// ErrRetryBudgetExhausted marks an action failed after too many
	// unsatisfying results.
	ErrRetryBudgetExhausted = errors.New("engine: retry budget exhausted")
)

// MissingParametersError lists the parameters a tool still needs before it
// can run. It drives the refinement question and is not a failure.
type MissingParametersError struct {
	Tool    string
	Missing []string
	Invalid []string
}

// Error implements the error interface.
func (e *MissingParametersError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("tool %s needs parameters: %s", e.Tool, strings.Join(parts, "; "))
}
