package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("tools: duplicate tool name")
	// ErrRegistrySealed is returned when registering after Seal.
	ErrRegistrySealed = errors.New("tools: registry is sealed")
	// ErrInvalidTool is returned for malformed names or parameter patterns.
	ErrInvalidTool = errors.New("tools: invalid tool descriptor")
)

// InvocationError wraps a failure raised by a tool.
type InvocationError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the tool ran out of time.
func (e *InvocationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// AuthorizationRequiredError is returned by tools that need the user to
// grant access to an external account first.
type AuthorizationRequiredError struct {
	Provider string
	AuthURL  string
}

// Error implements the error interface.
func (e *AuthorizationRequiredError) Error() string {
	return fmt.Sprintf("authorization required for %s", e.Provider)
}

// InvalidArgumentError is returned by tools that reject argument values
// which passed descriptor validation, such as a date in the past. The named
// parameters are asked for again.
type InvalidArgumentError struct {
	Params []string
	Err    error
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %v", strings.Join(e.Params, ", "), e.Err)
}

// Unwrap returns the underlying error.
func (e *InvalidArgumentError) Unwrap() error {
	return e.Err
}
