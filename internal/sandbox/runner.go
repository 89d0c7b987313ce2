package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when evaluation exceeds its deadline.
var ErrTimeout = errors.New("sandbox: evaluation timed out")

// Runner evaluates one expression.
type Runner interface {
	Run(ctx context.Context, expression string) (Output, error)
}

// InProcessRunner evaluates in the current process. Tests use it.
type InProcessRunner struct {
	Limits Limits
}

// Run implements Runner.
func (r InProcessRunner) Run(ctx context.Context, expression string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	return Evaluate(expression, r.Limits), nil
}

// ProcessRunner evaluates in a child process with an empty environment.
type ProcessRunner struct {
	// Executable is the binary to run. Default: the current executable.
	Executable string
	// Args are passed before the expression is written to stdin.
	// Default: ["sandbox", "eval"]
	Args    []string
	Timeout time.Duration
}

// NewProcessRunner returns a runner that re-executes the current binary.
func NewProcessRunner(timeout time.Duration) (*ProcessRunner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("sandbox: locate executable: %w", err)
	}
	return &ProcessRunner{Executable: exe, Args: []string{"sandbox", "eval"}, Timeout: timeout}, nil
}

// Run implements Runner.
func (r *ProcessRunner) Run(ctx context.Context, expression string) (Output, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := r.Args
	if args == nil {
		args = []string{"sandbox", "eval"}
	}
	// #nosec G204 -- executable and args are fixed by the caller, the expression goes to stdin
	cmd := exec.CommandContext(ctx, r.Executable, args...)
	cmd.Env = []string{}
	cmd.Dir = os.TempDir()
	cmd.Stdin = strings.NewReader(expression)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Output{}, ErrTimeout
		}
		return Output{}, fmt.Errorf("sandbox: child process: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Output{}, fmt.Errorf("sandbox: decode child output: %w", err)
	}
	return out, nil
}
