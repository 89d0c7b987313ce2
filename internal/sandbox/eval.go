// Package sandbox evaluates restricted expressions. Evaluation happens in a
// child process (the binary re-executed as "mira sandbox eval") so a
// runaway expression can be killed without touching the server.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/expr-lang/expr"
)

// ErrInvalidExpression is returned for expressions that fail to compile or run.
var ErrInvalidExpression = errors.New("sandbox: invalid expression")

// Limits bounds what an expression may do.
type Limits struct {
	// MaxLength is the maximum source length in bytes. Default: 1024
	MaxLength int
	// MaxNodes is the maximum AST size. Default: 500
	MaxNodes uint
}

func (l Limits) withDefaults() Limits {
	if l.MaxLength <= 0 {
		l.MaxLength = 1024
	}
	if l.MaxNodes == 0 {
		l.MaxNodes = 500
	}
	return l
}

// Output is the JSON document the child process writes.
type Output struct {
	Result string `json:"result,omitempty"`
	Type   string `json:"type,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Evaluate compiles and runs source with no environment. It recovers panics
// from the expression engine.
func Evaluate(source string, limits Limits) (out Output) {
	limits = limits.withDefaults()
	defer func() {
		if r := recover(); r != nil {
			out = Output{Error: fmt.Sprintf("evaluation panicked: %v", r)}
		}
	}()

	source = strings.TrimSpace(source)
	if source == "" {
		return Output{Error: "empty expression"}
	}
	if len(source) > limits.MaxLength {
		return Output{Error: fmt.Sprintf("expression longer than %d bytes", limits.MaxLength)}
	}

	env := map[string]any{}
	program, err := expr.Compile(source,
		expr.Env(env),
		expr.MaxNodes(limits.MaxNodes),
		expr.DisableBuiltin("now"),
	)
	if err != nil {
		return Output{Error: err.Error()}
	}
	value, err := expr.Run(program, env)
	if err != nil {
		return Output{Error: err.Error()}
	}
	return Output{Result: fmt.Sprint(value), Type: fmt.Sprintf("%T", value)}
}

// Serve reads one expression from r and writes its Output as JSON to w.
// It is the body of the hidden "sandbox eval" command.
func Serve(r io.Reader, w io.Writer, limits Limits) error {
	limits = limits.withDefaults()
	source, err := io.ReadAll(io.LimitReader(r, int64(limits.MaxLength)+1))
	if err != nil {
		return fmt.Errorf("sandbox: read expression: %w", err)
	}
	return json.NewEncoder(w).Encode(Evaluate(string(source), limits))
}
