// Package evaluate exposes the expression sandbox as a tool.
package evaluate

import (
	"context"
	"fmt"

	"github.com/haasonsaas/mira/internal/sandbox"
	"github.com/haasonsaas/mira/internal/tools"
)

// Name is the registered tool name.
const Name = "evaluate_expression"

// Tool evaluates arithmetic and logic expressions.
type Tool struct {
	runner sandbox.Runner
}

// New returns the tool backed by runner.
func New(runner sandbox.Runner) *Tool {
	return &Tool{runner: runner}
}

// Descriptor implements tools.Tool.
func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:         Name,
		DisplayName:  "Evaluate Expression",
		Description:  "Computes the value of an arithmetic, comparison or string expression.",
		UsageExample: "TOOL:evaluate_expression|expression=(17 * 3) + 4",
		Params: []tools.ParamSpec{
			{Name: "expression", Description: "the expression to compute, e.g. 2 * (3 + 4)", Required: true},
		},
	}
}

// Invoke implements tools.Tool.
func (t *Tool) Invoke(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	expression := inv.Arg("expression")
	out, err := t.runner.Run(ctx, expression)
	if err != nil {
		return tools.Result{}, err
	}
	if out.Error != "" {
		return tools.Result{}, &tools.InvalidArgumentError{
			Params: []string{"expression"},
			Err:    fmt.Errorf("%w: %s", sandbox.ErrInvalidExpression, out.Error),
		}
	}
	return tools.Result{
		Value:          out.Result,
		Summary:        fmt.Sprintf("%s = %s", expression, out.Result),
		SatisfiesQuery: tools.Bool(true),
	}, nil
}
