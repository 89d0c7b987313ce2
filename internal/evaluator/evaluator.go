// Package evaluator turns raw tool output into a user-facing summary and
// decides whether that summary answers the user's query.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/observability"
	"github.com/haasonsaas/mira/internal/prompts"
	"github.com/haasonsaas/mira/internal/tools"
)

// ErrOracleMalformedOutput is returned when the summarization reply cannot
// be parsed even after recovery. The Evaluation still carries a sanitized
// fallback summary.
var ErrOracleMalformedOutput = errors.New("evaluator: malformed oracle output")

// Evaluation is the verdict on one tool result.
type Evaluation struct {
	Summary   string
	Sources   []string
	Satisfied bool
}

// Evaluator summarizes tool results and judges their adequacy.
type Evaluator struct {
	oracle  llm.Gateway
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMetrics counts malformed oracle replies.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New creates an Evaluator backed by oracle.
func New(oracle llm.Gateway, opts ...Option) *Evaluator {
	e := &Evaluator{
		oracle:  oracle,
		metrics: observability.Nop(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate summarizes result for query and decides whether it satisfies it.
//
// A result that already carries a Summary is not re-summarized, and a
// result that sets SatisfiesQuery is not re-judged. On ErrOracleMalformedOutput
// the returned Evaluation holds the sanitized reply and is never satisfied.
func (e *Evaluator) Evaluate(ctx context.Context, query, displayName string, result tools.Result) (Evaluation, error) {
	eval := Evaluation{Summary: strings.TrimSpace(result.Summary), Sources: dedupe(result.Sources)}

	if eval.Summary == "" {
		payload, err := e.summarize(ctx, query, displayName, result)
		if err != nil {
			if errors.Is(err, ErrOracleMalformedOutput) {
				eval.Summary = payload.Summary
				return eval, err
			}
			return eval, fmt.Errorf("evaluator: summarize: %w", err)
		}
		eval.Summary = payload.Summary
		eval.Sources = dedupe(append(payload.Sources, eval.Sources...))
	}

	if result.SatisfiesQuery != nil {
		eval.Satisfied = *result.SatisfiesQuery
		return eval, nil
	}

	satisfied, err := e.Satisfies(ctx, query, eval.Summary)
	if err != nil {
		return eval, err
	}
	eval.Satisfied = satisfied
	return eval, nil
}

// Satisfies asks the oracle whether summary answers query. Only an
// affirmative reply counts; errors report false.
func (e *Evaluator) Satisfies(ctx context.Context, query, summary string) (bool, error) {
	if strings.TrimSpace(summary) == "" {
		return false, nil
	}
	prompt, err := prompts.Adequacy(query, summary)
	if err != nil {
		return false, err
	}
	completion, err := e.oracle.Complete(ctx, llm.Request{
		Messages:    []llm.Message{llm.User(prompt)},
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return false, fmt.Errorf("evaluator: adequacy: %w", err)
	}
	return affirmative(completion.Content), nil
}

func (e *Evaluator) summarize(ctx context.Context, query, displayName string, result tools.Result) (SummaryOutput, error) {
	prompt, err := prompts.Summary(prompts.SummaryArgs{
		Query:       query,
		DisplayName: displayName,
		Data:        result.Text(),
	})
	if err != nil {
		return SummaryOutput{}, err
	}
	completion, err := e.oracle.Complete(ctx, llm.Request{
		Messages:    []llm.Message{llm.System(prompt)},
		Temperature: 0.3,
	})
	if err != nil {
		return SummaryOutput{}, err
	}

	payload, err := ParseSummary(completion.Content)
	if err != nil {
		e.metrics.OracleMalformed.WithLabelValues("evaluator").Inc()
		e.logger.WarnContext(ctx, "summary reply did not parse", "error", err)
		return SummaryOutput{Summary: sanitize(completion.Content)}, err
	}
	return payload, nil
}

var (
	knownPrefixes = []string{"here is the json:", "here's the json:", "json:", "summary:", "answer:", "response:"}
	fencePattern  = regexp.MustCompile("(?s)^```[a-zA-Z0-9]*\\s*(.*?)\\s*```$")
)

// ParseSummary decodes the oracle's {"summary", "sources"} reply. When the
// first parse fails, known prefixes and code fences are stripped and the
// outermost braces are extracted before a second attempt.
func ParseSummary(reply string) (SummaryOutput, error) {
	raw := strings.TrimSpace(reply)
	if payload, err := validateSummary([]byte(raw)); err == nil {
		return payload, nil
	}

	cleaned := stripDecorations(raw)
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	payload, err := validateSummary([]byte(cleaned))
	if err != nil {
		return SummaryOutput{}, fmt.Errorf("%w: %v", ErrOracleMalformedOutput, err)
	}
	return payload, nil
}

func stripDecorations(s string) string {
	for {
		before := s
		s = strings.TrimSpace(s)
		if m := fencePattern.FindStringSubmatch(s); m != nil {
			s = m[1]
		}
		lower := strings.ToLower(s)
		for _, p := range knownPrefixes {
			if strings.HasPrefix(lower, p) {
				s = s[len(p):]
				break
			}
		}
		if s == before {
			return s
		}
	}
}

// sanitize turns an unparseable reply into something safe to show a user.
func sanitize(reply string) string {
	s := stripDecorations(reply)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return ""
	}
	return strings.TrimSpace(s)
}

func affirmative(reply string) bool {
	s := strings.ToUpper(strings.TrimSpace(reply))
	s = strings.TrimLeft(s, "\"'`*. ")
	return strings.HasPrefix(s, "YES") || strings.HasPrefix(s, "TRUE")
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
