// Package engine decides what the assistant does with each inbound message.
//
// A message is classified as chat, a tool request, a refinement or a
// cancellation. Tool requests run as a persisted action: the engine
// normalizes and validates arguments, asks the user for anything missing,
// invokes the tool, has the result judged, and retries with a different tool
// within a fixed budget until the action completes or fails.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/haasonsaas/mira/internal/evaluator"
	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/observability"
	"github.com/haasonsaas/mira/internal/prompts"
	"github.com/haasonsaas/mira/internal/storage"
	"github.com/haasonsaas/mira/internal/tools"
	"github.com/haasonsaas/mira/pkg/models"
)

// Outcome summarizes how a turn ended.
type Outcome string

const (
	OutcomeChat         Outcome = "chat"
	OutcomeCompleted    Outcome = "completed"
	OutcomeNeedsInput   Outcome = "needs_input"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeFailed       Outcome = "failed"
	OutcomeAuthRequired Outcome = "auth_required"
	OutcomeToolError    Outcome = "tool_error"
)

// User-facing fallback texts.
const (
	chatUnavailableText = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	cancelledText       = "Okay, I've cancelled that request."
	discardedText       = "That request was cancelled, so I've set the result aside."
	noAnswerText        = "I'm sorry, I couldn't find a good answer to that."
	unknownToolText     = "Sorry, I can't do that yet."
)

// Response is the result of one turn.
type Response struct {
	Text string
	// ActionID is the action the turn belonged to, or "" for plain chat.
	ActionID string
	Outcome  Outcome
}

// ResultEvaluator judges tool results.
type ResultEvaluator interface {
	Evaluate(ctx context.Context, query, displayName string, result tools.Result) (evaluator.Evaluation, error)
}

// Config tunes the engine.
type Config struct {
	// MaxRefinements is the number of unsatisfying results tolerated before
	// an action fails. Default: 3
	MaxRefinements int
	// HistoryLimit bounds the chat history sent to the oracle. Default: 20
	HistoryLimit int
	// ToolTimeout bounds each tool invocation. Default: 30s
	ToolTimeout time.Duration
	// Traits shape the chat persona.
	Traits []string
	// ChatTemperature applies to plain chat replies. Nil means 0.7.
	ChatTemperature *float32
}

func (c Config) withDefaults() Config {
	if c.MaxRefinements <= 0 {
		c.MaxRefinements = 3
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.ChatTemperature == nil {
		t := float32(0.7)
		c.ChatTemperature = &t
	}
	return c
}

// Deps are the collaborators the engine needs.
type Deps struct {
	Registry  *tools.Registry
	Oracle    llm.Gateway
	Evaluator ResultEvaluator
	Actions   storage.ActionStore
	Messages  storage.MessageLog
}

// Engine resolves inbound messages. It is safe for concurrent use; turns of
// the same user are serialized.
type Engine struct {
	registry  *tools.Registry
	oracle    llm.Gateway
	evaluator ResultEvaluator
	actions   storage.ActionStore
	messages  storage.MessageLog

	cfg     Config
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
	now     func() time.Time
	locks   *userLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now in prompts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. The registry is sealed.
func New(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("engine: registry is required")
	case deps.Oracle == nil:
		return nil, errors.New("engine: oracle is required")
	case deps.Evaluator == nil:
		return nil, errors.New("engine: evaluator is required")
	case deps.Actions == nil || deps.Messages == nil:
		return nil, errors.New("engine: action store and message log are required")
	}
	deps.Registry.Seal()

	e := &Engine{
		registry:  deps.Registry,
		oracle:    deps.Oracle,
		evaluator: deps.Evaluator,
		actions:   deps.Actions,
		messages:  deps.Messages,
		cfg:       cfg.withDefaults(),
		metrics:   observability.Nop(),
		tracer:    observability.NopTracer(),
		logger:    slog.Default(),
		now:       time.Now,
		locks:     newUserLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// turn carries the state of one HandleMessage call.
type turn struct {
	userID  string
	text    string
	query   string
	history []models.ChatMessage
}

// HandleMessage runs one turn for in.UserID. The error is non-nil only when
// a store fails; every other condition is reported in Response.Text.
func (e *Engine) HandleMessage(ctx context.Context, in models.Inbound) (Response, error) {
	ctx = observability.AddUserID(ctx, in.UserID)
	ctx, span := e.tracer.TraceTurn(ctx, in.UserID)
	defer span.End()

	unlock := e.locks.lock(in.UserID)
	defer unlock()

	resp, err := e.handle(ctx, in)
	if err != nil {
		observability.RecordError(span, err)
		e.logger.ErrorContext(ctx, "turn failed", "error", err)
		return Response{}, err
	}
	e.logger.InfoContext(ctx, "turn handled", "outcome", resp.Outcome, "action_id", resp.ActionID)
	return resp, nil
}

func (e *Engine) handle(ctx context.Context, in models.Inbound) (Response, error) {
	t := &turn{userID: in.UserID, text: strings.TrimSpace(in.Text)}
	t.query = t.text

	pending, err := e.actions.GetPendingAction(ctx, in.UserID)
	if err != nil {
		return Response{}, fmt.Errorf("engine: load pending action: %w", err)
	}
	if pending != nil {
		ctx = observability.AddActionID(ctx, pending.ID)
		t.history, err = e.messages.ListForAction(ctx, pending.ID)
		if err != nil {
			return Response{}, fmt.Errorf("engine: load action history: %w", err)
		}
		t.query = originalQuery(t.history, t.text)
	} else {
		t.history, err = e.messages.ListForUser(ctx, in.UserID, e.cfg.HistoryLimit)
		if err != nil {
			return Response{}, fmt.Errorf("engine: load history: %w", err)
		}
	}

	intent := e.classify(ctx, t, pending)

	if pending == nil {
		switch intent.Kind {
		case IntentTool, IntentRefine:
			action, err := e.start(ctx, t.userID, intent)
			if err != nil {
				return Response{}, err
			}
			return e.run(ctx, t, action)
		default:
			return e.chat(ctx, t)
		}
	}

	switch intent.Kind {
	case IntentCancel:
		if err := e.close(ctx, pending, models.ActionCancelled); err != nil && !errors.Is(err, storage.ErrActionClosed) {
			return Response{}, err
		}
		return Response{Text: cancelledText, ActionID: pending.ID, Outcome: OutcomeCancelled}, nil

	case IntentTool, IntentRefine:
		if pending.Tool == "" || pending.Tool == intent.Tool {
			applyIntent(pending, intent)
			return e.run(ctx, t, pending)
		}
		// Switching topics closes the old action and starts over.
		if err := e.close(ctx, pending, models.ActionCancelled); err != nil && !errors.Is(err, storage.ErrActionClosed) {
			return Response{}, err
		}
		t.query = t.text
		action, err := e.start(ctx, t.userID, intent)
		if err != nil {
			return Response{}, err
		}
		return e.run(ctx, t, action)

	default:
		return e.continueWithText(ctx, t, pending)
	}
}

// continueWithText treats an unclassified reply as the value of the first
// parameter the pending action still needs.
func (e *Engine) continueWithText(ctx context.Context, t *turn, pending *models.Action) (Response, error) {
	target := ""
	if tool, ok := e.registry.Resolve(pending.Tool); ok {
		v := e.registry.Validate(pending.Tool, e.normalize(ctx, tool, pending.Args))
		switch {
		case len(v.Missing) > 0:
			target = v.Missing[0]
		case len(v.Invalid) > 0:
			target = v.Invalid[0]
		}
	}
	if target == "" {
		if err := e.close(ctx, pending, models.ActionCancelled); err != nil && !errors.Is(err, storage.ErrActionClosed) {
			return Response{}, err
		}
		history, err := e.messages.ListForUser(ctx, t.userID, e.cfg.HistoryLimit)
		if err != nil {
			return Response{}, fmt.Errorf("engine: load history: %w", err)
		}
		t.history = history
		t.query = t.text
		return e.chat(ctx, t)
	}

	if pending.Args == nil {
		pending.Args = map[string]string{}
	}
	pending.Args[target] = t.text
	return e.run(ctx, t, pending)
}

// start creates the user's pending action for intent. When another request
// already created one, that action is continued.
func (e *Engine) start(ctx context.Context, userID string, intent Intent) (*models.Action, error) {
	action, created, err := e.actions.CreatePendingAction(ctx, userID, intent.Tool)
	if err != nil {
		return nil, fmt.Errorf("engine: create action: %w", err)
	}
	if created {
		e.metrics.ActionTransitions.WithLabelValues(string(models.ActionPending)).Inc()
	} else if action.Tool != "" && action.Tool != intent.Tool {
		if err := e.close(ctx, action, models.ActionCancelled); err != nil && !errors.Is(err, storage.ErrActionClosed) {
			return nil, err
		}
		if action, _, err = e.actions.CreatePendingAction(ctx, userID, intent.Tool); err != nil {
			return nil, fmt.Errorf("engine: create action: %w", err)
		}
		e.metrics.ActionTransitions.WithLabelValues(string(models.ActionPending)).Inc()
	}
	applyIntent(action, intent)
	return action, nil
}

// applyIntent binds the intent's tool and merges its arguments. Keys a
// REFINE reply names as missing are cleared so validation asks for them.
func applyIntent(action *models.Action, intent Intent) {
	if action.Tool != intent.Tool {
		action.Tool = intent.Tool
		action.Args = nil
	}
	if action.Args == nil {
		action.Args = map[string]string{}
	}
	for k, v := range intent.Args {
		if strings.TrimSpace(v) != "" {
			action.Args[k] = v
		}
	}
	for _, k := range intent.Missing {
		delete(action.Args, k)
	}
}

// run is the bounded tool loop. Every iteration either suspends for user
// input, ends the action, or switches to the oracle's next tool.
func (e *Engine) run(ctx context.Context, t *turn, action *models.Action) (Response, error) {
	ctx = observability.AddActionID(ctx, action.ID)
	budget := e.cfg.MaxRefinements + 1

	for invocations := 0; invocations < budget; invocations++ {
		tool, ok := e.registry.Resolve(action.Tool)
		if !ok {
			if err := e.close(ctx, action, models.ActionFailed); err != nil && !errors.Is(err, storage.ErrActionClosed) {
				return Response{}, err
			}
			return Response{Text: unknownToolText, ActionID: action.ID, Outcome: OutcomeFailed}, nil
		}
		desc := tool.Descriptor()

		action.Args = e.normalize(ctx, tool, action.Args)
		if v := e.registry.Validate(desc.Name, action.Args); !v.OK() {
			return e.suspend(ctx, t, action, desc, &MissingParametersError{Tool: desc.Name, Missing: v.Missing, Invalid: v.Invalid})
		}

		result, err := e.invoke(ctx, tool, tools.Invocation{UserID: t.userID, Query: t.query, Args: models.CloneArgs(action.Args)})
		var argErr *tools.InvalidArgumentError
		if errors.As(err, &argErr) {
			// Rejected values are cleared so the next reply fills them.
			for _, k := range argErr.Params {
				delete(action.Args, k)
			}
			return e.suspend(ctx, t, action, desc, &MissingParametersError{Tool: desc.Name, Invalid: argErr.Params})
		}
		if err != nil {
			return e.toolFailed(ctx, action, desc, err)
		}

		eval, err := e.evaluator.Evaluate(ctx, t.query, desc.DisplayName, result)
		if err != nil {
			e.logger.WarnContext(ctx, "evaluation failed", "tool", desc.Name, "error", err)
			eval.Satisfied = false
		}
		if eval.Satisfied {
			return e.complete(ctx, action, eval)
		}

		action.Attempts = append(action.Attempts, models.Attempt{
			Tool:    desc.Name,
			Args:    models.CloneArgs(action.Args),
			Summary: eval.Summary,
		})
		action.Refinements++
		if action.Refinements > e.cfg.MaxRefinements {
			return e.exhaust(ctx, action)
		}
		if err := e.actions.SaveActionProgress(ctx, action); err != nil {
			return e.closedOr(ctx, action, err)
		}

		next := e.nextStep(ctx, t, action)
		switch next.Kind {
		case IntentTool, IntentRefine:
			applyIntent(action, next)
		default:
			return e.exhaust(ctx, action)
		}
	}
	return e.exhaust(ctx, action)
}

func (e *Engine) normalize(ctx context.Context, tool tools.Tool, args map[string]string) map[string]string {
	if n, ok := tool.(tools.Normalizer); ok {
		return n.Normalize(ctx, models.CloneArgs(args))
	}
	return models.CloneArgs(args)
}

// suspend stores the refinement instruction and asks the user for the
// parameters named by missing.
func (e *Engine) suspend(ctx context.Context, t *turn, action *models.Action, desc tools.Descriptor, missing *MissingParametersError) (Response, error) {
	e.logger.DebugContext(ctx, "awaiting parameters", "error", missing)

	args := prompts.RefineArgs{
		Query:       t.query,
		Tool:        desc.Name,
		DisplayName: desc.DisplayName,
		Missing:     missing.Missing,
		Invalid:     missing.Invalid,
		Args:        action.Args,
	}
	instruction, err := prompts.Refinement(args)
	if err != nil {
		return Response{}, err
	}
	question, err := prompts.RefinementQuestion(args)
	if err != nil {
		return Response{}, err
	}

	if err := e.actions.SaveActionProgress(ctx, action); err != nil {
		return e.closedOr(ctx, action, err)
	}
	if err := e.messages.Append(ctx, models.ChatMessage{
		UserID:   t.userID,
		Role:     models.RoleSystem,
		Content:  instruction,
		ActionID: action.ID,
	}); err != nil {
		return Response{}, fmt.Errorf("engine: store refinement: %w", err)
	}
	return Response{Text: question, ActionID: action.ID, Outcome: OutcomeNeedsInput}, nil
}

// invoke runs a tool under the per-call timeout. Failures other than
// authorization and rejected arguments come back as *tools.InvocationError.
func (e *Engine) invoke(ctx context.Context, tool tools.Tool, inv tools.Invocation) (result tools.Result, err error) {
	name := tool.Descriptor().Name
	ctx, span := e.tracer.TraceTool(ctx, name)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = tools.Result{}, &tools.InvocationError{Tool: name, Err: fmt.Errorf("panic: %v", r)}
		}
		e.metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		e.metrics.ToolInvocations.WithLabelValues(name, toolOutcome(err)).Inc()
		observability.RecordError(span, err)
	}()

	result, err = tool.Invoke(ctx, inv)
	if err != nil {
		var authErr *tools.AuthorizationRequiredError
		if errors.As(err, &authErr) {
			return tools.Result{}, authErr
		}
		var argErr *tools.InvalidArgumentError
		if errors.As(err, &argErr) {
			return tools.Result{}, argErr
		}
		return tools.Result{}, &tools.InvocationError{Tool: name, Err: err}
	}
	return result, nil
}

func toolOutcome(err error) string {
	var authErr *tools.AuthorizationRequiredError
	var argErr *tools.InvalidArgumentError
	var invErr *tools.InvocationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &authErr):
		return "auth_required"
	case errors.As(err, &argErr):
		return "invalid_args"
	case errors.As(err, &invErr) && invErr.Timeout():
		return "timeout"
	default:
		return "error"
	}
}

// toolFailed leaves the action pending and tells the user what happened.
func (e *Engine) toolFailed(ctx context.Context, action *models.Action, desc tools.Descriptor, err error) (Response, error) {
	if saveErr := e.actions.SaveActionProgress(ctx, action); saveErr != nil && !errors.Is(saveErr, storage.ErrActionClosed) {
		return Response{}, fmt.Errorf("engine: save action: %w", saveErr)
	}

	var authErr *tools.AuthorizationRequiredError
	if errors.As(err, &authErr) {
		provider := cases.Title(language.English).String(authErr.Provider)
		return Response{
			Text: fmt.Sprintf("To %s I need access to your %s account. Please connect it here and then ask me again: %s",
				strings.ToLower(desc.DisplayName), provider, authErr.AuthURL),
			ActionID: action.ID,
			Outcome:  OutcomeAuthRequired,
		}, nil
	}

	e.logger.WarnContext(ctx, "tool invocation failed", "tool", desc.Name, "error", err)
	text := fmt.Sprintf("Sorry, something went wrong while trying to %s. Please try again.", strings.ToLower(desc.DisplayName))
	var invErr *tools.InvocationError
	if errors.As(err, &invErr) && invErr.Timeout() {
		text = fmt.Sprintf("Sorry, it took too long to %s. Please try again.", strings.ToLower(desc.DisplayName))
	}
	return Response{Text: text, ActionID: action.ID, Outcome: OutcomeToolError}, nil
}

// complete closes the action with the satisfying summary unless the user
// cancelled it in the meantime.
func (e *Engine) complete(ctx context.Context, action *models.Action, eval evaluator.Evaluation) (Response, error) {
	if err := e.actions.SaveActionProgress(ctx, action); err != nil {
		return e.closedOr(ctx, action, err)
	}
	if err := e.close(ctx, action, models.ActionCompleted); err != nil {
		return e.closedOr(ctx, action, err)
	}
	return Response{Text: eval.Summary, ActionID: action.ID, Outcome: OutcomeCompleted}, nil
}

// exhaust fails the action and returns the best summary seen so far.
func (e *Engine) exhaust(ctx context.Context, action *models.Action) (Response, error) {
	e.logger.InfoContext(ctx, "action failed", "error", ErrRetryBudgetExhausted, "attempts", len(action.Attempts))
	if err := e.actions.SaveActionProgress(ctx, action); err != nil {
		return e.closedOr(ctx, action, err)
	}
	if err := e.close(ctx, action, models.ActionFailed); err != nil {
		return e.closedOr(ctx, action, err)
	}
	return Response{Text: bestSummary(action.Attempts), ActionID: action.ID, Outcome: OutcomeFailed}, nil
}

// closedOr maps a lost race with a cancellation to a discarded result and
// anything else to an infrastructure error.
func (e *Engine) closedOr(ctx context.Context, action *models.Action, err error) (Response, error) {
	if errors.Is(err, storage.ErrActionClosed) {
		e.logger.InfoContext(ctx, "action closed concurrently, result discarded")
		return Response{Text: discardedText, ActionID: action.ID, Outcome: OutcomeCancelled}, nil
	}
	return Response{}, fmt.Errorf("engine: update action: %w", err)
}

// close re-reads the action and moves it to a terminal status.
func (e *Engine) close(ctx context.Context, action *models.Action, status models.ActionStatus) error {
	current, err := e.actions.GetAction(ctx, action.ID)
	if err != nil {
		return fmt.Errorf("engine: reload action: %w", err)
	}
	if current.Status != models.ActionPending {
		return storage.ErrActionClosed
	}
	updated, err := e.actions.UpdateActionStatus(ctx, action.ID, status)
	if err != nil {
		return err
	}
	action.Status = updated.Status
	e.metrics.ActionTransitions.WithLabelValues(string(status)).Inc()
	return nil
}

func bestSummary(attempts []models.Attempt) string {
	best := ""
	for _, a := range attempts {
		if s := strings.TrimSpace(a.Summary); len(s) > len(best) {
			best = s
		}
	}
	if best == "" {
		return noAnswerText
	}
	return best
}

// originalQuery returns the first user message of an action's history.
func originalQuery(history []models.ChatMessage, fallback string) string {
	for _, m := range history {
		if m.Role == models.RoleUser && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return fallback
}
