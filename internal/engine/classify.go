package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/prompts"
	"github.com/haasonsaas/mira/pkg/models"
)

// classify asks the oracle what the message wants. Oracle failures, parse
// failures and unknown tools all degrade to chat.
func (e *Engine) classify(ctx context.Context, t *turn, pending *models.Action) Intent {
	args := prompts.ClassifierArgs{Tools: e.promptTools(), Now: e.now()}
	if pending != nil && pending.Tool != "" {
		p := &prompts.Pending{Tool: pending.Tool, Args: pending.Args}
		if desc, ok := e.registry.Describe(pending.Tool); ok {
			p.DisplayName = desc.DisplayName
			p.Missing = e.registry.Validate(pending.Tool, pending.Args).Missing
		}
		args.Pending = p
	}
	system, err := prompts.Classifier(args)
	if err != nil {
		e.logger.ErrorContext(ctx, "render classifier prompt", "error", err)
		return e.ambiguous(ctx, err)
	}

	messages := append([]llm.Message{llm.System(system)}, toOracle(t.history, true)...)
	messages = append(messages, llm.User(t.text))
	reply, err := e.oracle.Complete(ctx, llm.Request{Messages: messages, Temperature: 0, MaxTokens: 200})
	if err != nil {
		e.logger.WarnContext(ctx, "classifier call failed", "error", err)
		return e.ambiguous(ctx, err)
	}
	return e.parse(ctx, reply.Content)
}

// nextStep asks the oracle which tool to try after an unsatisfying result.
func (e *Engine) nextStep(ctx context.Context, t *turn, action *models.Action) Intent {
	attempts := make([]prompts.Attempt, 0, len(action.Attempts))
	for _, a := range action.Attempts {
		attempts = append(attempts, prompts.Attempt{Tool: a.Tool, Args: a.Args, Summary: a.Summary})
	}
	system, err := prompts.NextStep(prompts.NextStepArgs{Query: t.query, Tools: e.promptTools(), Attempts: attempts})
	if err != nil {
		e.logger.ErrorContext(ctx, "render next step prompt", "error", err)
		return e.ambiguous(ctx, err)
	}
	reply, err := e.oracle.Complete(ctx, llm.Request{
		Messages:    []llm.Message{llm.System(system), llm.User(t.query)},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "next step call failed", "error", err)
		return e.ambiguous(ctx, err)
	}
	return e.parse(ctx, reply.Content)
}

func (e *Engine) parse(ctx context.Context, reply string) Intent {
	intent, err := ParseIntent(reply)
	if err != nil {
		return e.ambiguous(ctx, err)
	}
	if (intent.Kind == IntentTool || intent.Kind == IntentRefine) && !e.known(intent.Tool) {
		return e.ambiguous(ctx, fmt.Errorf("%w: unknown tool %s", ErrClassificationAmbiguous, intent.Tool))
	}
	e.metrics.Classifications.WithLabelValues(intent.Kind.String()).Inc()
	return intent
}

func (e *Engine) ambiguous(ctx context.Context, err error) Intent {
	e.metrics.Classifications.WithLabelValues("ambiguous").Inc()
	if errors.Is(err, ErrClassificationAmbiguous) {
		e.metrics.OracleMalformed.WithLabelValues("classifier").Inc()
	}
	e.logger.InfoContext(ctx, "classification fell back to chat", "error", err)
	return chatIntent()
}

func (e *Engine) known(name string) bool {
	_, ok := e.registry.Describe(name)
	return ok
}

// chat answers the message directly.
func (e *Engine) chat(ctx context.Context, t *turn) (Response, error) {
	descs := e.registry.List()
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.DisplayName)
	}
	system, err := prompts.ChatPrimer(prompts.ChatArgs{ToolNames: names, Traits: e.cfg.Traits, Now: e.now()})
	if err != nil {
		return Response{}, err
	}

	messages := append([]llm.Message{llm.System(system)}, toOracle(t.history, false)...)
	messages = append(messages, llm.User(t.text))
	reply, err := e.oracle.Complete(ctx, llm.Request{Messages: messages, Temperature: *e.cfg.ChatTemperature})
	if err != nil {
		e.logger.WarnContext(ctx, "chat call failed", "error", err)
		return Response{Text: chatUnavailableText, Outcome: OutcomeChat}, nil
	}
	return Response{Text: reply.Content, Outcome: OutcomeChat}, nil
}

func (e *Engine) promptTools() []prompts.Tool {
	descs := e.registry.List()
	out := make([]prompts.Tool, 0, len(descs))
	for _, d := range descs {
		params := make([]prompts.Param, 0, len(d.Params))
		for _, p := range d.Params {
			params = append(params, prompts.Param{Name: p.Name, Description: p.Description, Required: p.Required})
		}
		out = append(out, prompts.Tool{
			Name:         d.Name,
			DisplayName:  d.DisplayName,
			Description:  d.Description,
			UsageExample: d.UsageExample,
			Params:       params,
		})
	}
	return out
}

// toOracle converts stored history to oracle messages. System messages are
// kept only when withSystem is set.
func toOracle(history []models.ChatMessage, withSystem bool) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			out = append(out, llm.User(m.Content))
		case models.RoleAssistant:
			out = append(out, llm.Assistant(m.Content))
		case models.RoleSystem:
			if withSystem {
				out = append(out, llm.System(m.Content))
			}
		}
	}
	return out
}
