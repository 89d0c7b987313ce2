package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic talks to the Claude messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int
	retry     retrier
}

// NewAnthropic creates an Anthropic gateway. SDK retries are disabled in
// favour of the gateway's own classified retry loop.
func NewAnthropic(cfg Config) *Anthropic {
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(ProviderAnthropic)
	}
	return &Anthropic{
		client:    anthropic.NewClient(options...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     newRetrier(ProviderAnthropic, cfg),
	}
}

// Complete implements Gateway.
func (p *Anthropic) Complete(ctx context.Context, req Request) (Completion, error) {
	system, turns := splitSystem(req.Messages)

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range alternateTurns(turns) {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens(req, p.maxTokens)),
		Messages:    messages,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	return p.retry.do(ctx, func(ctx context.Context) (Completion, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return Completion{}, err
		}
		var text strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return completionFrom(text.String())
	})
}
