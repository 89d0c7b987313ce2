package llm

import (
	"context"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to the chat completions API, or any compatible endpoint via
// BaseURL.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	retry     retrier
}

// NewOpenAI creates an OpenAI gateway.
func NewOpenAI(cfg Config) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(ProviderOpenAI)
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     newRetrier(ProviderOpenAI, cfg),
	}
}

// Complete implements Gateway.
func (p *OpenAI) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	// The client drops a zero temperature, which the API reads as 1.
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: temperature,
		Stop:        req.Stop,
		MaxTokens:   maxTokens(req, p.maxTokens),
	}

	return p.retry.do(ctx, func(ctx context.Context) (Completion, error) {
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return Completion{}, err
		}
		if len(resp.Choices) == 0 {
			return Completion{}, ErrNoCompletion
		}
		return completionFrom(resp.Choices[0].Message.Content)
	})
}

func openAIRole(role Role) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
