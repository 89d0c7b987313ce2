package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

// Gemini talks to the Google Gen AI API.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int
	retry     retrier
}

// NewGemini creates a Gemini gateway.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(ProviderGemini)
	}
	return &Gemini{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     newRetrier(ProviderGemini, cfg),
	}, nil
}

// Complete implements Gateway.
func (p *Gemini) Complete(ctx context.Context, req Request) (Completion, error) {
	system, turns := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range alternateTurns(turns) {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:   &temperature,
		StopSequences: req.Stop,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	tokens := min(maxTokens(req, p.maxTokens), math.MaxInt32)
	// #nosec G115 -- bounded by min above
	config.MaxOutputTokens = int32(tokens)

	return p.retry.do(ctx, func(ctx context.Context) (Completion, error) {
		resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
		if err != nil {
			return Completion{}, err
		}
		var text strings.Builder
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" && !part.Thought {
					text.WriteString(part.Text)
				}
			}
			// The first candidate with content is the reply.
			if text.Len() > 0 {
				break
			}
		}
		return completionFrom(text.String())
	})
}
