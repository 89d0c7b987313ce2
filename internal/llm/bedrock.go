package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// converseAPI is the subset of the Bedrock runtime client the gateway uses.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock talks to the AWS Bedrock Converse API.
type Bedrock struct {
	client    converseAPI
	model     string
	maxTokens int
	retry     retrier
}

// NewBedrock creates a Bedrock gateway. Static keys from cfg take priority
// over the default credential chain.
func NewBedrock(ctx context.Context, cfg Config) (*Bedrock, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		})
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(ProviderBedrock)
	}
	return newBedrockWithClient(bedrockruntime.NewFromConfig(awsCfg, clientOpts...), cfg), nil
}

func newBedrockWithClient(client converseAPI, cfg Config) *Bedrock {
	return &Bedrock{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     newRetrier(ProviderBedrock, cfg),
	}
}

// Complete implements Gateway.
func (p *Bedrock) Complete(ctx context.Context, req Request) (Completion, error) {
	system, turns := splitSystem(req.Messages)

	messages := make([]types.Message, 0, len(turns))
	for _, m := range alternateTurns(turns) {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	tokens := min(maxTokens(req, p.maxTokens), math.MaxInt32)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.model),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			// #nosec G115 -- bounded by min above
			MaxTokens:     aws.Int32(int32(tokens)),
			Temperature:   aws.Float32(req.Temperature),
			StopSequences: req.Stop,
		},
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	return p.retry.do(ctx, func(ctx context.Context) (Completion, error) {
		out, err := p.client.Converse(ctx, input)
		if err != nil {
			return Completion{}, err
		}
		msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
		if !ok {
			return Completion{}, ErrNoCompletion
		}
		var text strings.Builder
		for _, block := range msg.Value.Content {
			if t, ok := block.(*types.ContentBlockMemberText); ok {
				text.WriteString(t.Value)
			}
		}
		return completionFrom(text.String())
	})
}
