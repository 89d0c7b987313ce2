package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/mira/internal/backoff"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderBedrock   = "bedrock"
)

// ErrMissingCredential is returned by New when the provider has no API key.
var ErrMissingCredential = errors.New("llm: missing oracle credential")

// Config selects and configures the oracle backend.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// Region, AccessKeyID, SecretAccessKey and SessionToken apply to Bedrock.
	// Without static keys the default AWS credential chain is used.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// MaxTokens is the default reply cap for requests that set none.
	MaxTokens int
	// MaxRetries is the number of attempts for retryable failures. Default: 3
	MaxRetries int
	// RetryPolicy overrides backoff.DefaultPolicy.
	RetryPolicy *backoff.BackoffPolicy

	HTTPClient *http.Client
}

// DefaultModel returns the model used when Config.Model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderBedrock:
		return "anthropic.claude-3-5-sonnet-20240620-v1:0"
	default:
		return ""
	}
}

// New builds the gateway for cfg.Provider. It fails fast when the provider
// is unknown or its credential is missing.
func New(ctx context.Context, cfg Config) (Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(provider)
	}
	if provider != ProviderBedrock && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w for provider %q", ErrMissingCredential, provider)
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderBedrock:
		if cfg.Region == "" {
			return nil, errors.New("llm: bedrock requires a region")
		}
		return NewBedrock(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// retrier runs a provider call with exponential backoff, retrying only
// failures whose FailoverReason is retryable.
type retrier struct {
	provider    string
	model       string
	policy      backoff.BackoffPolicy
	maxAttempts int
}

func newRetrier(provider string, cfg Config) retrier {
	policy := backoff.DefaultPolicy()
	if cfg.RetryPolicy != nil {
		policy = *cfg.RetryPolicy
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	return retrier{provider: provider, model: cfg.Model, policy: policy, maxAttempts: attempts}
}

func (r retrier) do(ctx context.Context, call func(ctx context.Context) (Completion, error)) (Completion, error) {
	result, err := backoff.RetryWithBackoff(ctx, r.policy, r.maxAttempts, func(int) (Completion, error) {
		completion, err := call(ctx)
		if err == nil {
			return completion, nil
		}
		err = WrapError(r.provider, r.model, err)
		if !IsRetryable(err) {
			return Completion{}, backoff.Permanent(err)
		}
		return Completion{}, err
	})
	if errors.Is(err, backoff.ErrMaxAttemptsExhausted) && result.LastError != nil {
		return Completion{}, result.LastError
	}
	if err != nil {
		return Completion{}, err
	}
	return result.Value, nil
}

func maxTokens(req Request, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if fallback > 0 {
		return fallback
	}
	return 1024
}

func defaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}
