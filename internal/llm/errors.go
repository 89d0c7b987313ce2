package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/smithy-go"
	openai "github.com/sashabaranov/go-openai"
)

// FailoverReason categorizes why a provider request failed so retry logic
// can tell transient failures from permanent ones.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable returns true if retrying may succeed.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure from an oracle backend.
type ProviderError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// WrapError classifies err from provider into a *ProviderError. SDK error
// types are inspected first, then the message text. ErrNoCompletion and
// context errors pass through unchanged.
func WrapError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoCompletion) || errors.Is(err, context.Canceled) {
		return err
	}
	var existing *ProviderError
	if errors.As(err, &existing) {
		return err
	}

	pe := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    err,
		Message:  err.Error(),
		Reason:   ClassifyError(err),
	}

	var oaiErr *openai.APIError
	var oaiReqErr *openai.RequestError
	var antErr *anthropic.Error
	var awsErr smithy.APIError
	switch {
	case errors.As(err, &oaiErr):
		pe.Status = oaiErr.HTTPStatusCode
		pe.Message = oaiErr.Message
		if code, ok := oaiErr.Code.(string); ok {
			pe.Code = code
		}
	case errors.As(err, &oaiReqErr):
		pe.Status = oaiReqErr.HTTPStatusCode
	case errors.As(err, &antErr):
		pe.Status = antErr.StatusCode
	case errors.As(err, &awsErr):
		pe.Code = awsErr.ErrorCode()
		pe.Message = awsErr.ErrorMessage()
	}

	if pe.Status != 0 {
		if reason := classifyStatusCode(pe.Status); reason != FailoverUnknown {
			pe.Reason = reason
		}
	}
	if pe.Code != "" {
		if reason := classifyErrorCode(pe.Code); reason != FailoverUnknown {
			pe.Reason = reason
		}
	}
	return pe
}

// ClassifyError inspects an error message and returns a FailoverReason.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailoverTimeout
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "timeout", "deadline exceeded", "etimedout"):
		return FailoverTimeout
	case containsAny(errStr, "rate limit", "rate_limit", "too many requests", "429", "throttl", "resource_exhausted"):
		return FailoverRateLimit
	case containsAny(errStr, "unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"):
		return FailoverAuth
	case containsAny(errStr, "billing", "payment", "quota", "insufficient", "402"):
		return FailoverBilling
	case containsAny(errStr, "content_filter", "content policy", "safety", "blocked"):
		return FailoverContentFilter
	case containsAny(errStr, "model not found", "model_not_found", "does not exist"):
		return FailoverModelUnavailable
	case containsAny(errStr, "internal server", "server error", "overloaded", "unavailable", "500", "502", "503", "504"):
		return FailoverServerError
	}
	return FailoverUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelUnavailable
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "throttlingexception":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key", "accessdeniedexception", "unrecognizedclientexception":
		return FailoverAuth
	case "billing_error", "insufficient_quota":
		return FailoverBilling
	case "model_not_found", "resourcenotfoundexception":
		return FailoverModelUnavailable
	case "content_policy_violation", "content_filter":
		return FailoverContentFilter
	case "server_error", "internal_error", "internalserverexception", "serviceunavailableexception", "modelnotreadyexception":
		return FailoverServerError
	case "modeltimeoutexception":
		return FailoverTimeout
	case "invalid_request_error", "validationexception":
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNoCompletion) || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
