// Package summarize implements the summarize_page tool: fetch a web page,
// keep its headings and paragraphs, and summarize them with the oracle.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/prompts"
	"github.com/haasonsaas/mira/internal/tools"
)

// DefaultChunkSize is the number of runes summarized per oracle call.
const DefaultChunkSize = 15000

// ErrNoContent is returned when a page has no extractable text.
var ErrNoContent = errors.New("summarize: page has no readable content")

// Config controls the page summarizer.
type Config struct {
	ChunkSize    int
	MaxBodyBytes int64
	Timeout      time.Duration
}

// Summarizer fetches and summarizes pages. It is also used by web search
// to judge candidate results.
type Summarizer struct {
	oracle    llm.Gateway
	fetcher   *Fetcher
	chunkSize int
}

// New creates a Summarizer. A nil fetcher gets the default SSRF-guarded one.
func New(oracle llm.Gateway, cfg Config, fetcher *Fetcher) *Summarizer {
	if fetcher == nil {
		fetcher = NewFetcher(cfg.Timeout, WithMaxBodyBytes(cfg.MaxBodyBytes))
	}
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Summarizer{oracle: oracle, fetcher: fetcher, chunkSize: size}
}

// SummarizePage fetches url and returns a summary focused on query. Each
// chunk is summarized independently; several chunk summaries are combined
// with one more call.
func (s *Summarizer) SummarizePage(ctx context.Context, url, query string) (string, error) {
	body, contentType, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	text := ExtractText(body, contentType)
	chunks := Chunk(text, s.chunkSize)
	if len(chunks) == 0 {
		return "", ErrNoContent
	}

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		prompt, err := prompts.PageChunk(prompts.PageChunkArgs{
			Query: query,
			URL:   url,
			Text:  chunk,
			Index: i + 1,
			Total: len(chunks),
		})
		if err != nil {
			return "", err
		}
		summary, err := s.complete(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("summarize: chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, summary)
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	prompt, err := prompts.PageReduce(query, url, summaries)
	if err != nil {
		return "", err
	}
	summary, err := s.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: combine: %w", err)
	}
	return summary, nil
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	completion, err := s.oracle.Complete(ctx, llm.Request{
		Messages:    []llm.Message{llm.User(prompt)},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion.Content), nil
}

// Tool is the summarize_page tool.
type Tool struct {
	summarizer *Summarizer
}

// NewTool wraps a Summarizer as a tool.
func NewTool(s *Summarizer) *Tool {
	return &Tool{summarizer: s}
}

// Descriptor implements tools.Tool.
func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:         "summarize_page",
		DisplayName:  "Summarize a web page",
		Description:  "Reads a web page and summarizes its content. Use it when the user shares a link or asks what a page says.",
		UsageExample: "TOOL:summarize_page|url=https://example.com/article",
		Params: []tools.ParamSpec{
			{Name: "url", Description: "the http or https address of the page", Required: true, Pattern: `https?://\S+`},
		},
	}
}

// Invoke implements tools.Tool.
func (t *Tool) Invoke(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	url := inv.Arg("url")
	summary, err := t.summarizer.SummarizePage(ctx, url, inv.Query)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.Result{Summary: summary, Sources: []string{url}}, nil
}
