// Package websearch implements the web_search tool. It queries a search
// backend, then reads the top results in rank order until one of them
// answers the user's question.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/mira/internal/tools"
)

// PageSummarizer summarizes one page with a focus on query.
type PageSummarizer interface {
	SummarizePage(ctx context.Context, url, query string) (string, error)
}

// Judge decides whether summary answers query.
type Judge interface {
	Satisfies(ctx context.Context, query, summary string) (bool, error)
}

// Config controls the tool.
type Config struct {
	// MaxResults is the number of ranked results considered. Default: 3
	MaxResults int
	// CacheTTL is how long backend results are reused. Default: 5m; negative disables.
	CacheTTL time.Duration
}

// Tool is the web_search tool.
type Tool struct {
	backend Backend
	pages   PageSummarizer
	judge   Judge
	cache   *resultCache
	max     int
	logger  *slog.Logger
}

// New creates the tool.
func New(backend Backend, pages PageSummarizer, judge Judge, cfg Config, logger *slog.Logger) *Tool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{
		backend: backend,
		pages:   pages,
		judge:   judge,
		cache:   newResultCache(cfg.CacheTTL),
		max:     cfg.MaxResults,
		logger:  logger,
	}
}

// Descriptor implements tools.Tool.
func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:         "web_search",
		DisplayName:  "Search the web",
		Description:  "Searches the internet and reads the best matching pages. Use it for news, facts, prices, weather and anything that needs up to date information.",
		UsageExample: "TOOL:web_search|query=weather in Lisbon tomorrow",
		Params: []tools.ParamSpec{
			{Name: "query", Description: "what to search for", Required: true},
		},
	}
}

// Invoke implements tools.Tool.
//
// Each candidate page is summarized and judged in rank order; the first
// adequate one wins. Every attempted page lands in VisitedURLs, including
// pages that failed to load.
func (t *Tool) Invoke(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	query := inv.Arg("query")
	question := inv.Query
	if question == "" {
		question = query
	}

	results, err := t.search(ctx, query)
	if err != nil {
		return tools.Result{}, err
	}
	if len(results) == 0 {
		return tools.Result{
			SatisfiesQuery: tools.Bool(false),
			Information:    fmt.Sprintf("No results found for %q.", query),
		}, nil
	}

	var visited []string
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return tools.Result{}, err
		}
		visited = append(visited, r.URL)

		summary, err := t.pages.SummarizePage(ctx, r.URL, question)
		if err != nil {
			t.logger.DebugContext(ctx, "search result could not be summarized", "url", r.URL, "error", err)
			continue
		}
		ok, err := t.judge.Satisfies(ctx, question, summary)
		if err != nil {
			t.logger.DebugContext(ctx, "search result could not be judged", "url", r.URL, "error", err)
			continue
		}
		if ok {
			return tools.Result{
				Summary:        summary,
				Sources:        []string{r.URL},
				SatisfiesQuery: tools.Bool(true),
				VisitedURLs:    visited,
			}, nil
		}
	}

	return tools.Result{
		SatisfiesQuery: tools.Bool(false),
		Information:    snippets(results),
		Sources:        visited,
		VisitedURLs:    visited,
	}, nil
}

func (t *Tool) search(ctx context.Context, query string) ([]SearchResult, error) {
	key := t.backend.Name() + ":" + strings.ToLower(strings.TrimSpace(query))
	if cached, ok := t.cache.get(key); ok {
		return cached, nil
	}
	results, err := t.backend.Search(ctx, query, t.max)
	if err != nil {
		return nil, err
	}
	if len(results) > t.max {
		results = results[:t.max]
	}
	t.cache.put(key, results)
	return results, nil
}

func snippets(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s (%s): %s", r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
