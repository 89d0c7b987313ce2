package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/mira/internal/tools"
)

type fakeBackend struct {
	results []SearchResult
	err     error
	calls   int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Search(context.Context, string, int) ([]SearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakePages struct {
	summaries map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakePages) SummarizePage(_ context.Context, url, _ string) (string, error) {
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return "", err
	}
	return f.summaries[url], nil
}

type fakeJudge struct {
	good map[string]bool
}

func (f fakeJudge) Satisfies(_ context.Context, _, summary string) (bool, error) {
	return f.good[summary], nil
}

func threeResults() []SearchResult {
	return []SearchResult{
		{Title: "One", URL: "https://one.example", Snippet: "first"},
		{Title: "Two", URL: "https://two.example", Snippet: "second"},
		{Title: "Three", URL: "https://three.example", Snippet: "third"},
	}
}

func TestInvokeStopsAtFirstSatisfyingPage(t *testing.T) {
	backend := &fakeBackend{results: threeResults()}
	pages := &fakePages{summaries: map[string]string{
		"https://one.example":   "vague",
		"https://two.example":   "off topic",
		"https://three.example": "the answer",
	}}
	tool := New(backend, pages, fakeJudge{good: map[string]bool{"the answer": true}}, Config{}, nil)

	result, err := tool.Invoke(context.Background(), tools.Invocation{
		Query: "what is the answer?",
		Args:  map[string]string{"query": "the answer"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(result.VisitedURLs) != 3 {
		t.Errorf("VisitedURLs = %v, want 3 entries", result.VisitedURLs)
	}
	if result.Summary != "the answer" {
		t.Errorf("Summary = %q", result.Summary)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "https://three.example" {
		t.Errorf("Sources = %v", result.Sources)
	}
	if result.SatisfiesQuery == nil || !*result.SatisfiesQuery {
		t.Error("SatisfiesQuery should be true")
	}
}

func TestInvokeCountsFailedFetchesAsVisited(t *testing.T) {
	backend := &fakeBackend{results: threeResults()}
	pages := &fakePages{
		summaries: map[string]string{"https://two.example": "good"},
		errs:      map[string]error{"https://one.example": errors.New("timeout")},
	}
	tool := New(backend, pages, fakeJudge{good: map[string]bool{"good": true}}, Config{}, nil)

	result, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "q"}})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(result.VisitedURLs) != 2 || result.VisitedURLs[0] != "https://one.example" {
		t.Errorf("VisitedURLs = %v", result.VisitedURLs)
	}
	if len(pages.calls) != 2 {
		t.Errorf("pages summarized = %v, want two", pages.calls)
	}
}

func TestInvokeTotalFailure(t *testing.T) {
	backend := &fakeBackend{results: threeResults()}
	tool := New(backend, &fakePages{summaries: map[string]string{}}, fakeJudge{}, Config{}, nil)

	result, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "q"}})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.SatisfiesQuery == nil || *result.SatisfiesQuery {
		t.Error("SatisfiesQuery should be false")
	}
	if len(result.Sources) != 3 || len(result.VisitedURLs) != 3 {
		t.Errorf("Sources = %v, VisitedURLs = %v", result.Sources, result.VisitedURLs)
	}
	if result.Information == "" || result.Summary != "" {
		t.Errorf("result = %+v", result)
	}
}

func TestInvokeBackendErrorAndEmpty(t *testing.T) {
	tool := New(&fakeBackend{err: errors.New("down")}, &fakePages{}, fakeJudge{}, Config{}, nil)
	if _, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "q"}}); err == nil {
		t.Error("expected backend error")
	}

	tool = New(&fakeBackend{}, &fakePages{}, fakeJudge{}, Config{}, nil)
	result, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "q"}})
	if err != nil || result.SatisfiesQuery == nil || *result.SatisfiesQuery {
		t.Errorf("empty results = %+v, %v", result, err)
	}
}

func TestSearchIsCached(t *testing.T) {
	backend := &fakeBackend{results: threeResults()[:1]}
	pages := &fakePages{summaries: map[string]string{"https://one.example": "ok"}}
	tool := New(backend, pages, fakeJudge{good: map[string]bool{"ok": true}}, Config{CacheTTL: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		if _, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "Same Query"}}); err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls)
	}

	now := time.Now()
	tool.cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "same query"}}); err != nil {
		t.Fatal(err)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls after expiry = %d, want 2", backend.calls)
	}
}

func TestMaxResultsTruncates(t *testing.T) {
	backend := &fakeBackend{results: threeResults()}
	tool := New(backend, &fakePages{summaries: map[string]string{}}, fakeJudge{}, Config{MaxResults: 2}, nil)
	result, err := tool.Invoke(context.Background(), tools.Invocation{Args: map[string]string{"query": "q"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.VisitedURLs) != 2 {
		t.Errorf("VisitedURLs = %v, want 2", result.VisitedURLs)
	}
}

func TestBackends(t *testing.T) {
	tests := []struct {
		name       string
		backend    string
		apiKey     string
		header     string
		body       string
		path       string
		wantURL    string
		wantSnippt string
	}{
		{
			name:       "bing",
			backend:    BackendBing,
			apiKey:     "bing-key",
			header:     "Ocp-Apim-Subscription-Key",
			body:       `{"webPages":{"value":[{"name":"A","url":"https://a.example","snippet":"about a"}]}}`,
			wantURL:    "https://a.example",
			wantSnippt: "about a",
		},
		{
			name:       "brave",
			backend:    BackendBrave,
			apiKey:     "brave-key",
			header:     "X-Subscription-Token",
			body:       `{"web":{"results":[{"title":"B","url":"https://b.example","description":"about b"}]}}`,
			wantURL:    "https://b.example",
			wantSnippt: "about b",
		},
		{
			name:       "searxng",
			backend:    BackendSearXNG,
			body:       `{"results":[{"title":"C","url":"https://c.example","content":"about c"}]}`,
			path:       "/search",
			wantURL:    "https://c.example",
			wantSnippt: "about c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" && r.Header.Get(tt.header) != tt.apiKey {
					t.Errorf("%s = %q", tt.header, r.Header.Get(tt.header))
				}
				if tt.path != "" && r.URL.Path != tt.path {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.path)
				}
				if r.URL.Query().Get("q") != "golang" {
					t.Errorf("q = %q", r.URL.Query().Get("q"))
				}
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			backend, err := NewBackend(tt.backend, tt.apiKey, srv.URL, srv.Client())
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			results, err := backend.Search(context.Background(), "golang", 3)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(results) != 1 || results[0].URL != tt.wantURL || results[0].Snippet != tt.wantSnippt {
				t.Errorf("results = %+v", results)
			}
		})
	}
}

func TestBackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	backend, err := NewBackend(BackendBrave, "k", srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backend.Search(context.Background(), "q", 3); err == nil {
		t.Error("expected status error")
	}

	for _, name := range []string{BackendBing, BackendBrave} {
		if _, err := NewBackend(name, "", "", nil); err == nil {
			t.Errorf("%s without key should fail", name)
		}
	}
	if _, err := NewBackend(BackendSearXNG, "", "", nil); err == nil {
		t.Error("searxng without endpoint should fail")
	}
	if _, err := NewBackend("altavista", "k", "", nil); err == nil {
		t.Error("unknown backend should fail")
	}
}
