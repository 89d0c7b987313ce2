package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Backend names accepted in configuration.
const (
	BackendBing    = "bing"
	BackendBrave   = "brave"
	BackendSearXNG = "searxng"
)

// SearchResult is one hit returned by a backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Backend queries a search engine.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// NewBackend builds the named backend. endpoint overrides the default API
// address and is required for SearXNG.
func NewBackend(name, apiKey, endpoint string, client *http.Client) (Backend, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch strings.ToLower(name) {
	case BackendBing:
		if apiKey == "" {
			return nil, fmt.Errorf("websearch: bing requires an api key")
		}
		if endpoint == "" {
			endpoint = "https://api.bing.microsoft.com/v7.0/search"
		}
		return &bing{apiKey: apiKey, endpoint: endpoint, client: client}, nil
	case BackendBrave:
		if apiKey == "" {
			return nil, fmt.Errorf("websearch: brave requires an api key")
		}
		if endpoint == "" {
			endpoint = "https://api.search.brave.com/res/v1/web/search"
		}
		return &brave{apiKey: apiKey, endpoint: endpoint, client: client}, nil
	case BackendSearXNG:
		if endpoint == "" {
			return nil, fmt.Errorf("websearch: searxng requires an endpoint")
		}
		return &searxng{endpoint: endpoint, client: client}, nil
	default:
		return nil, fmt.Errorf("websearch: unknown backend %q", name)
	}
}

type bing struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func (b *bing) Name() string { return BackendBing }

func (b *bing) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	params.Set("responseFilter", "Webpages")

	var resp struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	headers := map[string]string{"Ocp-Apim-Subscription-Key": b.apiKey}
	if err := getJSON(ctx, b.client, b.endpoint, params, headers, &resp); err != nil {
		return nil, fmt.Errorf("bing: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.WebPages.Value))
	for _, r := range resp.WebPages.Value {
		results = append(results, SearchResult{Title: r.Name, URL: r.URL, Snippet: r.Snippet})
	}
	return results, nil
}

type brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func (b *brave) Name() string { return BackendBrave }

func (b *brave) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": b.apiKey}
	if err := getJSON(ctx, b.client, b.endpoint, params, headers, &resp); err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}

type searxng struct {
	endpoint string
	client   *http.Client
}

func (s *searxng) Name() string { return BackendSearXNG }

func (s *searxng) Search(ctx context.Context, query string, _ int) ([]SearchResult, error) {
	searchURL, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("searxng: invalid endpoint: %w", err)
	}
	if searchURL.Path == "" || searchURL.Path == "/" {
		searchURL.Path = "/search"
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("pageno", "1")
	params.Set("categories", "general")

	var resp struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := getJSON(ctx, s.client, searchURL.String(), params, nil, &resp); err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, params url.Values, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
