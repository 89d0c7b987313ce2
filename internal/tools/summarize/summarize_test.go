package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/haasonsaas/mira/internal/llm/llmtest"
	"github.com/haasonsaas/mira/internal/tools"
)

const samplePage = `<!doctype html>
<html><head><title>Ignored title</title><style>p { color: red }</style></head>
<body>
<nav><a href="/">Home</a></nav>
<h1>Lisbon weather</h1>
<div><p>Sunny with   a high of <b>24°C</b>.</p></div>
<script>var p = "<p>not text</p>";</script>
<h5>Too small</h5>
<h4>Outlook</h4>
<p>Rain on Friday.</p>
<ul><li>list items are skipped</li></ul>
</body></html>`

func TestExtractText(t *testing.T) {
	got := ExtractText([]byte(samplePage), "text/html; charset=utf-8")
	want := "Lisbon weather\nSunny with a high of 24°C .\nOutlook\nRain on Friday."
	if got != want {
		t.Errorf("ExtractText() = %q, want %q", got, want)
	}

	if got := ExtractText([]byte("  plain body \n"), "text/plain"); got != "plain body" {
		t.Errorf("plain text = %q", got)
	}
}

func TestChunkRespectsRunes(t *testing.T) {
	text := strings.Repeat("é", 10) + strings.Repeat("a", 5)
	chunks := Chunk(text, 4)
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 4", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %q is not valid UTF-8", c)
		}
		if n := utf8.RuneCountInString(c); n > 4 {
			t.Errorf("chunk has %d runes", n)
		}
		total += utf8.RuneCountInString(c)
	}
	if total != 15 {
		t.Errorf("total runes = %d, want 15", total)
	}
	if Chunk("", 4) != nil {
		t.Error("empty text should give no chunks")
	}
}

func newPageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSummarizePageSingleChunk(t *testing.T) {
	srv := newPageServer(t, samplePage)
	oracle := llmtest.New("It is sunny in Lisbon, rain on Friday.")
	s := New(oracle, Config{}, NewFetcher(0, AllowPrivateAddresses()))

	summary, err := s.SummarizePage(context.Background(), srv.URL, "weather in lisbon")
	if err != nil {
		t.Fatalf("SummarizePage() error = %v", err)
	}
	if summary != "It is sunny in Lisbon, rain on Friday." {
		t.Errorf("summary = %q", summary)
	}
	if oracle.Calls() != 1 {
		t.Errorf("oracle calls = %d, want 1", oracle.Calls())
	}
	if !strings.Contains(oracle.LastPrompt(), "Rain on Friday.") {
		t.Errorf("prompt missing page text: %s", oracle.LastPrompt())
	}
}

func TestSummarizePageMultipleChunks(t *testing.T) {
	paragraphs := strings.Repeat("<p>"+strings.Repeat("word ", 20)+"</p>", 5)
	srv := newPageServer(t, "<html><body>"+paragraphs+"</body></html>")
	oracle := llmtest.New()
	oracle.Default = "partial"
	s := New(oracle, Config{ChunkSize: 200}, NewFetcher(0, AllowPrivateAddresses()))

	if _, err := s.SummarizePage(context.Background(), srv.URL, ""); err != nil {
		t.Fatalf("SummarizePage() error = %v", err)
	}
	text := ExtractText([]byte("<html><body>"+paragraphs+"</body></html>"), "text/html")
	chunks := len(Chunk(text, 200))
	if chunks < 2 {
		t.Fatalf("expected several chunks, got %d", chunks)
	}
	if oracle.Calls() != chunks+1 {
		t.Errorf("oracle calls = %d, want %d", oracle.Calls(), chunks+1)
	}
	if !strings.Contains(oracle.LastPrompt(), "Combine them into one concise summary") {
		t.Errorf("last prompt should combine summaries: %s", oracle.LastPrompt())
	}
}

func TestSummarizePageEmpty(t *testing.T) {
	srv := newPageServer(t, "<html><body><div>no paragraphs</div></body></html>")
	s := New(llmtest.New(), Config{}, NewFetcher(0, AllowPrivateAddresses()))
	if _, err := s.SummarizePage(context.Background(), srv.URL, ""); !errors.Is(err, ErrNoContent) {
		t.Errorf("error = %v, want ErrNoContent", err)
	}
}

func TestFetcherBlocksPrivateTargets(t *testing.T) {
	srv := newPageServer(t, samplePage)
	f := NewFetcher(0)

	tests := []struct {
		name    string
		url     string
		blocked bool
	}{
		{"loopback server", srv.URL, true},
		{"localhost name", "http://localhost:8080/", true},
		{"private ip", "http://10.0.0.1/", true},
		{"link-local metadata", "http://169.254.169.254/latest", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"bad scheme", "file:///etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.Fetch(context.Background(), tt.url)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.blocked && !errors.Is(err, ErrBlockedAddress) {
				t.Errorf("error = %v, want ErrBlockedAddress", err)
			}
		})
	}
}

func TestToolInvoke(t *testing.T) {
	srv := newPageServer(t, samplePage)
	tool := NewTool(New(llmtest.New("Sunny."), Config{}, NewFetcher(0, AllowPrivateAddresses())))

	if tool.Descriptor().Name != "summarize_page" {
		t.Errorf("name = %s", tool.Descriptor().Name)
	}
	result, err := tool.Invoke(context.Background(), tools.Invocation{
		Query: "what does this say",
		Args:  map[string]string{"url": srv.URL},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.Summary != "Sunny." || len(result.Sources) != 1 || result.Sources[0] != srv.URL {
		t.Errorf("result = %+v", result)
	}
}
