package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Intent
	}{
		{"chat", "CHAT", Intent{Kind: IntentChat}},
		{"chat lower with period", "chat.", Intent{Kind: IntentChat}},
		{"cancel", "Cancel", Intent{Kind: IntentCancel}},
		{
			"tool with args",
			"TOOL:create_reminder|text=buy milk&date=tomorrow&time=3pm",
			Intent{Kind: IntentTool, Tool: "create_reminder", Args: map[string]string{"text": "buy milk", "date": "tomorrow", "time": "3pm"}},
		},
		{"tool without args", "TOOL:calendar_events", Intent{Kind: IntentTool, Tool: "calendar_events", Args: map[string]string{}}},
		{
			"escaped values",
			"tool:evaluate_expression|expression=1 %26 2 %3D%3D 3",
			Intent{Kind: IntentTool, Tool: "evaluate_expression", Args: map[string]string{"expression": "1 & 2 == 3"}},
		},
		{
			"fenced with label",
			"```\nRun tool: TOOL:web_search|query=weather in Paris\n```",
			Intent{Kind: IntentTool, Tool: "web_search", Args: map[string]string{"query": "weather in Paris"}},
		},
		{
			"quoted action label",
			`"Action: TOOL:Web_Search|query=go"`,
			Intent{Kind: IntentTool, Tool: "web_search", Args: map[string]string{"query": "go"}},
		},
		{
			"only first line counts",
			"TOOL:web_search|query=a\nTOOL:calendar_events",
			Intent{Kind: IntentTool, Tool: "web_search", Args: map[string]string{"query": "a"}},
		},
		{
			"refine with question",
			"REFINE:create_reminder|date, time|When should I remind you?",
			Intent{Kind: IntentRefine, Tool: "create_reminder", Missing: []string{"date", "time"}, Question: "When should I remind you?"},
		},
		{
			"refine without question",
			"REFINE:web_search|query",
			Intent{Kind: IntentRefine, Tool: "web_search", Missing: []string{"query"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntent(tt.reply)
			if err != nil {
				t.Fatalf("ParseIntent(%q) error = %v", tt.reply, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseIntent(%q) = %+v, want %+v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestParseIntentFallsBackToChat(t *testing.T) {
	for _, reply := range []string{
		"",
		"   \n\n",
		"I think you want the weather",
		"TOOL:",
		"TOOL:web search|query=x",
		"TOOL:web_search|query",
		"TOOL:web_search|bad key=x",
		"REFINE:web_search",
		"REFINE:web_search||question",
		"CHAT: hello",
		"SEARCH:web",
	} {
		got, err := ParseIntent(reply)
		if !errors.Is(err, ErrClassificationAmbiguous) {
			t.Errorf("ParseIntent(%q) error = %v, want ErrClassificationAmbiguous", reply, err)
		}
		if got.Kind != IntentChat {
			t.Errorf("ParseIntent(%q) kind = %v, want chat", reply, got.Kind)
		}
	}
}

func TestMissingParametersError(t *testing.T) {
	err := &MissingParametersError{Tool: "create_reminder", Missing: []string{"text"}, Invalid: []string{"date"}}
	want := "tool create_reminder needs parameters: missing text; invalid date"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"héllo", 2, "h..."},
		{strings.Repeat("日", 30), 80, strings.Repeat("日", 26) + "..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
