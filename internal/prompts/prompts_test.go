package prompts

import (
	"strings"
	"testing"
	"time"
)

var testTools = []Tool{
	{
		Name:         "web_search",
		DisplayName:  "Search the web",
		Description:  "Searches the internet for up to date information.",
		UsageExample: "TOOL:web_search|query=weather in Lisbon",
		Params:       []Param{{Name: "query", Description: "what to search for", Required: true}},
	},
	{
		Name:         "calendar_events",
		DisplayName:  "Check your calendar",
		Description:  "Lists upcoming calendar events.",
		UsageExample: "TOOL:calendar_events",
	},
}

func TestClassifierListsToolsAndPending(t *testing.T) {
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	out, err := Classifier(ClassifierArgs{
		Tools: testTools,
		Pending: &Pending{
			Tool:        "web_search",
			DisplayName: "Search the web",
			Args:        map[string]string{"lang": "en"},
			Missing:     []string{"query"},
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("Classifier() error = %v", err)
	}
	for _, want := range []string{
		"name: web_search",
		"query (required): what to search for",
		"usage: TOOL:calendar_events",
		"TOOL:create_reminder|text=buy milk&date=tomorrow&time=3pm",
		"A task is in progress: Search the web (web_search)",
		"- lang=en",
		"Still missing: query",
		"Monday, 2024-05-06 10:00 UTC",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("classifier prompt missing %q\n%s", want, out)
		}
	}
}

func TestClassifierWithoutPending(t *testing.T) {
	out, err := Classifier(ClassifierArgs{Tools: testTools})
	if err != nil {
		t.Fatalf("Classifier() error = %v", err)
	}
	if strings.Contains(out, "A task is in progress") {
		t.Errorf("unexpected pending section:\n%s", out)
	}
}

func TestChatPrimer(t *testing.T) {
	out, err := ChatPrimer(ChatArgs{ToolNames: []string{"Search the web", "Check your calendar"}})
	if err != nil {
		t.Fatalf("ChatPrimer() error = %v", err)
	}
	for _, want := range []string{
		"your name is Mira",
		"Search the web, Check your calendar",
		`Never respond with "As an AI language model"`,
		"friendly, helpful",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("chat primer missing %q\n%s", want, out)
		}
	}
}

func TestRefinementQuestion(t *testing.T) {
	tests := []struct {
		name    string
		args    RefineArgs
		want    string
		notWant string
	}{
		{
			name: "missing only",
			args: RefineArgs{DisplayName: "Create a reminder", Missing: []string{"date", "time"}},
			want: "I need the following information to create a reminder: date, time.",
		},
		{
			name: "invalid flagged",
			args: RefineArgs{DisplayName: "Create a reminder", Missing: []string{"text"}, Invalid: []string{"date"}},
			want: "I couldn't understand the value for date",
		},
		{
			name:    "invalid not repeated",
			args:    RefineArgs{DisplayName: "Create a reminder", Missing: []string{"date"}, Invalid: []string{"date"}},
			want:    "create a reminder: date.",
			notWant: "date, date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RefinementQuestion(tt.args)
			if err != nil {
				t.Fatalf("RefinementQuestion() error = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("got %q, want it to contain %q", out, tt.want)
			}
			if tt.notWant != "" && strings.Contains(out, tt.notWant) {
				t.Errorf("got %q, should not contain %q", out, tt.notWant)
			}
		})
	}
}

func TestRefinementNamesParams(t *testing.T) {
	out, err := Refinement(RefineArgs{
		Query:       "remind me",
		Tool:        "create_reminder",
		DisplayName: "Create a reminder",
		Missing:     []string{"text"},
		Invalid:     []string{"date"},
		Args:        map[string]string{"time": "15:00"},
	})
	if err != nil {
		t.Fatalf("Refinement() error = %v", err)
	}
	for _, want := range []string{"Missing: text", "Invalid and must be clarified: date", "- time=15:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("refinement prompt missing %q\n%s", want, out)
		}
	}
}

func TestNextStepCarriesAttempts(t *testing.T) {
	out, err := NextStep(NextStepArgs{
		Query: "latest news",
		Tools: testTools,
		Attempts: []Attempt{
			{Tool: "web_search", Args: map[string]string{"query": "news", "a": "b"}, Summary: ""},
		},
	})
	if err != nil {
		t.Fatalf("NextStep() error = %v", err)
	}
	for _, want := range []string{"1. tool: web_search", "arguments: a=b, query=news", "(nothing useful)", "Do not repeat a tool"} {
		if !strings.Contains(out, want) {
			t.Errorf("next step prompt missing %q\n%s", want, out)
		}
	}
}

func TestSummaryRules(t *testing.T) {
	out, err := Summary(SummaryArgs{Query: "q", DisplayName: "Search the web", Data: "raw data"})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	for _, want := range []string{"Never mention JSON", "first person", "ground truth", `{"summary":`, "raw data"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary prompt missing %q", want)
		}
	}
}

func TestAdequacyAndDate(t *testing.T) {
	out, err := Adequacy("what time is it", "It is noon.")
	if err != nil || !strings.Contains(out, "YES or NO") {
		t.Errorf("Adequacy() = %q, %v", out, err)
	}

	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	out, err = DateConversion("next friday", now)
	if err != nil {
		t.Fatalf("DateConversion() error = %v", err)
	}
	for _, want := range []string{"Today is 2024-05-06 (Monday)", "Text: next friday", "INVALID"} {
		if !strings.Contains(out, want) {
			t.Errorf("date prompt missing %q", want)
		}
	}
}

func TestPagePrompts(t *testing.T) {
	out, err := PageChunk(PageChunkArgs{URL: "https://example.com", Text: "body", Index: 2, Total: 3, Query: "q"})
	if err != nil || !strings.Contains(out, "part 2 of 3") {
		t.Errorf("PageChunk() = %q, %v", out, err)
	}
	out, err = PageReduce("q", "https://example.com", []string{"one", "two"})
	if err != nil || !strings.Contains(out, "Part 2:\ntwo") {
		t.Errorf("PageReduce() = %q, %v", out, err)
	}
}
