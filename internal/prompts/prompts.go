// Package prompts renders the instructions sent to the language model.
//
// Every function is pure: it takes typed arguments and returns the text of
// one prompt. Templates are embedded and parsed once at init.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// AssistantName is the name the assistant introduces itself with.
const AssistantName = "Mira"

// DefaultTraits are the personality traits used in chat and summaries.
var DefaultTraits = []string{"friendly", "helpful", "concise", "witty"}

var templates = template.Must(
	template.New("prompts").Funcs(funcMap()).ParseFS(templateFS, "templates/*.tmpl"),
)

func funcMap() template.FuncMap {
	return template.FuncMap{
		"join":  strings.Join,
		"lower": strings.ToLower,
		"inc":   func(i int) int { return i + 1 },
		"default": func(fallback, value string) string {
			if strings.TrimSpace(value) == "" {
				return fallback
			}
			return value
		},
	}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Param describes one tool parameter for the oracle.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Tool describes one registered tool for the oracle.
type Tool struct {
	Name         string
	DisplayName  string
	Description  string
	UsageExample string
	Params       []Param
}

// Pending describes the action in progress, if any.
type Pending struct {
	Tool        string
	DisplayName string
	Args        map[string]string
	Missing     []string
}

// ClassifierArgs are the inputs of the classifier prompt.
type ClassifierArgs struct {
	Tools   []Tool
	Pending *Pending
	Now     time.Time
}

// Classifier renders the system prompt that asks the oracle to classify the
// latest user message in the CHAT / TOOL / REFINE / CANCEL grammar.
func Classifier(args ClassifierArgs) (string, error) {
	return render("classifier", struct {
		ClassifierArgs
		AssistantName string
		Now           string
	}{args, AssistantName, formatNow(args.Now)})
}

// ChatArgs are the inputs of the chat primer.
type ChatArgs struct {
	ToolNames []string
	Traits    []string
	Now       time.Time
}

// ChatPrimer renders the system prompt for plain conversation.
func ChatPrimer(args ChatArgs) (string, error) {
	if len(args.Traits) == 0 {
		args.Traits = DefaultTraits
	}
	return render("chat", struct {
		ChatArgs
		AssistantName string
		Now           string
	}{args, AssistantName, formatNow(args.Now)})
}

// RefineArgs are the inputs of the refinement prompts.
type RefineArgs struct {
	Query       string
	Tool        string
	DisplayName string
	Missing     []string
	Invalid     []string
	Args        map[string]string
}

// Refinement renders the system instruction stored with the action while
// it waits for the user to supply parameters.
func Refinement(args RefineArgs) (string, error) {
	return render("refine", args)
}

// RefinementQuestion renders the user-facing question naming the missing
// and invalid parameters.
func RefinementQuestion(args RefineArgs) (string, error) {
	all := make([]string, 0, len(args.Missing)+len(args.Invalid))
	all = append(all, args.Missing...)
	for _, name := range args.Invalid {
		if !contains(all, name) {
			all = append(all, name)
		}
	}
	args.Missing = all
	return render("refine_question", args)
}

// Attempt is one tried tool for the next-step prompt.
type Attempt struct {
	Tool    string
	Args    map[string]string
	Summary string
}

// NextStepArgs are the inputs of the retry prompt.
type NextStepArgs struct {
	Query    string
	Tools    []Tool
	Attempts []Attempt
}

// NextStep renders the prompt that asks the oracle which tool to try after
// the previous attempts failed to satisfy the query.
func NextStep(args NextStepArgs) (string, error) {
	type attempt struct {
		Tool    string
		Args    string
		Summary string
	}
	attempts := make([]attempt, 0, len(args.Attempts))
	for _, a := range args.Attempts {
		attempts = append(attempts, attempt{Tool: a.Tool, Args: FormatArgs(a.Args), Summary: a.Summary})
	}
	return render("next_step", struct {
		Query    string
		Tools    []Tool
		Attempts []attempt
	}{args.Query, args.Tools, attempts})
}

// SummaryArgs are the inputs of the tool result summarization prompt.
type SummaryArgs struct {
	Query       string
	DisplayName string
	Data        string
	Traits      []string
}

// Summary renders the prompt that turns raw tool output into a chat reply.
// The oracle must answer with {"summary": string, "sources": [string]}.
func Summary(args SummaryArgs) (string, error) {
	if len(args.Traits) == 0 {
		args.Traits = DefaultTraits
	}
	return render("summary", args)
}

// Adequacy renders the yes/no question asking whether summary answers query.
func Adequacy(query, summary string) (string, error) {
	return render("adequacy", struct{ Query, Summary string }{query, summary})
}

// DateConversion renders the prompt that converts a natural language date
// into "YYYY-MM-DD HH:MM" relative to now.
func DateConversion(text string, now time.Time) (string, error) {
	return render("date", struct {
		Text, Today, Weekday string
		Year                 int
	}{text, now.Format("2006-01-02"), now.Weekday().String(), now.Year()})
}

// PageChunkArgs are the inputs of the per-chunk page summary.
type PageChunkArgs struct {
	Query string
	URL   string
	Text  string
	Index int
	Total int
}

// PageChunk renders the prompt summarizing one chunk of a web page.
func PageChunk(args PageChunkArgs) (string, error) {
	return render("page_chunk", args)
}

// PageReduce renders the prompt combining chunk summaries into one.
func PageReduce(query, url string, summaries []string) (string, error) {
	return render("page_reduce", struct {
		Query, URL string
		Summaries  []string
	}{query, url, summaries})
}

// FormatArgs renders args as "k=v, k=v" in key order.
func FormatArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+args[k])
	}
	return strings.Join(parts, ", ")
}

func formatNow(now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	return now.Format("Monday, 2006-01-02 15:04 MST")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
