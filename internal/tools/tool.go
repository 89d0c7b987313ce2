// Package tools defines the closed set of capabilities the assistant can
// invoke and the registry that holds them.
//
// A Tool is described by a static Descriptor: a unique name, human-facing
// text used verbatim in oracle prompts, and an explicit parameter schema.
// Registration happens once at startup; after Seal the registry is
// read-only and safe for concurrent use.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tool is a named capability.
type Tool interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// Normalizer is implemented by tools that rewrite loosely phrased arguments
// into canonical values before validation. Values it cannot resolve are
// returned unchanged so validation can flag them.
type Normalizer interface {
	Normalize(ctx context.Context, args map[string]string) map[string]string
}

// Descriptor is the static description of a tool.
type Descriptor struct {
	// Name is the unique machine key, e.g. "web_search".
	Name string `json:"name"`
	// DisplayName is the human-facing label, e.g. "Search the web".
	DisplayName string `json:"display_name"`
	// Description is used verbatim inside oracle prompts.
	Description string `json:"description"`
	// UsageExample is a one line invocation in the classifier grammar.
	UsageExample string      `json:"usage_example"`
	Params       []ParamSpec `json:"params,omitempty"`
}

// Required returns the names of the required parameters in declaration order.
func (d Descriptor) Required() []string {
	var names []string
	for _, p := range d.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// ParamSpec declares one argument.
type ParamSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	// Pattern is an optional regular expression the whole value must match.
	Pattern string `json:"pattern,omitempty"`
}

// Invocation carries one tool call.
type Invocation struct {
	UserID string
	// Query is the user's original request text.
	Query string
	Args  map[string]string
}

// Arg returns the trimmed value of the named argument.
func (inv Invocation) Arg(name string) string {
	return strings.TrimSpace(inv.Args[name])
}

// Result is what a tool returns. Plain tools set Value (a string or a
// slice); structured tools fill the remaining fields.
type Result struct {
	Value any `json:"value,omitempty"`

	// SatisfiesQuery, when set, is the tool's own verdict on adequacy.
	SatisfiesQuery *bool    `json:"satisfies_query,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Information    string   `json:"information,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	VisitedURLs    []string `json:"visited_urls,omitempty"`
}

// Bool returns a pointer to b for Result.SatisfiesQuery.
func Bool(b bool) *bool { return &b }

// Text renders the result as plain text for the summarization prompt.
func (r Result) Text() string {
	var parts []string
	switch v := r.Value.(type) {
	case nil:
	case string:
		parts = append(parts, v)
	case []string:
		parts = append(parts, strings.Join(v, "\n"))
	case fmt.Stringer:
		parts = append(parts, v.String())
	default:
		if b, err := json.MarshalIndent(v, "", "  "); err == nil {
			parts = append(parts, string(b))
		} else {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	if r.Summary != "" {
		parts = append(parts, "summary: "+r.Summary)
	}
	if r.Information != "" {
		parts = append(parts, "information: "+r.Information)
	}
	if len(r.Sources) > 0 {
		parts = append(parts, "sources: "+strings.Join(r.Sources, ", "))
	}
	return strings.Join(parts, "\n")
}

// Validation reports argument problems found by Registry.Validate.
type Validation struct {
	Missing []string
	Invalid []string
}

// OK reports whether the arguments are complete and valid.
func (v Validation) OK() bool {
	return len(v.Missing) == 0 && len(v.Invalid) == 0
}

// sortDescriptors orders descriptors by name.
func sortDescriptors(d []Descriptor) {
	sort.Slice(d, func(i, j int) bool { return d[i].Name < d[j].Name })
}
