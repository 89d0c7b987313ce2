package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubTool struct {
	desc Descriptor
}

func (s stubTool) Descriptor() Descriptor { return s.desc }

func (s stubTool) Invoke(context.Context, Invocation) (Result, error) {
	return Result{Value: "ok"}, nil
}

func reminderStub() stubTool {
	return stubTool{desc: Descriptor{
		Name:        "create_reminder",
		DisplayName: "Create a reminder",
		Params: []ParamSpec{
			{Name: "text", Required: true},
			{Name: "date", Required: true, Pattern: `\d{4}-\d{2}-\d{2}`},
			{Name: "time", Required: true, Pattern: `\d{2}:\d{2}`},
			{Name: "note"},
		},
	}}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(reminderStub()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name string
		tool Tool
		want error
	}{
		{"duplicate", reminderStub(), ErrDuplicateTool},
		{"invalid name", stubTool{desc: Descriptor{Name: "web search"}}, ErrInvalidTool},
		{"empty name", stubTool{desc: Descriptor{}}, ErrInvalidTool},
		{"bad pattern", stubTool{desc: Descriptor{Name: "x", Params: []ParamSpec{{Name: "a", Pattern: "("}}}}, ErrInvalidTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.tool); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}

	r.Seal()
	if err := r.Register(stubTool{desc: Descriptor{Name: "late"}}); !errors.Is(err, ErrRegistrySealed) {
		t.Errorf("Register() after Seal error = %v, want ErrRegistrySealed", err)
	}
	if !r.Sealed() {
		t.Error("Sealed() = false")
	}
}

func TestRegistryListResolveDescribe(t *testing.T) {
	r := NewRegistry().MustRegister(
		stubTool{desc: Descriptor{Name: "web_search"}},
		stubTool{desc: Descriptor{Name: "calendar_events"}},
		reminderStub(),
	)
	r.Seal()

	list := r.List()
	want := []string{"calendar_events", "create_reminder", "web_search"}
	if len(list) != len(want) {
		t.Fatalf("List() = %d entries", len(list))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].Name, name)
		}
	}

	if _, ok := r.Resolve("web_search"); !ok {
		t.Error("Resolve(web_search) not found")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("Resolve(missing) found")
	}
	desc, ok := r.Describe("create_reminder")
	if !ok || desc.DisplayName != "Create a reminder" {
		t.Errorf("Describe() = %+v, %v", desc, ok)
	}
	if got := desc.Required(); len(got) != 3 || got[0] != "text" {
		t.Errorf("Required() = %v", got)
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry().MustRegister(reminderStub())

	tests := []struct {
		name    string
		args    map[string]string
		missing []string
		invalid []string
	}{
		{"complete", map[string]string{"text": "milk", "date": "2024-05-07", "time": "15:00"}, nil, nil},
		{"all missing", nil, []string{"text", "date", "time"}, nil},
		{"blank counts as missing", map[string]string{"text": "  ", "date": "2024-05-07", "time": "15:00"}, []string{"text"}, nil},
		{"pattern mismatch", map[string]string{"text": "milk", "date": "tomorrow", "time": "3pm"}, nil, []string{"date", "time"}},
		{"pattern is anchored", map[string]string{"text": "milk", "date": "x2024-05-07", "time": "15:00"}, nil, []string{"date"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.Validate("create_reminder", tt.args)
			if !equal(v.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", v.Missing, tt.missing)
			}
			if !equal(v.Invalid, tt.invalid) {
				t.Errorf("Invalid = %v, want %v", v.Invalid, tt.invalid)
			}
			if v.OK() != (len(tt.missing) == 0 && len(tt.invalid) == 0) {
				t.Errorf("OK() = %v", v.OK())
			}
		})
	}
}

func TestRegistryConcurrentReads(t *testing.T) {
	r := NewRegistry().MustRegister(reminderStub())
	r.Seal()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.Resolve("create_reminder")
				_ = r.List()
				_ = r.Validate("create_reminder", map[string]string{"text": "x"})
			}
		}()
	}
	wg.Wait()
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"string value", Result{Value: "42"}, "42"},
		{"slice value", Result{Value: []string{"a", "b"}}, "a\nb"},
		{"structured", Result{Information: "snippets", Sources: []string{"https://a", "https://b"}}, "information: snippets\nsources: https://a, https://b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	inner := context.DeadlineExceeded
	err := error(&InvocationError{Tool: "web_search", Err: inner})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("InvocationError should unwrap")
	}
	var ie *InvocationError
	if !errors.As(err, &ie) || !ie.Timeout() {
		t.Error("Timeout() should be true")
	}

	auth := &AuthorizationRequiredError{Provider: "google", AuthURL: "https://accounts.example/auth"}
	if auth.Error() != "authorization required for google" {
		t.Errorf("Error() = %q", auth.Error())
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
