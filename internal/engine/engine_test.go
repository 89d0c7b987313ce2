package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
	"golang.org/x/oauth2"

	"github.com/haasonsaas/mira/internal/auth"
	"github.com/haasonsaas/mira/internal/evaluator"
	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/llm/llmtest"
	"github.com/haasonsaas/mira/internal/observability"
	"github.com/haasonsaas/mira/internal/storage"
	"github.com/haasonsaas/mira/internal/tools"
	"github.com/haasonsaas/mira/internal/tools/calendar"
	"github.com/haasonsaas/mira/internal/tools/reminders"
	"github.com/haasonsaas/mira/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started at init by the opencensus dependency of the Google API client
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const testUser = "whatsapp:15551234567"

// Wednesday, 14 October 2026.
var fixedNow = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)

type stubTool struct {
	desc   tools.Descriptor
	mu     sync.Mutex
	calls  []tools.Invocation
	invoke func(n int, inv tools.Invocation) (tools.Result, error)
}

func (s *stubTool) Descriptor() tools.Descriptor { return s.desc }

func (s *stubTool) Invoke(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, inv)
	n := len(s.calls)
	s.mu.Unlock()
	return s.invoke(n, inv)
}

func (s *stubTool) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func searchTool(invoke func(n int, inv tools.Invocation) (tools.Result, error)) *stubTool {
	return &stubTool{
		desc: tools.Descriptor{
			Name:         "web_search",
			DisplayName:  "Search the Web",
			Description:  "Searches the web.",
			UsageExample: "TOOL:web_search|query=<text>",
			Params:       []tools.ParamSpec{{Name: "query", Required: true}},
		},
		invoke: invoke,
	}
}

func satisfied(summary string) (tools.Result, error) {
	return tools.Result{Summary: summary, SatisfiesQuery: tools.Bool(true)}, nil
}

// resultEvaluator trusts the result's own verdict.
type resultEvaluator struct{}

func (resultEvaluator) Evaluate(_ context.Context, _, _ string, r tools.Result) (evaluator.Evaluation, error) {
	return evaluator.Evaluation{
		Summary:   r.Summary,
		Sources:   r.Sources,
		Satisfied: r.SatisfiesQuery != nil && *r.SatisfiesQuery,
	}, nil
}

// script routes oracle calls by prompt kind.
type script struct {
	mu              sync.Mutex
	classify        []string
	classifyDefault string
	next            []string
	chat            string
}

func (s *script) respond(req llm.Request) (llmtest.Reply, bool) {
	system := req.Messages[0].Content
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.HasPrefix(system, "You route messages"):
		return llmtest.Reply{Content: pop(&s.classify, s.classifyDefault)}, true
	case strings.Contains(system, "Choose the next step"):
		return llmtest.Reply{Content: pop(&s.next, "")}, true
	default:
		return llmtest.Reply{Content: s.chat}, true
	}
}

func pop(queue *[]string, fallback string) string {
	if len(*queue) == 0 {
		return fallback
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v
}

type fixture struct {
	engine  *Engine
	store   *storage.MemoryStore
	script  *script
	oracle  *llmtest.Fake
	metrics *observability.Metrics
}

func newFixture(t *testing.T, ts ...tools.Tool) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore(), ts...)
}

// say runs one turn and records it the way the dispatcher does.
func (f *fixture) say(t *testing.T, text string) Response {
	t.Helper()
	ctx := context.Background()
	resp, err := f.engine.HandleMessage(ctx, models.Inbound{UserID: testUser, Text: text})
	if err != nil {
		t.Fatalf("HandleMessage(%q) error = %v", text, err)
	}
	if err := f.store.Append(ctx,
		models.ChatMessage{UserID: testUser, Role: models.RoleUser, Content: text, ActionID: resp.ActionID},
		models.ChatMessage{UserID: testUser, Role: models.RoleAssistant, Content: resp.Text, ActionID: resp.ActionID},
	); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return resp
}

func (f *fixture) status(t *testing.T, id string) models.ActionStatus {
	t.Helper()
	action, err := f.store.GetAction(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAction(%s) error = %v", id, err)
	}
	return action.Status
}

func (f *fixture) pending(t *testing.T) *models.Action {
	t.Helper()
	action, err := f.store.GetPendingAction(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetPendingAction() error = %v", err)
	}
	return action
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestChatWithoutPendingAction(t *testing.T) {
	f := newFixture(t, searchTool(func(int, tools.Invocation) (tools.Result, error) { return satisfied("x") }))
	f.script.classify = []string{"CHAT"}

	resp := f.say(t, "How are you?")
	if resp.Outcome != OutcomeChat || resp.Text != "Hi! How can I help?" || resp.ActionID != "" {
		t.Errorf("resp = %+v", resp)
	}
	if f.pending(t) != nil {
		t.Error("chat must not create an action")
	}
}

func TestClassificationFallback(t *testing.T) {
	for _, reply := range []string{"", "no idea what you mean", "TOOL:launch_rocket|target=moon", "REFINE:|x"} {
		t.Run(fmt.Sprintf("%q", reply), func(t *testing.T) {
			search := searchTool(func(int, tools.Invocation) (tools.Result, error) { return satisfied("x") })
			f := newFixture(t, search)
			f.script.classify = []string{reply}

			resp := f.say(t, "launch it")
			if resp.Outcome != OutcomeChat {
				t.Errorf("Outcome = %s, want chat", resp.Outcome)
			}
			if search.Calls() != 0 {
				t.Error("no tool should run")
			}
			if got := testutil.ToFloat64(f.metrics.Classifications.WithLabelValues("ambiguous")); got != 1 {
				t.Errorf("ambiguous count = %v, want 1", got)
			}
		})
	}
}

func TestChatOracleFailure(t *testing.T) {
	f := newFixture(t)
	f.script.classify = []string{"CHAT"}
	f.script.chat = ""

	resp := f.say(t, "hello")
	if resp.Text != chatUnavailableText {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestToolCompletesAction(t *testing.T) {
	search := searchTool(func(_ int, inv tools.Invocation) (tools.Result, error) {
		return satisfied("I found that Go 1.24 is out.")
	})
	f := newFixture(t, search)
	f.script.classify = []string{"TOOL:web_search|query=latest go release"}

	resp := f.say(t, "What's the latest Go release?")
	if resp.Outcome != OutcomeCompleted || resp.Text != "I found that Go 1.24 is out." {
		t.Fatalf("resp = %+v", resp)
	}
	if got := f.status(t, resp.ActionID); got != models.ActionCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
	if search.calls[0].Args["query"] != "latest go release" || search.calls[0].UserID != testUser {
		t.Errorf("invocation = %+v", search.calls[0])
	}
	if f.pending(t) != nil {
		t.Error("no action should remain pending")
	}
}

func TestRefinementSuspendsAndResumes(t *testing.T) {
	search := searchTool(func(_ int, inv tools.Invocation) (tools.Result, error) {
		return satisfied("Here is what I found about " + inv.Args["query"] + ".")
	})
	f := newFixture(t, search)
	f.script.classify = []string{"REFINE:web_search|query|What should I search for?", "CHAT"}

	first := f.say(t, "Can you look something up?")
	if first.Outcome != OutcomeNeedsInput {
		t.Fatalf("first turn = %+v", first)
	}
	if !strings.Contains(first.Text, "I need the following information to search the web: query.") {
		t.Errorf("question = %q", first.Text)
	}
	pending := f.pending(t)
	if pending == nil || pending.ID != first.ActionID || pending.Tool != "web_search" {
		t.Fatalf("pending = %+v", pending)
	}
	history, _ := f.store.ListForAction(context.Background(), first.ActionID)
	if len(history) == 0 || history[0].Role != models.RoleSystem {
		t.Fatalf("refinement instruction not stored first: %+v", history)
	}

	second := f.say(t, "golang generics")
	if second.Outcome != OutcomeCompleted || second.ActionID != first.ActionID {
		t.Fatalf("second turn = %+v", second)
	}
	if search.Calls() != 1 {
		t.Fatalf("tool calls = %d, want 1", search.Calls())
	}
	inv := search.calls[0]
	if inv.Args["query"] != "golang generics" {
		t.Errorf("query arg = %q", inv.Args["query"])
	}
	if inv.Query != "Can you look something up?" {
		t.Errorf("Query = %q, want the original request", inv.Query)
	}
}

func TestRefinementConvergesToFailure(t *testing.T) {
	search := searchTool(func(n int, _ tools.Invocation) (tools.Result, error) {
		return tools.Result{Summary: "partial" + strings.Repeat("!", n), SatisfiesQuery: tools.Bool(false)}, nil
	})
	f := newFixture(t, search)
	f.script.classify = []string{"TOOL:web_search|query=meaning of life"}
	f.script.next = []string{
		"TOOL:web_search|query=meaning of life philosophy",
		"TOOL:web_search|query=meaning of life 42",
		"TOOL:web_search|query=meaning of life answers",
		"TOOL:web_search|query=never reached",
	}

	resp := f.say(t, "What is the meaning of life?")
	if resp.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s, want failed", resp.Outcome)
	}
	if got, want := search.Calls(), 3+1; got != want {
		t.Errorf("tool calls = %d, want %d", got, want)
	}
	if resp.Text != "partial!!!!" {
		t.Errorf("Text = %q, want the longest summary", resp.Text)
	}
	if got := f.status(t, resp.ActionID); got != models.ActionFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
	action, _ := f.store.GetAction(context.Background(), resp.ActionID)
	if len(action.Attempts) != 4 {
		t.Errorf("persisted attempts = %d, want 4", len(action.Attempts))
	}
	if search.calls[3].Args["query"] != "meaning of life answers" {
		t.Errorf("last query = %q", search.calls[3].Args["query"])
	}
}

func TestNextStepChatEndsLoop(t *testing.T) {
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) {
		return tools.Result{SatisfiesQuery: tools.Bool(false)}, nil
	})
	f := newFixture(t, search)
	f.script.classify = []string{"TOOL:web_search|query=x"}
	f.script.next = []string{"CHAT"}

	resp := f.say(t, "find x")
	if resp.Outcome != OutcomeFailed || resp.Text != noAnswerText {
		t.Errorf("resp = %+v", resp)
	}
	if search.Calls() != 1 {
		t.Errorf("tool calls = %d, want 1", search.Calls())
	}
}

func TestNextStepRefineAsksUser(t *testing.T) {
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) {
		return tools.Result{Summary: "too vague", SatisfiesQuery: tools.Bool(false)}, nil
	})
	f := newFixture(t, search)
	f.script.classify = []string{"TOOL:web_search|query=it"}
	f.script.next = []string{"REFINE:web_search|query|What exactly?"}

	resp := f.say(t, "look it up")
	if resp.Outcome != OutcomeNeedsInput {
		t.Fatalf("resp = %+v", resp)
	}
	pending := f.pending(t)
	if pending == nil || pending.Refinements != 1 || pending.Args["query"] != "" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestCancelThenFreshAction(t *testing.T) {
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) { return satisfied("done") })
	f := newFixture(t, search)
	f.script.classify = []string{"REFINE:web_search|query", "CANCEL", "TOOL:web_search|query=cats"}

	first := f.say(t, "search something")
	cancelled := f.say(t, "never mind")
	if cancelled.Outcome != OutcomeCancelled || cancelled.Text != cancelledText {
		t.Fatalf("cancel turn = %+v", cancelled)
	}
	if got := f.status(t, first.ActionID); got != models.ActionCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
	if f.pending(t) != nil {
		t.Fatal("cancel must clear the pending action")
	}

	fresh := f.say(t, "search for cats")
	if fresh.Outcome != OutcomeCompleted {
		t.Fatalf("fresh turn = %+v", fresh)
	}
	if fresh.ActionID == first.ActionID {
		t.Error("new request must get a new action id")
	}
}

func TestTopicSwitchCancelsOldAction(t *testing.T) {
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) { return satisfied("found") })
	reminder := &stubTool{
		desc: tools.Descriptor{
			Name:        "create_reminder",
			DisplayName: "Create Reminder",
			Params:      []tools.ParamSpec{{Name: "text", Required: true}, {Name: "date", Required: true}},
		},
		invoke: func(int, tools.Invocation) (tools.Result, error) { return satisfied("set") },
	}
	f := newFixture(t, search, reminder)
	f.script.classify = []string{"TOOL:create_reminder|text=call mom", "TOOL:web_search|query=weather"}

	first := f.say(t, "remind me to call mom")
	if first.Outcome != OutcomeNeedsInput {
		t.Fatalf("first = %+v", first)
	}
	second := f.say(t, "actually, what's the weather?")
	if second.Outcome != OutcomeCompleted || second.ActionID == first.ActionID {
		t.Fatalf("second = %+v", second)
	}
	if got := f.status(t, first.ActionID); got != models.ActionCancelled {
		t.Errorf("old action status = %s, want CANCELLED", got)
	}
	if reminder.Calls() != 0 {
		t.Error("the abandoned tool must not run")
	}
}

func TestPendingChatWithNothingMissingFallsBackToChat(t *testing.T) {
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) {
		return tools.Result{}, errors.New("backend down")
	})
	f := newFixture(t, search)
	f.script.classify = []string{"TOOL:web_search|query=news", "CHAT"}

	first := f.say(t, "what's in the news?")
	if first.Outcome != OutcomeToolError {
		t.Fatalf("first = %+v", first)
	}
	if !strings.Contains(first.Text, "Sorry") {
		t.Errorf("apology missing: %q", first.Text)
	}
	if f.pending(t) == nil {
		t.Fatal("tool errors leave the action pending")
	}

	second := f.say(t, "thanks anyway")
	if second.Outcome != OutcomeChat {
		t.Fatalf("second = %+v", second)
	}
	if got := f.status(t, first.ActionID); got != models.ActionCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
	if search.Calls() != 1 {
		t.Errorf("tool calls = %d, want 1", search.Calls())
	}
}

func TestToolTimeoutAndPanic(t *testing.T) {
	slow := searchTool(func(_ int, inv tools.Invocation) (tools.Result, error) {
		return tools.Result{}, context.DeadlineExceeded
	})
	f := newFixture(t, slow)
	f.script.classify = []string{"TOOL:web_search|query=slow"}
	resp := f.say(t, "slow search")
	if resp.Outcome != OutcomeToolError || !strings.Contains(resp.Text, "took too long") {
		t.Errorf("timeout resp = %+v", resp)
	}

	panicky := searchTool(func(int, tools.Invocation) (tools.Result, error) { panic("boom") })
	f = newFixture(t, panicky)
	f.script.classify = []string{"TOOL:web_search|query=boom"}
	resp = f.say(t, "boom")
	if resp.Outcome != OutcomeToolError {
		t.Errorf("panic resp = %+v", resp)
	}
	if got := testutil.ToFloat64(f.metrics.ToolInvocations.WithLabelValues("web_search", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestCancelledWhileRunningDiscardsResult(t *testing.T) {
	var f *fixture
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) {
		pending, _ := f.store.GetPendingAction(context.Background(), testUser)
		if _, err := f.store.UpdateActionStatus(context.Background(), pending.ID, models.ActionCancelled); err != nil {
			return tools.Result{}, err
		}
		return satisfied("late result")
	})
	f = newFixture(t, search)
	f.script.classify = []string{"TOOL:web_search|query=x"}

	resp := f.say(t, "search x")
	if resp.Outcome != OutcomeCancelled || resp.Text == "late result" {
		t.Errorf("resp = %+v", resp)
	}
	if got := f.status(t, resp.ActionID); got != models.ActionCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
}

func TestAtMostOnePendingAction(t *testing.T) {
	search := searchTool(func(int, tools.Invocation) (tools.Result, error) { return satisfied("x") })
	f := newFixture(t, search)
	f.script.classifyDefault = "REFINE:web_search|query"

	var wg sync.WaitGroup
	ids := make([]string, 20)
	errs := make([]error, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.engine.HandleMessage(context.Background(), models.Inbound{UserID: testUser, Text: fmt.Sprintf("search %d", i)})
			ids[i], errs[i] = resp.ActionID, err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("turn %d error = %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Fatalf("turn %d used action %s, want %s", i, ids[i], ids[0])
		}
	}
	pending := f.pending(t)
	if pending == nil || pending.ID != ids[0] {
		t.Errorf("pending = %+v", pending)
	}
	if n := f.engine.locks.len(); n != 0 {
		t.Errorf("user locks left behind: %d", n)
	}
}

func TestReminderScenario(t *testing.T) {
	store := storage.NewMemoryStore()
	tool := reminders.New(store, reminders.WithClock(func() time.Time { return fixedNow }), reminders.WithLocation(time.UTC))
	f := newFixtureWithStore(t, store, tool)
	f.script.classify = []string{"TOOL:create_reminder|text=buy milk&date=tomorrow&time=3pm"}

	resp := f.say(t, "Remind me to buy milk tomorrow at 3pm")
	if resp.Outcome != OutcomeCompleted {
		t.Fatalf("resp = %+v", resp)
	}
	if want := "I'll remind you to buy milk on Thursday, October 15 at 3:00 PM."; resp.Text != want {
		t.Errorf("Text = %q, want %q", resp.Text, want)
	}
	action, _ := f.store.GetAction(context.Background(), resp.ActionID)
	if action.Args["date"] != "2026-10-15" || action.Args["time"] != "15:00" {
		t.Errorf("normalized args = %v", action.Args)
	}
}

func TestReminderInvalidDateIsFlagged(t *testing.T) {
	store := storage.NewMemoryStore()
	tool := reminders.New(store, reminders.WithClock(func() time.Time { return fixedNow }), reminders.WithLocation(time.UTC))
	f := newFixtureWithStore(t, store, tool)
	f.script.classify = []string{"TOOL:create_reminder|text=water plants&date=someday soon&time=9am", "CHAT"}

	resp := f.say(t, "remind me to water the plants someday soon at 9am")
	if resp.Outcome != OutcomeNeedsInput {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "I couldn't understand the value for date") {
		t.Errorf("Text = %q", resp.Text)
	}

	resp = f.say(t, "friday")
	if resp.Outcome != OutcomeCompleted {
		t.Fatalf("clarified resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "Friday, October 16 at 9:00 AM") {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestReminderInPastAsksAgain(t *testing.T) {
	store := storage.NewMemoryStore()
	tool := reminders.New(store, reminders.WithClock(func() time.Time { return fixedNow }), reminders.WithLocation(time.UTC))
	f := newFixtureWithStore(t, store, tool)
	f.script.classify = []string{"TOOL:create_reminder|text=stretch&date=today&time=8am", "CHAT"}

	resp := f.say(t, "remind me to stretch today at 8am")
	if resp.Outcome != OutcomeNeedsInput {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "date") {
		t.Errorf("Text = %q, want a question about the date", resp.Text)
	}
	p := f.pending(t)
	if p == nil || p.ID != resp.ActionID {
		t.Fatal("action must stay pending")
	}
	if _, ok := p.Args["date"]; ok {
		t.Errorf("rejected date kept: %v", p.Args)
	}
	if p.Refinements != 0 {
		t.Errorf("Refinements = %d, rejected arguments must not use the budget", p.Refinements)
	}

	resp = f.say(t, "friday")
	if resp.Outcome != OutcomeCompleted {
		t.Fatalf("clarified resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "Friday, October 16 at 9:00 AM") {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestInvalidArgumentFromToolAsksAgain(t *testing.T) {
	calc := &stubTool{
		desc: tools.Descriptor{
			Name:         "evaluate_expression",
			DisplayName:  "Evaluate Expression",
			Description:  "Computes expressions.",
			UsageExample: "TOOL:evaluate_expression|expression=<expr>",
			Params:       []tools.ParamSpec{{Name: "expression", Required: true}},
		},
	}
	calc.invoke = func(n int, inv tools.Invocation) (tools.Result, error) {
		if inv.Arg("expression") == "2 +" {
			return tools.Result{}, &tools.InvalidArgumentError{Params: []string{"expression"}, Err: errors.New("unexpected end")}
		}
		return satisfied(inv.Arg("expression") + " = 4")
	}
	f := newFixture(t, calc)
	f.script.classify = []string{"TOOL:evaluate_expression|expression=2 +", "CHAT"}

	resp := f.say(t, "what is 2 +")
	if resp.Outcome != OutcomeNeedsInput {
		t.Fatalf("resp = %+v, want a question instead of an apology", resp)
	}
	if strings.Contains(resp.Text, "something went wrong") {
		t.Errorf("Text = %q", resp.Text)
	}

	resp = f.say(t, "2 + 2")
	if resp.Outcome != OutcomeCompleted || resp.Text != "2 + 2 = 4" {
		t.Errorf("resp = %+v", resp)
	}
	if got := testutil.ToFloat64(f.metrics.ToolInvocations.WithLabelValues("evaluate_expression", "invalid_args")); got != 1 {
		t.Errorf("invalid_args count = %v, want 1", got)
	}
}

func TestChatTemperatureDefaults(t *testing.T) {
	if got := *(Config{}).withDefaults().ChatTemperature; got != 0.7 {
		t.Errorf("default temperature = %v, want 0.7", got)
	}
	zero := float32(0)
	if got := *(Config{ChatTemperature: &zero}).withDefaults().ChatTemperature; got != 0 {
		t.Errorf("explicit zero temperature = %v, want 0", got)
	}

	f := newFixture(t, searchTool(func(int, tools.Invocation) (tools.Result, error) { return satisfied("x") }))
	f.script.classify = []string{"CHAT"}
	f.say(t, "hello")
	requests := f.oracle.Requests()
	if last := requests[len(requests)-1]; last.Temperature != 0.7 {
		t.Errorf("chat request temperature = %v, want 0.7", last.Temperature)
	}
}

type noTokens struct{}

func (noTokens) TokenSource(context.Context, string) (oauth2.TokenSource, error) {
	return nil, auth.ErrNoToken
}

func (noTokens) AuthURL(userID string) (string, error) {
	return "https://accounts.google.com/o/oauth2/auth?state=signed", nil
}

func TestCalendarRequiresAuthorization(t *testing.T) {
	f := newFixture(t, calendar.New(noTokens{}, calendar.Config{}))
	f.script.classify = []string{"TOOL:calendar_events"}

	resp := f.say(t, "What's on my calendar?")
	if resp.Outcome != OutcomeAuthRequired {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "https://accounts.google.com/o/oauth2/auth?state=signed") {
		t.Errorf("auth url missing: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "Google account") {
		t.Errorf("provider missing: %q", resp.Text)
	}
	if p := f.pending(t); p == nil || p.ID != resp.ActionID {
		t.Error("action must stay pending until authorized")
	}
}

func newFixtureWithStore(t *testing.T, store *storage.MemoryStore, ts ...tools.Tool) *fixture {
	t.Helper()
	f := &fixture{store: store, script: &script{chat: "Hi! How can I help?"}, metrics: observability.Nop()}
	f.oracle = llmtest.New().Respond(f.script.respond)
	eng, err := New(Deps{
		Registry:  tools.NewRegistry().MustRegister(ts...),
		Oracle:    f.oracle,
		Evaluator: resultEvaluator{},
		Actions:   store,
		Messages:  store,
	}, Config{ToolTimeout: time.Second}, WithMetrics(f.metrics), WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.engine = eng
	return f
}
