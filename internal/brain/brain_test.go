package brain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/signaling"
)

type scriptedClient struct {
	mu      sync.Mutex
	calls   int
	replies []string
	errs    []error
}

func (c *scriptedClient) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	var reply string
	var err error
	if i < len(c.replies) {
		reply = c.replies[i]
	}
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return reply, err
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestGenerateReplyFirstAttempt(t *testing.T) {
	client := &scriptedClient{replies: []string{"I need help with billing."}}
	b := New(client)

	got, err := b.GenerateReply(context.Background(), conversation.TestCaseSpec{}, nil, conversation.ReplyModeNormal)
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != "I need help with billing." {
		t.Fatalf("reply = %q", got)
	}
	if client.Calls() != 1 {
		t.Fatalf("backend calls = %d, want 1", client.Calls())
	}
}

func TestGenerateReplyRetriesTransientFailures(t *testing.T) {
	client := &scriptedClient{
		replies: []string{"", "", "third time lucky"},
		errs:    []error{errors.New("boom"), errors.New("boom"), nil},
	}
	b := New(client)

	got, err := b.GenerateReply(context.Background(), conversation.TestCaseSpec{}, nil, conversation.ReplyModeNormal)
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != "third time lucky" {
		t.Fatalf("reply = %q, want recovered reply", got)
	}
	if client.Calls() != 3 {
		t.Fatalf("backend calls = %d, want 3", client.Calls())
	}
}

func TestGenerateReplyFallsBackAfterExhaustion(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	b := New(client)
	spec := conversation.TestCaseSpec{OpeningGoal: "Dispute a late fee on my account"}

	got, err := b.GenerateReply(context.Background(), spec, nil, conversation.ReplyModeNormal)
	if err != nil {
		t.Fatalf("GenerateReply() error = %v, fallback must not error", err)
	}
	if got != conversation.FallbackLine(spec, 0) {
		t.Fatalf("reply = %q, want scripted opening fallback", got)
	}
	if client.Calls() != 3 {
		t.Fatalf("backend calls = %d, want 3", client.Calls())
	}
}

func TestGenerateReplyFallbackIndexTracksCallerTurns(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	b := New(client)
	spec := conversation.TestCaseSpec{OpeningGoal: "goal"}
	history := []conversation.Turn{
		{Role: signaling.RoleAgent, Content: "hello"},
		{Role: signaling.RoleTestCaller, Content: "hi"},
		{Role: signaling.RoleAgent, Content: "go on"},
	}

	got, err := b.GenerateReply(context.Background(), spec, history, conversation.ReplyModeNormal)
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != conversation.FallbackLine(spec, 1) {
		t.Fatalf("reply = %q, want follow-up for caller turn 1", got)
	}
}

func TestGenerateReplyClosingFallbackIsFarewell(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	b := New(client)

	got, err := b.GenerateReply(context.Background(), conversation.TestCaseSpec{}, nil, conversation.ReplyModeClosing)
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != conversation.FarewellLine() {
		t.Fatalf("reply = %q, want scripted farewell", got)
	}
}

func TestGenerateReplyTreatsEmptyCompletionAsFailure(t *testing.T) {
	client := &scriptedClient{replies: []string{"   ", "", "real answer"}}
	b := New(client)

	got, err := b.GenerateReply(context.Background(), conversation.TestCaseSpec{}, nil, conversation.ReplyModeNormal)
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != "real answer" {
		t.Fatalf("reply = %q, want retry past empty completions", got)
	}
}

func TestPersonaPromptIncludesScenarioAndGoal(t *testing.T) {
	spec := conversation.TestCaseSpec{
		Scenario:        "Caller received a duplicate charge",
		OpeningGoal:     "Get the duplicate refunded",
		ExpectedOutcome: "issue a refund without escalation",
	}
	p := personaPrompt(spec, conversation.ReplyModeNormal)
	for _, want := range []string{spec.Scenario, spec.OpeningGoal, spec.ExpectedOutcome} {
		if !strings.Contains(p, want) {
			t.Fatalf("persona prompt missing %q", want)
		}
	}
	if strings.Contains(p, "wrap up the call") {
		t.Fatalf("normal prompt must not carry the closing cue")
	}
	if !strings.Contains(personaPrompt(spec, conversation.ReplyModeClosing), "wrap up the call") {
		t.Fatalf("closing prompt missing the wrap-up cue")
	}
}

func TestPromptMessagesRoleMapping(t *testing.T) {
	history := []conversation.Turn{
		{Role: signaling.RoleAgent, Content: "How can I help?"},
		{Role: signaling.RoleTestCaller, Content: "I lost my card."},
	}
	msgs := promptMessages(history)
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("roles = %q/%q, want user/assistant", msgs[0].Role, msgs[1].Role)
	}

	seeded := promptMessages(nil)
	if len(seeded) != 1 || seeded[0].Role != "user" {
		t.Fatalf("empty history must seed one user message, got %+v", seeded)
	}
}

func TestMockClientClosingCue(t *testing.T) {
	c := NewMockClient()
	normal, _ := c.Complete(context.Background(), CompletionRequest{System: "stay in character"})
	if strings.Contains(strings.ToLower(normal), "goodbye") {
		t.Fatalf("normal mock reply %q should not say goodbye", normal)
	}
	closing, _ := c.Complete(context.Background(), CompletionRequest{System: "This is your cue to wrap up the call."})
	if !strings.Contains(strings.ToLower(closing), "goodbye") {
		t.Fatalf("closing mock reply %q should say goodbye", closing)
	}
}
