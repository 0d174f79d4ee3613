package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/reliability"
	"github.com/dlanza/callprobe/internal/signaling"
)

const (
	maxAttempts   = 3
	retryBaseWait = 150 * time.Millisecond
	retryCapWait  = 1200 * time.Millisecond
)

// Brain plays the synthetic customer: it prompts the completion backend with
// a persona built from the test case and returns the caller's next line.
// Transient backend failures are retried with capped backoff; exhaustion
// falls back to a deterministic scripted line so a session never stalls.
type Brain struct {
	client Client
}

func New(client Client) *Brain {
	return &Brain{client: client}
}

// GenerateReply implements conversation.ReplyGenerator.
func (b *Brain) GenerateReply(ctx context.Context, spec conversation.TestCaseSpec, history []conversation.Turn, mode conversation.ReplyMode) (string, error) {
	req := CompletionRequest{
		System:   personaPrompt(spec, mode),
		Messages: promptMessages(history),
		TurnID:   uuid.NewString(),
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, retryBaseWait, retryCapWait)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return b.fallback(spec, history, mode), nil
			case <-timer.C:
			}
		}

		text, err := b.client.Complete(ctx, req)
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return text, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("empty completion")
		}
		if ctx.Err() != nil {
			break
		}
	}

	// The session must always produce an utterance; swallow the error and
	// hand back the scripted line.
	_ = lastErr
	return b.fallback(spec, history, mode), nil
}

func (b *Brain) fallback(spec conversation.TestCaseSpec, history []conversation.Turn, mode conversation.ReplyMode) string {
	if mode == conversation.ReplyModeClosing {
		return conversation.FarewellLine()
	}
	return conversation.FallbackLine(spec, callerTurnCount(history))
}

func callerTurnCount(history []conversation.Turn) int {
	n := 0
	for _, t := range history {
		if t.Role == signaling.RoleTestCaller {
			n++
		}
	}
	return n
}

func personaPrompt(spec conversation.TestCaseSpec, mode conversation.ReplyMode) string {
	var b strings.Builder
	b.WriteString("You are role-playing a customer on a phone call with an AI support agent. ")
	b.WriteString("Stay fully in character as the caller. ")
	if s := strings.TrimSpace(spec.Scenario); s != "" {
		b.WriteString("Scenario: " + s + ". ")
	}
	if g := strings.TrimSpace(spec.OpeningGoal); g != "" {
		b.WriteString("Your objective: " + g + ". ")
	}
	if e := strings.TrimSpace(spec.ExpectedOutcome); e != "" {
		b.WriteString("You are probing whether the agent can: " + e + ". ")
	}

	if mode == conversation.ReplyModeClosing {
		b.WriteString("The agent has indicated the call is over. Reply with one short, polite goodbye sentence and nothing else. This is your cue to wrap up the call.")
		return b.String()
	}

	b.WriteString("Pursue your objective persistently. Never offer to end the call yourself and never say goodbye first. ")
	b.WriteString("Prefer replies of two or three sentences that include a follow-up question, so the agent has to keep working.")
	return b.String()
}

func promptMessages(history []conversation.Turn) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, t := range history {
		role := "user"
		if t.Role == signaling.RoleTestCaller {
			// The synthetic caller's own lines are the assistant side of the
			// prompt; the agent under test plays the user.
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: t.Content})
	}
	if len(msgs) == 0 {
		msgs = append(msgs, Message{Role: "user", Content: "(the line is open; greet the agent and state why you are calling)"})
	}
	return msgs
}
