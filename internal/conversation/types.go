package conversation

import (
	"context"

	"github.com/dlanza/callprobe/internal/audio"
	"github.com/dlanza/callprobe/internal/signaling"
)

// TestCaseSpec is the immutable description of one synthetic-caller scenario.
type TestCaseSpec struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Scenario        string `json:"scenario"`
	OpeningGoal     string `json:"opening_goal"`
	ExpectedOutcome string `json:"expected_outcome"`
	Category        string `json:"category"`
}

// Turn is one uninterrupted utterance by either party, appended in arrival
// order. Alternation is expected but never enforced.
type Turn struct {
	Role        signaling.Role `json:"role"`
	Content     string         `json:"content"`
	TimestampMs int64          `json:"timestamp_ms"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}

// AudioSegment is the raw audio captured for one turn. The session owns the
// segments until they are handed to the recording assembler.
type AudioSegment struct {
	Role     signaling.Role
	Raw      []byte
	Encoding audio.Encoding
}

// Result is the outcome of one full test conversation, produced exactly once.
type Result struct {
	CallID                   string         `json:"call_id"`
	DurationMs               int64          `json:"duration_ms"`
	Transcript               []Turn         `json:"transcript"`
	Recording                []byte         `json:"-"`
	AgentTranscriptText      string         `json:"agent_transcript_text"`
	TestCallerTranscriptText string         `json:"test_caller_transcript_text"`
	Success                  bool           `json:"success"`
	Error                    string         `json:"error,omitempty"`
	Segments                 []AudioSegment `json:"-"`
}

// ReplyMode selects between a normal in-conversation reply and a short
// goodbye when the agent has signalled the call is over.
type ReplyMode string

const (
	ReplyModeNormal  ReplyMode = "normal"
	ReplyModeClosing ReplyMode = "closing"
)

// ReplyGenerator produces the synthetic caller's next utterance. It is
// expected to recover from transient failures internally; the session still
// falls back to a scripted line if it errors.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, spec TestCaseSpec, history []Turn, mode ReplyMode) (string, error)
}

// Synthesizer renders caller text as audio in the negotiated encoding.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, enc audio.Encoding) ([]byte, error)
}
