package conversation

import "strings"

// Scripted lines keep a session producing caller utterances even when the
// LLM is erroring or empty. They are selected by caller-turn index so a
// broken brain still yields a plausible probing conversation.

var scriptedFollowUps = []string{
	"Could you tell me a bit more about that?",
	"I see. And what would you suggest I do next?",
	"That makes sense. Can you walk me through the details?",
	"Okay. Is there anything I should have ready on my end?",
	"Understood. How long does that usually take?",
}

const (
	neutralOpener    = "Hi, I'm calling because I need some help with my account."
	scriptedFarewell = "Thanks so much for your help. Goodbye!"
)

// FallbackLine returns the deterministic scripted caller line for the given
// caller-turn index. Index 0 uses the test case's opening goal verbatim when
// present so the probe still pursues its stated objective.
func FallbackLine(spec TestCaseSpec, callerTurnIndex int) string {
	if callerTurnIndex <= 0 {
		if opening := strings.TrimSpace(spec.OpeningGoal); opening != "" {
			return opening
		}
		return neutralOpener
	}
	return scriptedFollowUps[(callerTurnIndex-1)%len(scriptedFollowUps)]
}

// FarewellLine returns the deterministic goodbye used when closing-mode
// generation fails or when finalization must complete the transcript.
func FarewellLine() string { return scriptedFarewell }
