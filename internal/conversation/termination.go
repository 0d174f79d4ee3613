package conversation

import (
	"regexp"
	"strings"
)

// Termination is heuristic by design: it matches curated farewell language in
// free LLM text, so both false positives and false negatives are possible.
// Only agent language can end the call; the synthetic caller never volunteers
// to hang up. A hard turn ceiling is a safety net, not the primary mechanism.

var (
	finalFarewellRe = regexp.MustCompile(`(?i)\b(goodbye|good bye|bye[\s-]?bye|take care|have a (great|good|nice|wonderful) (day|one|evening|night|weekend))\b[\s!.,]*$`)
	softWrapRe      = regexp.MustCompile(`(?i)(anything else (i can|we can|i could) (help|do|assist)|is there anything else|thanks for calling|have a great rest of your day)`)
)

// Policy decides whether the agent's latest utterance should end the call.
type Policy struct {
	// MinTurns is the total transcript size required before any farewell is
	// honored.
	MinTurns int
	// SoftWrapTurns is the size after which soft wrap-up phrasing also ends
	// the call.
	SoftWrapTurns int
	// HardTurnCeiling unconditionally ends the call once reached.
	HardTurnCeiling int
}

// DefaultPolicy returns the production termination thresholds.
func DefaultPolicy() Policy {
	return Policy{MinTurns: 4, SoftWrapTurns: 8, HardTurnCeiling: 30}
}

func (p Policy) withDefaults() Policy {
	if p.MinTurns <= 0 {
		p.MinTurns = 4
	}
	if p.SoftWrapTurns <= 0 {
		p.SoftWrapTurns = 8
	}
	if p.HardTurnCeiling <= 0 {
		p.HardTurnCeiling = 30
	}
	return p
}

// ShouldEnd reports whether the call should wind down given the agent's
// latest utterance and the total transcript turn count including it.
func (p Policy) ShouldEnd(agentUtterance string, totalTurns int) bool {
	p = p.withDefaults()
	if totalTurns >= p.HardTurnCeiling {
		return true
	}
	if totalTurns < p.MinTurns {
		return false
	}

	u := normalizeUtterance(agentUtterance)
	if u == "" {
		return false
	}
	if finalFarewellRe.MatchString(u) || finalFarewellRe.MatchString(lastSentence(u)) {
		return true
	}
	if totalTurns >= p.SoftWrapTurns && softWrapRe.MatchString(u) {
		return true
	}
	return false
}

func normalizeUtterance(raw string) string {
	return strings.TrimSpace(strings.ToLower(raw))
}

// lastSentence isolates the final sentence so a farewell near the end is
// still caught when the agent tacks on trailing filler punctuation.
func lastSentence(u string) string {
	idx := strings.LastIndexAny(strings.TrimRight(u, " .!?"), ".!?")
	if idx < 0 {
		return u
	}
	return strings.TrimSpace(u[idx+1:])
}
