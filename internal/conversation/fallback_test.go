package conversation

import "testing"

func TestFallbackLineFirstTurnUsesOpeningGoal(t *testing.T) {
	spec := TestCaseSpec{OpeningGoal: "I want to dispute a charge on my last bill."}
	if got := FallbackLine(spec, 0); got != spec.OpeningGoal {
		t.Fatalf("FallbackLine(spec, 0) = %q, want opening goal verbatim", got)
	}
}

func TestFallbackLineFirstTurnWithoutGoal(t *testing.T) {
	if got := FallbackLine(TestCaseSpec{}, 0); got != neutralOpener {
		t.Fatalf("FallbackLine(empty, 0) = %q, want neutral opener", got)
	}
}

func TestFallbackLineCyclesFollowUps(t *testing.T) {
	spec := TestCaseSpec{OpeningGoal: "goal"}
	seen := map[string]bool{}
	for i := 1; i <= len(scriptedFollowUps); i++ {
		seen[FallbackLine(spec, i)] = true
	}
	if len(seen) != len(scriptedFollowUps) {
		t.Fatalf("distinct follow-ups = %d, want %d", len(seen), len(scriptedFollowUps))
	}
	if FallbackLine(spec, 1) != FallbackLine(spec, 1+len(scriptedFollowUps)) {
		t.Fatalf("follow-up cycle broken")
	}
}

func TestFarewellLineEndsWithGoodbye(t *testing.T) {
	if !DefaultPolicy().withDefaults().ShouldEnd(FarewellLine(), 10) {
		t.Fatalf("FarewellLine() = %q does not read as a farewell", FarewellLine())
	}
}
