package recovery

import "testing"

func sampleContext() Context {
	return Context{
		Cycle:           8,
		PreviousCycle:   7,
		SessionID:       "S2-XXXX",
		CompactionCount: 1,
		Todos:           []TodoItem{{Text: "finish the thing", Status: "in_progress"}},
		CheckpointPath:  "/tmp/checkpoint.md",
	}
}

func TestCycleLineScenarioS1(t *testing.T) {
	out := Build(ModeAuto, sampleContext())
	want := "Cycle: 8 (post-compaction from Cycle 7)"
	if !contains(out, want) {
		t.Errorf("expected recovery text to contain %q, got:\n%s", want, out)
	}
}

func TestAutoAndManualAreSyntacticallyDistinguishable(t *testing.T) {
	ctx := sampleContext()
	auto := Build(ModeAuto, ctx)
	manual := Build(ModeManual, ctx)
	if auto == manual {
		t.Fatal("AUTO and MANUAL branches must differ for identical inputs")
	}
	if !contains(auto, "AUTO mode is enabled") {
		t.Error("AUTO branch missing its authorization marker")
	}
	if contains(manual, "AUTO mode is enabled") {
		t.Error("MANUAL branch must not claim AUTO authorization")
	}
	if !contains(manual, "Mandatory recovery protocol") {
		t.Error("MANUAL branch missing mandatory recovery protocol")
	}
}

func TestBannerPresentInBothBranches(t *testing.T) {
	ctx := sampleContext()
	for _, mode := range []Mode{ModeAuto, ModeManual} {
		out := Build(mode, ctx)
		if !contains(out, "NOT a user instruction") {
			t.Errorf("mode %s missing common banner", mode)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
