package hooks

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/cversek/macf/internal/env"
	"github.com/cversek/macf/internal/events"
	"github.com/cversek/macf/internal/manifest"
	"github.com/cversek/macf/internal/projections"
	"github.com/cversek/macf/internal/tasks"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	dir := t.TempDir()
	e := env.TestEnv(dir)
	e.EventsLogPathOverride = filepath.Join(dir, "agent_events_log.jsonl")
	ev := events.NewStore(e)
	ts := tasks.NewStore(e, ev)
	return NewContext(e, ev, ts, manifest.Manifest{})
}

func TestRunNeverPropagatesPanic(t *testing.T) {
	c := newTestContext(t)
	stdin := bytes.NewBufferString(`{"hook_event_name":"Stop","session_id":"abc"}`)
	var stdout bytes.Buffer

	Run(c, stdin, &stdout, func(*Context, Input) Output {
		panic("boom")
	})

	var out Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if !out.Continue {
		t.Error("expected continue:true even after a panic")
	}
}

func TestRunToleratesMalformedStdin(t *testing.T) {
	c := newTestContext(t)
	stdin := bytes.NewBufferString(`not json at all`)
	var stdout bytes.Buffer

	Run(c, stdin, &stdout, Notification)

	var out Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if !out.Continue {
		t.Error("expected continue:true for malformed stdin")
	}
}

func TestPreToolUseBlocksBareCd(t *testing.T) {
	c := newTestContext(t)
	in := Input{ToolName: "Bash", ToolInput: json.RawMessage(`{"command":"cd /tmp"}`)}
	out := PreToolUse(c, in)
	if out.Continue {
		t.Error("expected bare cd to be blocked")
	}
}

func TestPreToolUseAllowsChainedCd(t *testing.T) {
	c := newTestContext(t)
	in := Input{ToolName: "Bash", ToolInput: json.RawMessage(`{"command":"cd /tmp && ls"}`)}
	out := PreToolUse(c, in)
	if !out.Continue {
		t.Error("expected chained cd to be allowed")
	}
}

func TestPreToolUseRecordsDelegation(t *testing.T) {
	c := newTestContext(t)
	in := Input{ToolName: "Task", ToolInput: json.RawMessage(`{"subagent_type":"researcher"}`)}
	PreToolUse(c, in)

	recs := c.Events.Read(0, false)
	found := false
	for _, r := range recs {
		if r.Event == "delegation_started" && r.DataString("subagent_type") == "researcher" {
			found = true
		}
	}
	if !found {
		t.Error("expected a delegation_started event for a Task tool call")
	}
}

func TestPreToolUseEmitsToolCallStarted(t *testing.T) {
	c := newTestContext(t)
	PreToolUse(c, Input{ToolName: "Bash", ToolInput: json.RawMessage(`{"command":"ls"}`)})

	found := false
	for _, r := range c.Events.Read(0, false) {
		if r.Event == "tool_call_started" && r.DataString("tool_name") == "Bash" {
			found = true
		}
	}
	if !found {
		t.Error("expected a tool_call_started event naming the tool")
	}
}

func TestPostToolUseEmitsToolCallCompleted(t *testing.T) {
	c := newTestContext(t)
	PostToolUse(c, Input{ToolName: "Bash", ToolResponse: json.RawMessage(`{"ok":true}`)})

	found := false
	for _, r := range c.Events.Read(0, false) {
		if r.Event == "tool_call_completed" && r.DataString("tool_name") == "Bash" {
			found = true
		}
	}
	if !found {
		t.Error("expected a tool_call_completed event naming the tool")
	}
}

func TestSessionStartPlainTemporal(t *testing.T) {
	c := newTestContext(t)
	out := SessionStart(c, Input{SessionID: "sess-123"})
	if !out.Continue {
		t.Error("expected continue:true")
	}
	recs := c.Events.Read(0, false)
	if len(recs) == 0 || recs[0].Event != "session_started" {
		t.Fatalf("expected a session_started event, got %+v", recs)
	}
}

func TestSessionStartCompactSourceInjectsRecoveryContext(t *testing.T) {
	c := newTestContext(t)
	out := SessionStart(c, Input{SessionID: "sess-123", Source: "compact"})
	if out.HookSpecificOutput == nil || out.HookSpecificOutput.AdditionalContext == "" {
		t.Fatal("expected recovery context to be injected on a compact-sourced session start")
	}
}

// TestSessionStartCompactionIncrementsCycle pins §8 S1's literal
// scenario: seeding cycle 7 and running compaction recovery must bump
// the cycle to 8, both in the emitted event and in what cycle_number()
// reports afterward.
func TestSessionStartCompactionIncrementsCycle(t *testing.T) {
	c := newTestContext(t)
	c.Events.Append("session_started", map[string]any{"session_id": "S1-XXXX", "cycle": 7}, nil)

	out := SessionStart(c, Input{SessionID: "S2-XXXX", Source: "compact"})
	if !out.Continue {
		t.Fatal("expected continue:true")
	}
	if got := out.HookSpecificOutput.AdditionalContext; !bytes.Contains([]byte(got), []byte("Cycle: 8 (post-compaction from Cycle 7)")) {
		t.Errorf("recovery text = %q, want it to contain %q", got, "Cycle: 8 (post-compaction from Cycle 7)")
	}

	var sawCompaction bool
	for _, r := range c.Events.Read(0, true) {
		if r.Event == "compaction_detected" {
			var cycle int
			r.DataField("cycle", &cycle)
			if cycle != 8 {
				t.Errorf("compaction_detected.cycle = %d, want 8", cycle)
			}
			sawCompaction = true
			break
		}
	}
	if !sawCompaction {
		t.Fatal("expected a compaction_detected event")
	}

	if got := projections.CycleNumber(c.Events); got != 8 {
		t.Errorf("cycle_number() after compaction = %d, want 8", got)
	}
}

func TestDispatchCoversAllTenHooks(t *testing.T) {
	want := []string{
		"SessionStart", "UserPromptSubmit", "PreToolUse", "PostToolUse",
		"Stop", "SubagentStop", "SessionEnd", "PreCompact",
		"PermissionRequest", "Notification",
	}
	if len(Dispatch) != len(want) {
		t.Fatalf("expected %d registered hooks, got %d", len(want), len(Dispatch))
	}
	for _, name := range want {
		if _, ok := Lookup(name); !ok {
			t.Errorf("missing dispatch entry for %s", name)
		}
	}
}
