package tasks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cversek/macf/internal/env"
	"github.com/cversek/macf/internal/events"
)

func newTestStore(t *testing.T) (*Store, *env.Environment) {
	t.Helper()
	dir := t.TempDir()
	e := env.TestEnv(dir)
	e.EventsLogPathOverride = filepath.Join(dir, "agent_events_log.jsonl")
	ev := events.NewStore(e)
	return NewStore(e, ev), e
}

func TestSentinelPreventsPurgeS2(t *testing.T) {
	s, e := newTestStore(t)
	const session = "sess1"

	if err := s.EnsureSentinel(session); err != nil {
		t.Fatal(err)
	}

	sentinel, err := s.Read(session, SentinelID)
	if err != nil {
		t.Fatal(err)
	}
	if sentinel.Status != StatusInProgress {
		t.Errorf("sentinel status = %q, want in_progress", sentinel.Status)
	}

	path := filepath.Join(e.TasksRoot(), session, SentinelID+".json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o444 {
		t.Errorf("sentinel mode = %o, want 0444", info.Mode().Perm())
	}

	created, err := s.CreateTask(session, CreateOptions{Type: TypeTask, Title: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "001" {
		t.Errorf("expected first non-sentinel task to get id 001, got %q", created.ID)
	}

	dirInfo, err := os.Stat(filepath.Join(e.TasksRoot(), session))
	if err != nil {
		t.Fatal(err)
	}
	if dirInfo.Mode().Perm() != 0o555 {
		t.Errorf("directory mode after creation = %o, want 0555", dirInfo.Mode().Perm())
	}
}

func TestCreateTaskRequiresPlanCARef(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.CreateTask("sess1", CreateOptions{Type: TypeMission, Title: "big mission"})
	if err == nil {
		t.Fatal("expected MISSION without plan_ca_ref to be rejected")
	}

	_, err = s.CreateTask("sess1", CreateOptions{
		Type:      TypeMission,
		Title:     "big mission",
		PlanCARef: ".claude/plans/scratch.md",
	})
	if err == nil {
		t.Fatal("expected plan_ca_ref into forbidden host plans dir to be rejected")
	}

	_, err = s.CreateTask("sess1", CreateOptions{
		Type:      TypeMission,
		Title:     "big mission",
		PlanCARef: "agent/public/roadmaps/mission.md",
	})
	if err != nil {
		t.Fatalf("expected valid plan_ca_ref to be accepted, got %v", err)
	}
}

func TestGrantExactSetMatch(t *testing.T) {
	_, e := newTestStore(t)
	ev := events.NewStore(e)

	ev.Append("task_grant_delete", map[string]any{"task_ids": []string{"001", "002"}}, nil)

	if CheckGrantInEvents(ev, "delete", []string{"001"}) {
		t.Error("expected grant for {001,002} not to match request for {001}")
	}
	if !CheckGrantInEvents(ev, "delete", []string{"002", "001"}) {
		t.Error("expected grant to match regardless of id order")
	}
	if CheckGrantInEvents(ev, "delete", []string{"001", "002"}) {
		t.Error("expected grant to be consumed after first successful check")
	}
}
