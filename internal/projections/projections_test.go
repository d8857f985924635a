package projections

import (
	"path/filepath"
	"testing"

	"github.com/cversek/macf/internal/env"
	"github.com/cversek/macf/internal/events"
)

func newTestStore(t *testing.T) *events.Store {
	t.Helper()
	dir := t.TempDir()
	e := env.TestEnv(dir)
	e.EventsLogPathOverride = filepath.Join(dir, "agent_events_log.jsonl")
	return events.NewStore(e)
}

func TestCycleNumber(t *testing.T) {
	s := newTestStore(t)
	s.Append("session_started", map[string]any{"cycle": 7}, nil)
	if got := CycleNumber(s); got != 7 {
		t.Errorf("expected cycle 7, got %d", got)
	}
}

func TestActiveTasksFromEventsFirstSeenWins(t *testing.T) {
	s := newTestStore(t)
	s.Append("task_started", map[string]any{"task_id": "001", "task_type": "BUG"}, nil)
	s.Append("task_completed", map[string]any{"task_id": "001"}, nil)
	s.Append("task_started", map[string]any{"task_id": "002", "task_type": "TASK"}, nil)

	active := ActiveTasksFromEvents(s)
	if _, ok := active["001"]; ok {
		t.Error("task 001 was completed, should not be active")
	}
	if active["002"] != "TASK" {
		t.Errorf("expected task 002 active with type TASK, got %+v", active)
	}
}

func TestActiveTasksStopsAtCompaction(t *testing.T) {
	s := newTestStore(t)
	s.Append("task_started", map[string]any{"task_id": "001", "task_type": "BUG"}, nil)
	s.Append("compaction_detected", map[string]any{"cycle": 2}, nil)
	s.Append("task_started", map[string]any{"task_id": "002", "task_type": "TASK"}, nil)

	active := ActiveTasksFromEvents(s)
	if _, ok := active["001"]; ok {
		t.Error("pre-compaction task should not surface across the boundary")
	}
	if active["002"] != "TASK" {
		t.Errorf("expected post-compaction task active, got %+v", active)
	}
}

func TestSetSubtractionScenarioS6(t *testing.T) {
	s := newTestStore(t)
	// E1(type=a, cycle=170), E2(type=b, cycle=170), E3(type=a, cycle=171)
	s.SessionID, s.PromptID = "sessSESS", "promtPMT"
	s.Cycle = func() int { return 170 }
	s.Append("a", nil, nil)
	s.Append("b", nil, nil)
	s.Cycle = func() int { return 171 }
	s.Append("a", nil, nil)

	cycle170 := 170
	res := s.SetOperation([]events.Filters{
		{Breadcrumb: &events.BreadcrumbFilter{Cycle: &cycle170}},
		{EventType: "a"},
	}, events.OpSubtraction)

	if len(res) != 1 || res[0].Event != "b" {
		t.Errorf("expected only E2(b) to survive subtraction, got %+v", res)
	}
}
