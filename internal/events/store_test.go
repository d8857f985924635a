package events

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cversek/macf/internal/env"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	e := env.TestEnv(dir)
	e.EventsLogPathOverride = filepath.Join(dir, "agent_events_log.jsonl")
	return NewStore(e)
}

func TestAppendAndReadForward(t *testing.T) {
	s := newTestStore(t)
	if !s.Append("session_started", map[string]any{"cycle": 7}, nil) {
		t.Fatal("append failed")
	}
	if !s.Append("dev_drv_started", map[string]any{"prompt_uuid": "abc"}, nil) {
		t.Fatal("append failed")
	}
	recs := s.Read(0, false)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Event != "session_started" || recs[1].Event != "dev_drv_started" {
		t.Errorf("unexpected order: %+v", recs)
	}
}

func TestReadReverse(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		s.Append("tick", map[string]any{"i": i}, nil)
	}
	recs := s.Read(2, true)
	if len(recs) != 2 {
		t.Fatalf("expected 2 reverse records, got %d", len(recs))
	}
	var last int
	recs[0].DataField("i", &last)
	if last != 4 {
		t.Errorf("expected newest-first, got i=%d", last)
	}
}

func TestMalformedLineSkipped(t *testing.T) {
	s := newTestStore(t)
	s.Append("ok_event", nil, nil)
	f, err := os.OpenFile(s.path(), os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json at all\n")
	f.Close()
	s.Append("after_garbage", nil, nil)

	recs := s.Read(0, false)
	if len(recs) != 2 {
		t.Fatalf("expected garbage line skipped, got %d records: %+v", len(recs), recs)
	}
}

func TestAppendAtomicityUnderContention(t *testing.T) {
	s := newTestStore(t)
	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s.Append("concurrent", map[string]any{"i": i}, nil)
		}(i)
	}
	wg.Wait()
	recs := s.Read(0, false)
	if len(recs) != n {
		t.Fatalf("expected %d complete lines, got %d", n, len(recs))
	}
}

func TestSetOperationSubtraction(t *testing.T) {
	s := newTestStore(t)
	s.Append("a", nil, nil) // E1, cycle unspecified via breadcrumb for simplicity
	s.Append("b", nil, nil) // E2
	s.Append("a", nil, nil) // E3

	all := s.Read(0, false)
	if len(all) != 3 {
		t.Fatalf("expected 3 seed events, got %d", len(all))
	}

	res := s.SetOperation([]Filters{{}, {EventType: "a"}}, OpSubtraction)
	if len(res) != 1 || res[0].Event != "b" {
		t.Errorf("expected subtraction to leave only event b, got %+v", res)
	}
}
