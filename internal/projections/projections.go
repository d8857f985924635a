// Package projections derives agent operational state from the event log
// via the snapshot-aware reverse-scan pattern (C3): find the newest
// state_snapshot, seed accumulators from it, then scan reverse only back
// to that snapshot's timestamp.
package projections

import (
	"github.com/cversek/macf/internal/events"
)

// snapshotBound is the maximum number of events scanned in reverse while
// searching for the newest state_snapshot, per §4.3 step 1.
const snapshotBound = 100

// findSnapshot returns the newest state_snapshot record, if any, found
// within the last snapshotBound events.
func findSnapshot(s *events.Store) (events.Record, bool) {
	tail := s.Read(snapshotBound, true)
	for _, r := range tail {
		if r.Event == "state_snapshot" {
			return r, true
		}
	}
	return events.Record{}, false
}

// eventsSinceSnapshot returns events strictly after the newest snapshot's
// timestamp (or all events, if there is none), newest-first.
func eventsSinceSnapshot(s *events.Store) (snap events.Record, haveSnap bool, rest []events.Record) {
	snap, haveSnap = findSnapshot(s)
	all := s.Read(0, true)
	if !haveSnap {
		return snap, false, all
	}
	for _, r := range all {
		if r.Timestamp <= snap.Timestamp {
			break
		}
		rest = append(rest, r)
	}
	return snap, true, rest
}

func sessionMatches(r events.Record, session string) bool {
	if session == "" {
		return true
	}
	bc, ok := r.ParsedBreadcrumb()
	if !ok {
		return false
	}
	short := session
	if len(short) > 8 {
		short = short[:8]
	}
	return bc.SessionID == short
}

// CycleNumber returns the cycle carried by the newest of either a
// session_started or a compaction_detected event, default 0.
// compaction_detected must be considered alongside session_started: a
// compaction bumps the cycle (§4.6 step 3) without emitting a fresh
// session_started, so the newest cycle-bearing event of either kind is
// the one cycle_number() must report.
func CycleNumber(s *events.Store) int {
	for _, r := range s.Read(0, true) {
		if r.Event == "session_started" || r.Event == "compaction_detected" {
			var cycle int
			if r.DataField("cycle", &cycle) {
				return cycle
			}
			return 0
		}
	}
	return 0
}

// CompactionCount counts compaction_detected events, optionally scoped to
// a session via the breadcrumb's session prefix.
func CompactionCount(s *events.Store, session string) int {
	n := 0
	for _, r := range s.Read(0, false) {
		if r.Event == "compaction_detected" && sessionMatches(r, session) {
			n++
		}
	}
	return n
}

// DevDrvStats is the result of DevDrvStats.
type DevDrvStats struct {
	Count             int
	TotalDuration      float64
	CurrentPromptUUID string
	FromSnapshot       bool
}

// DevDrvStats pairs dev_drv_started/_ended by prompt_uuid. An unpaired
// started event populates CurrentPromptUUID (the turn in progress).
func DevDrvStats(s *events.Store, session string) DevDrvStats {
	snap, haveSnap, rest := eventsSinceSnapshot(s)
	var out DevDrvStats
	if haveSnap {
		out.FromSnapshot = true
		var count int
		var dur float64
		snap.DataField("dev_drv_count", &count)
		snap.DataField("dev_drv_total_duration", &dur)
		out.Count, out.TotalDuration = count, dur
	}

	starts := map[string]float64{}
	// rest is newest-first; walk oldest-first for pairing clarity.
	for i := len(rest) - 1; i >= 0; i-- {
		r := rest[i]
		if !sessionMatches(r, session) {
			continue
		}
		switch r.Event {
		case "dev_drv_started":
			starts[r.DataString("prompt_uuid")] = r.Timestamp
		case "dev_drv_ended":
			uuid := r.DataString("prompt_uuid")
			if st, ok := starts[uuid]; ok {
				out.Count++
				out.TotalDuration += r.Timestamp - st
				delete(starts, uuid)
			}
		}
	}
	for uuid := range starts {
		out.CurrentPromptUUID = uuid
	}
	return out
}

// DelegDrvStats is the delegation analogue of DevDrvStats, keyed by
// subagent_type + start timestamp; the result keeps the multiset of
// types (no deduplication).
type DelegDrvStats struct {
	Count         int
	TotalDuration float64
	Types         []string
}

func DelegDrvStats(s *events.Store, session string) DelegDrvStats {
	_, _, rest := eventsSinceSnapshot(s)
	var out DelegDrvStats
	type startKey struct {
		subagentType string
		ts           float64
	}
	starts := map[startKey]bool{}
	var order []startKey
	for i := len(rest) - 1; i >= 0; i-- {
		r := rest[i]
		if !sessionMatches(r, session) {
			continue
		}
		if r.Event == "deleg_drv_started" {
			k := startKey{r.DataString("subagent_type"), r.Timestamp}
			starts[k] = true
			order = append(order, k)
		}
	}
	for i := len(rest) - 1; i >= 0; i-- {
		r := rest[i]
		if !sessionMatches(r, session) || r.Event != "deleg_drv_ended" {
			continue
		}
		st := r.DataString("subagent_type")
		for _, k := range order {
			if k.subagentType == st && starts[k] {
				out.Count++
				out.TotalDuration += r.Timestamp - k.ts
				out.Types = append(out.Types, st)
				delete(starts, k)
				break
			}
		}
	}
	return out
}

// Delegation is one entry in DelegationsThisDrive's result.
type Delegation struct {
	SubagentType string
	Timestamp    float64
}

// DelegationsThisDrive forward-scans, resetting the list on each new
// dev_drv_started.
func DelegationsThisDrive(s *events.Store, session string) []Delegation {
	var current []Delegation
	for _, r := range s.Read(0, false) {
		if !sessionMatches(r, session) {
			continue
		}
		switch r.Event {
		case "dev_drv_started":
			current = nil
		case "delegation_started":
			current = append(current, Delegation{
				SubagentType: r.DataString("subagent_type"),
				Timestamp:    r.Timestamp,
			})
		}
	}
	return current
}

// ActiveTasksFromEvents reverse-scans with first-event-wins dedup per
// task_id, early-exiting on compaction_detected. A task is active iff
// its latest (= first seen in reverse) lifecycle event is task_started.
func ActiveTasksFromEvents(s *events.Store) map[string]string {
	out := map[string]string{}
	seen := map[string]bool{}
	for _, r := range s.Read(0, true) {
		if r.Event == "compaction_detected" {
			break
		}
		switch r.Event {
		case "task_started", "task_completed", "task_paused":
			id := r.DataString("task_id")
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if r.Event == "task_started" {
				out[id] = r.DataString("task_type")
			}
		}
	}
	return out
}

// ExpectedPoliciesForActiveTasks maps active task types to policy names
// via manifest.TaskTypePolicies (a map[task_type][]policy_name passed in
// by the caller, since projections does not import manifest directly to
// avoid a cycle — callers compose the two).
func ExpectedPoliciesForActiveTasks(active map[string]string, taskTypePolicies map[string][]string) map[string]bool {
	out := map[string]bool{}
	for _, taskType := range active {
		for _, p := range taskTypePolicies[taskType] {
			out[p] = true
		}
	}
	return out
}

// AutoModeSourcePriority ranks auto_mode_detected sources: env_var(3) >
// config(2) > session(1) > default(0).
func AutoModeSourcePriority(source string) int {
	switch source {
	case "env_var":
		return 3
	case "config":
		return 2
	case "session":
		return 1
	default:
		return 0
	}
}

// AutoModeResult is the result of AutoMode.
type AutoModeResult struct {
	Enabled    bool
	Source     string
	Confidence float64
}

// AutoMode returns the most recent auto_mode_detected, tie-broken by
// source priority among events sharing the same timestamp.
func AutoMode(s *events.Store, session string) AutoModeResult {
	var best events.Record
	haveBest := false
	for _, r := range s.Read(0, false) {
		if r.Event != "auto_mode_detected" || !sessionMatches(r, session) {
			continue
		}
		if !haveBest {
			best, haveBest = r, true
			continue
		}
		if r.Timestamp > best.Timestamp {
			best = r
		} else if r.Timestamp == best.Timestamp &&
			AutoModeSourcePriority(r.DataString("source")) > AutoModeSourcePriority(best.DataString("source")) {
			best = r
		}
	}
	if !haveBest {
		return AutoModeResult{Enabled: false, Source: "default", Confidence: 0}
	}
	var enabled bool
	var confidence float64
	best.DataField("enabled", &enabled)
	best.DataField("confidence", &confidence)
	return AutoModeResult{Enabled: enabled, Source: best.DataString("source"), Confidence: confidence}
}

// LastSessionIDFromEvents returns the newest migration_detected.data.previous_session.
func LastSessionIDFromEvents(s *events.Store) string {
	for _, r := range s.Read(0, true) {
		if r.Event == "migration_detected" {
			return r.DataString("previous_session")
		}
	}
	return ""
}

// LastSessionEndTime returns the newest session_ended.data.timestamp.
func LastSessionEndTime(s *events.Store) float64 {
	for _, r := range s.Read(0, true) {
		if r.Event == "session_ended" {
			var ts float64
			r.DataField("timestamp", &ts)
			return ts
		}
	}
	return 0
}

// GetCurrentSessionIDFromEvents is the new primitive called for by
// spec.md §9 Open Question 3: the most-recent session_started.data.session_id.
func GetCurrentSessionIDFromEvents(s *events.Store) string {
	for _, r := range s.Read(0, true) {
		if r.Event == "session_started" {
			return r.DataString("session_id")
		}
	}
	return ""
}
