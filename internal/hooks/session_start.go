package hooks

import (
	"path/filepath"

	"github.com/cversek/macf/internal/projections"
	"github.com/cversek/macf/internal/recovery"
	"github.com/cversek/macf/internal/tasks"
)

// artifactsDir is where checkpoint/reflection/roadmap documents live,
// relative to the project root.
const artifactsDir = ".macf/consciousness"

// SessionStart implements the §4.6 decision tree: compact and resume
// sources take dedicated branches; for anything else a session-id change
// is treated as a migration, and absent that the host transcript tail is
// scanned for a compact_boundary marker.
func SessionStart(c *Context, in Input) Output {
	c.Events.SessionID = in.SessionID

	switch in.Source {
	case "compact":
		return runCompactionRecovery(c, in)
	case "resume":
		c.Events.Append("resume_detected", map[string]any{"session_id": in.SessionID}, in)
		return plainTemporalContext(c, in)
	}

	prev := projections.GetCurrentSessionIDFromEvents(c.Events)
	if prev != "" && prev != in.SessionID {
		c.Events.Append("migration_detected", map[string]any{
			"previous_session": prev,
			"new_session":      in.SessionID,
		}, in)
		return migrationContext(c, in, prev)
	}

	if DetectCompactBoundary(c, in.SessionID) {
		return runCompactionRecovery(c, in)
	}
	return plainTemporalContext(c, in)
}

// runCompactionRecovery is the 6-step procedure (§4.6):
//  1. snapshot current counters before anything else moves
//  2. record that a compaction happened
//  3. resolve auto mode
//  4. gather the latest consciousness artifacts
//  5. gather active tasks as recovery todos
//  6. build and emit the mode-appropriate recovery message
func runCompactionRecovery(c *Context, in Input) Output {
	oldCycle := projections.CycleNumber(c.Events)
	newCycle := oldCycle + 1
	dev := projections.DevDrvStats(c.Events, in.SessionID)

	// state_snapshot preserves the pre-boundary accumulators, so it is
	// stamped with the cycle as it stood before this compaction.
	c.Events.Append("state_snapshot", map[string]any{
		"cycle":                  oldCycle,
		"dev_drv_count":          dev.Count,
		"dev_drv_total_duration": dev.TotalDuration,
	}, nil)

	compactionCount := projections.CompactionCount(c.Events, in.SessionID) + 1
	c.Events.Append("compaction_detected", map[string]any{
		"session_id": in.SessionID,
		"cycle":      newCycle,
	}, in)

	auto := projections.AutoMode(c.Events, in.SessionID)
	c.Events.Append("auto_mode_detected", map[string]any{
		"enabled":    auto.Enabled,
		"source":     auto.Source,
		"confidence": auto.Confidence,
	}, nil)

	artifacts := filepath.Join(c.Env.ProjectRoot, artifactsDir)
	checkpoint := latestArtifactByMtime(filepath.Join(artifacts, "checkpoints"), ".md")
	reflection := latestArtifactByMtime(filepath.Join(artifacts, "reflections"), ".md")
	roadmap := latestArtifactByMtime(filepath.Join(artifacts, "roadmaps"), ".md")

	todos := activeTaskTodos(c, in.SessionID)
	for _, t := range todos {
		c.Events.Append("policy_injection_activated", map[string]any{
			"task_id": t.Text,
		}, nil)
	}

	mode := recovery.ModeManual
	if auto.Enabled {
		mode = recovery.ModeAuto
	}

	text := recovery.Build(mode, recovery.Context{
		Cycle:           newCycle,
		PreviousCycle:   oldCycle,
		SessionID:       in.SessionID,
		CompactionCount: compactionCount,
		Todos:           todos,
		CheckpointPath:  checkpoint,
		ReflectionPath:  reflection,
		RoadmapPath:     roadmap,
	})

	return ContinueOutput().WithContext(text)
}

func activeTaskTodos(c *Context, session string) []recovery.TodoItem {
	all, err := c.Tasks.ReadAll(session)
	if err != nil {
		return nil
	}
	var out []recovery.TodoItem
	for _, t := range all {
		if t.IsSentinel() || t.Status == tasks.StatusCompleted || t.Status == tasks.StatusArchived {
			continue
		}
		status := "pending"
		if t.Status == tasks.StatusInProgress {
			status = "in_progress"
		}
		out = append(out, recovery.TodoItem{Text: t.Subject, Status: status})
	}
	return out
}

func plainTemporalContext(c *Context, in Input) Output {
	cycle := projections.CycleNumber(c.Events)
	c.Events.Append("session_started", map[string]any{
		"session_id": in.SessionID,
		"cycle":      cycle,
	}, in)
	return ContinueOutput()
}

func migrationContext(c *Context, in Input, previous string) Output {
	text := recovery.Build(recovery.ModeManual, recovery.Context{
		Cycle:         projections.CycleNumber(c.Events),
		PreviousCycle: projections.CycleNumber(c.Events),
		SessionID:     in.SessionID,
	})
	_ = previous
	c.Events.Append("session_started", map[string]any{
		"session_id": in.SessionID,
	}, in)
	return ContinueOutput().WithContext(text)
}
