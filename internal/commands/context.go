package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/hooks"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/projections"
	"github.com/cversek/macf/internal/recovery"
	"github.com/cversek/macf/internal/tasks"
)

// NewContextCmd renders the recovery-context text block C6 would build
// right now, read-only — no events are appended. Useful for previewing
// what session-start would inject without actually simulating a hook
// invocation (see `macf hooks test`, which does mutate the log).
func NewContextCmd() *cobra.Command {
	var manual bool
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Preview the current recovery-context text block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}

			cycle := projections.CycleNumber(cc.Events)
			auto := projections.AutoMode(cc.Events, cc.Session)
			mode := recovery.ModeManual
			if auto.Enabled && !manual {
				mode = recovery.ModeAuto
			}

			artifacts := filepath.Join(cc.Env.ProjectRoot, ".macf", "consciousness")

			text := recovery.Build(mode, recovery.Context{
				Cycle:           cycle,
				PreviousCycle:   cycle - 1,
				SessionID:       cc.Session,
				CompactionCount: projections.CompactionCount(cc.Events, cc.Session),
				Todos:           previewTodos(cc),
				CheckpointPath:  latestArtifact(filepath.Join(artifacts, "checkpoints")),
				ReflectionPath:  latestArtifact(filepath.Join(artifacts, "reflections")),
				RoadmapPath:     latestArtifact(filepath.Join(artifacts, "roadmaps")),
			})

			type resp struct {
				Mode string `json:"mode"`
				Text string `json:"text"`
			}
			return output.PrintSuccess(resp{Mode: string(mode), Text: text})
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "force MANUAL-mode rendering regardless of detected auto-mode")
	return cmd
}

func previewTodos(cc *commandContext) []recovery.TodoItem {
	all, err := cc.Tasks.ReadAll(cc.Session)
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

// latestArtifact finds the most recently modified .md file directly
// under dir, reusing the same discovery logic the session-start hook
// runner uses so the preview matches what a live compaction would show.
func latestArtifact(dir string) string {
	return hooks.LatestArtifactByMtime(dir)
}
