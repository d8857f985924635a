package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/events"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/tasks"
)

const todosPageSize = 20

// NewTodosCmd is the paginated, status-filtered view of the task store
// that the host agent's todo list surfaces, plus the grant-gated
// auth-* escape hatch (§3.4) for operations the Sentinel/DirectoryGuard
// protection would otherwise refuse.
func NewTodosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "Paginated todo view and grant-gated edits",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newTodosListCmd())
	cmd.AddCommand(newTodosStatusCmd())
	cmd.AddCommand(newTodosAuthCollapseCmd())
	cmd.AddCommand(newTodosAuthRestoreCmd())
	cmd.AddCommand(newTodosAuthItemEditCmd())
	cmd.AddCommand(newTodosAuthStatusCmd())
	namespaceIndex(cmd)
	return cmd
}

func filterTodos(all []tasks.Task, filter string) []tasks.Task {
	var out []tasks.Task
	for _, t := range all {
		if t.IsSentinel() {
			continue
		}
		switch filter {
		case "active":
			if t.Status == tasks.StatusCompleted || t.Status == tasks.StatusArchived {
				continue
			}
		case "completed":
			if t.Status != tasks.StatusCompleted {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func newTodosListCmd() *cobra.Command {
	var page int
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos, one page of 20 at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			switch filter {
			case "all", "active", "completed":
			default:
				return cmdErr(fmt.Errorf("todos list: -f must be all, active, or completed"))
			}
			all, err := cc.Tasks.ReadAll(cc.Session)
			if err != nil {
				return cmdErr(err)
			}
			matched := filterTodos(all, filter)

			if page < 1 {
				page = 1
			}
			start := (page - 1) * todosPageSize
			if start > len(matched) {
				start = len(matched)
			}
			end := start + todosPageSize
			if end > len(matched) {
				end = len(matched)
			}
			return output.PrintSuccess(map[string]any{
				"page":        page,
				"page_size":   todosPageSize,
				"total":       len(matched),
				"todos":       matched[start:end],
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "1-indexed page number")
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "all, active, or completed")
	return cmd
}

func newTodosStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print active/completed/total todo counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			all, err := cc.Tasks.ReadAll(cc.Session)
			if err != nil {
				return cmdErr(err)
			}
			active := filterTodos(all, "active")
			completed := filterTodos(all, "completed")
			return output.PrintSuccess(map[string]int{
				"active":    len(active),
				"completed": len(completed),
				"total":     len(active) + len(completed),
			})
		},
	}
}

// requireGrant is the read-and-consume half of the escape hatch: it
// returns an error when no matching task_grant_{op} event is outstanding.
func requireGrant(cc *commandContext, op string, ids []string) error {
	if !tasks.CheckGrantInEvents(cc.Events, op, ids) {
		return fmt.Errorf("todos auth-%s: no outstanding task_grant_%s for %v; the host agent must emit one first", op, op, ids)
	}
	return nil
}

func newTodosAuthCollapseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-collapse ID...",
		Short: "Archive (cascading) the given tasks, consuming a prior task_grant_collapse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if err := requireGrant(cc, "collapse", args); err != nil {
				return cmdErr(err)
			}
			for _, id := range args {
				if err := cc.Tasks.Archive(cc.Session, id, true); err != nil {
					return cmdErr(err)
				}
			}
			return output.PrintSuccess(map[string][]string{"archived": args})
		},
	}
}

func newTodosAuthRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-restore ID...",
		Short: "Restore the given archived tasks, consuming a prior task_grant_restore",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if err := requireGrant(cc, "restore", args); err != nil {
				return cmdErr(err)
			}
			var restored []tasks.Task
			for _, id := range args {
				t, err := cc.Tasks.Restore(cc.Session, id)
				if err != nil {
					return cmdErr(err)
				}
				restored = append(restored, t)
			}
			return output.PrintSuccess(restored)
		},
	}
}

func newTodosAuthItemEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-item-edit ID FIELD VALUE",
		Short: "Edit a protected task field, consuming a prior task_grant_item-edit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			id, field, value := args[0], args[1], args[2]
			if err := requireGrant(cc, "item-edit", []string{id}); err != nil {
				return cmdErr(err)
			}
			t, err := cc.Tasks.Update(cc.Session, id, func(t *tasks.Task) {
				switch field {
				case "subject":
					t.Subject = value
				case "status":
					t.Status = tasks.Status(value)
				case "description":
					t.Description = value
				}
			})
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(t)
		},
	}
}

// peekGrant mirrors tasks.CheckGrantInEvents' matching rules but never
// consumes the grant — auth-status is a read-only probe.
func peekGrant(s *events.Store, op string, ids []string) bool {
	cp := append([]string(nil), ids...)
	sort.Strings(cp)
	want := strings.Join(cp, ",")
	grantEvent := "task_grant_" + op
	clearedEvent := grantEvent + "_cleared"

	for _, r := range s.Read(0, true) {
		switch r.Event {
		case clearedEvent:
			var clearedIDs []string
			r.DataField("task_ids", &clearedIDs)
			ccp := append([]string(nil), clearedIDs...)
			sort.Strings(ccp)
			if strings.Join(ccp, ",") == want {
				return false
			}
		case grantEvent:
			var grantIDs []string
			r.DataField("task_ids", &grantIDs)
			gcp := append([]string(nil), grantIDs...)
			sort.Strings(gcp)
			if strings.Join(gcp, ",") == want {
				return true
			}
		}
	}
	return false
}

func newTodosAuthStatusCmd() *cobra.Command {
	var op string
	cmd := &cobra.Command{
		Use:   "auth-status ID...",
		Short: "Report whether an outstanding grant exists for --op and the given ids, without consuming it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			sorted := append([]string(nil), args...)
			sort.Strings(sorted)
			return output.PrintSuccess(map[string]any{
				"op":      op,
				"ids":     sorted,
				"granted": peekGrant(cc.Events, op, args),
			})
		},
	}
	cmd.Flags().StringVar(&op, "op", "item-edit", "collapse, restore, or item-edit")
	return cmd
}
