package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/tasks"
)

// NewTaskCmd exposes direct CRUD over the file-based task store (C4
// §3.4), below the todos verb group's higher-level pagination/auth view.
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and edit individual tasks",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskGetCmd())
	cmd.AddCommand(newTaskTreeCmd())
	cmd.AddCommand(newTaskEditCmd())
	cmd.AddCommand(newTaskEditMTMDCmd())
	cmd.AddCommand(newTaskAddMTMDCmd())
	namespaceIndex(cmd)
	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task in the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			all, err := cc.Tasks.ReadAll(cc.Session)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(all)
		},
	}
}

func newTaskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print one task by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			t, err := cc.Tasks.Read(cc.Session, args[0])
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(t)
		},
	}
}

func newTaskTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree ID",
		Short: "Print a task and every task it (transitively) blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			all, err := cc.Tasks.ReadAll(cc.Session)
			if err != nil {
				return cmdErr(err)
			}
			byID := map[string]tasks.Task{}
			for _, t := range all {
				byID[t.ID] = t
			}
			root, ok := byID[args[0]]
			if !ok {
				return cmdErr(fmt.Errorf("task tree: no task %q", args[0]))
			}
			return output.PrintSuccess(buildTaskTree(root, byID, map[string]bool{}))
		},
	}
}

// taskTreeNode is one level of the task/blocks tree returned by `task
// tree`: each task followed by the tasks it blocks, recursively.
type taskTreeNode struct {
	Task     tasks.Task     `json:"task"`
	Children []taskTreeNode `json:"children,omitempty"`
}

func buildTaskTree(t tasks.Task, byID map[string]tasks.Task, visiting map[string]bool) taskTreeNode {
	node := taskTreeNode{Task: t}
	if visiting[t.ID] {
		return node // cycle guard
	}
	visiting[t.ID] = true
	for _, childID := range t.Blocks {
		if child, ok := byID[childID]; ok {
			node.Children = append(node.Children, buildTaskTree(child, byID, visiting))
		}
	}
	return node
}

func newTaskEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit ID FIELD VALUE",
		Short: "Edit one top-level field (subject, status, activeForm, description) on a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			id, field, value := args[0], args[1], args[2]
			switch field {
			case "subject", "status", "activeForm", "description":
			default:
				return cmdErr(fmt.Errorf("task edit: unknown field %q (want subject, status, activeForm, or description)", field))
			}
			t, err := cc.Tasks.Update(cc.Session, id, func(t *tasks.Task) {
				switch field {
				case "subject":
					t.Subject = value
				case "status":
					t.Status = tasks.Status(value)
				case "activeForm":
					t.ActiveForm = value
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

func newTaskEditMTMDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit-mtmd ID FIELD VALUE",
		Short: "Edit one Metadata field (repo, target_version, parent_id, plan_ca_ref, task_type) on a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			id, field, value := args[0], args[1], args[2]
			t, err := cc.Tasks.Update(cc.Session, id, func(t *tasks.Task) {
				if t.Metadata == nil {
					t.Metadata = &tasks.Metadata{}
				}
				switch field {
				case "repo":
					t.Metadata.Repo = value
				case "target_version":
					t.Metadata.TargetVersion = value
				case "parent_id":
					t.Metadata.ParentID = value
				case "plan_ca_ref":
					t.Metadata.PlanCARef = value
				case "task_type":
					t.Metadata.TaskType = tasks.Type(value)
				}
			})
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(t)
		},
	}
}

func newTaskAddMTMDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-mtmd ID KEY VALUE",
		Short: "Set one entry in a task's Metadata.Custom map",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			id, key, value := args[0], args[1], args[2]
			t, err := cc.Tasks.Update(cc.Session, id, func(t *tasks.Task) {
				if t.Metadata == nil {
					t.Metadata = &tasks.Metadata{}
				}
				if t.Metadata.Custom == nil {
					t.Metadata.Custom = map[string]any{}
				}
				t.Metadata.Custom[key] = value
			})
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(t)
		},
	}
}
