package hooks

import (
	"encoding/json"
	"strings"

	"github.com/cversek/macf/internal/tasks"
)

// PermissionRequest guards direct filesystem mutation of the protected
// task store (§3.4): a Bash command whose arguments fall under
// {tasks_root} is only allowed through when a matching task_grant_write
// event exists for the task ids it names; otherwise it is blocked so the
// host falls back to its normal interactive permission prompt.
func PermissionRequest(c *Context, in Input) Output {
	if in.ToolName != "Bash" {
		return ContinueOutput()
	}
	var bi bashToolInput
	if json.Unmarshal(in.ToolInput, &bi) != nil {
		return ContinueOutput()
	}
	root := c.Env.TasksRoot()
	if !strings.Contains(bi.Command, root) {
		return ContinueOutput()
	}

	ids := extractTaskIDs(bi.Command)
	if tasks.CheckGrantInEvents(c.Events, "write", ids) {
		return ContinueOutput()
	}
	return Output{
		Continue:      false,
		SystemMessage: "macf: direct mutation of the task store requires a matching task_grant_write event first",
	}
}

// extractTaskIDs pulls 3-digit task ids referenced in a command string
// (e.g. ".../007.json"), for matching against a grant's task_ids set.
func extractTaskIDs(command string) []string {
	var out []string
	fields := strings.FieldsFunc(command, func(r rune) bool {
		return r == '/' || r == ' ' || r == '\t'
	})
	for _, f := range fields {
		f = strings.TrimSuffix(f, ".json")
		if len(f) == 3 && isDigits(f) {
			out = append(out, f)
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
