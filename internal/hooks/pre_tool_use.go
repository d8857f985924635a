package hooks

import (
	"encoding/json"
	"strings"
)

type bashToolInput struct {
	Command string `json:"command"`
}

type taskToolInput struct {
	SubagentType string `json:"subagent_type"`
}

// PreToolUse detects delegation (a Task tool invocation) and blocks a
// bare `cd` command, which would silently change the shell's working
// directory out from under every later Bash call in the turn (§4.2's
// bare-cd invariant).
func PreToolUse(c *Context, in Input) Output {
	c.Events.Append("tool_call_started", map[string]any{
		"tool_name": in.ToolName,
	}, in)

	if in.ToolName == "Task" {
		var ti taskToolInput
		if json.Unmarshal(in.ToolInput, &ti) == nil && ti.SubagentType != "" {
			c.Events.Append("delegation_started", map[string]any{
				"subagent_type": ti.SubagentType,
			}, in)
			c.Events.Append("deleg_drv_started", map[string]any{
				"subagent_type": ti.SubagentType,
			}, in)
		}
	}

	if in.ToolName == "Bash" {
		var bi bashToolInput
		if json.Unmarshal(in.ToolInput, &bi) == nil && isBareCd(bi.Command) {
			return Output{
				Continue:      false,
				SystemMessage: "macf: bare `cd` is blocked — it changes the shell's working directory for every later command in this turn. Use `cd DIR && CMD` or an absolute path instead.",
			}
		}
	}

	return ContinueOutput()
}

// isBareCd reports whether command is (after trimming) a lone `cd ...`
// with no chained command: any "&&", ";", "|" or newline makes it not bare.
func isBareCd(command string) bool {
	cmd := strings.TrimSpace(command)
	if !strings.HasPrefix(cmd, "cd ") && cmd != "cd" {
		return false
	}
	for _, sep := range []string{"&&", ";", "|", "\n"} {
		if strings.Contains(cmd, sep) {
			return false
		}
	}
	return true
}
