package hooks

import "encoding/json"

// maxRecordedResponseBytes caps how much of a tool's stdout/response
// gets written into the event log, per §4.2's stdout-size sanitization.
const maxRecordedResponseBytes = 4096

type taskToolInputPost struct {
	SubagentType string `json:"subagent_type"`
}

// PostToolUse closes out delegation timing when the finishing tool was
// a Task call, and always records a sanitized, size-capped summary of
// the tool's response.
func PostToolUse(c *Context, in Input) Output {
	if in.ToolName == "Task" {
		var ti taskToolInputPost
		if json.Unmarshal(in.ToolInput, &ti) == nil && ti.SubagentType != "" {
			c.Events.Append("deleg_drv_ended", map[string]any{
				"subagent_type": ti.SubagentType,
			}, in)
		}
	}

	c.Events.Append("tool_call_completed", map[string]any{
		"tool_name": in.ToolName,
		"response":  sanitizeResponse(in.ToolResponse),
	}, nil)

	return ContinueOutput()
}

// sanitizeResponse truncates raw to maxRecordedResponseBytes so a
// runaway tool response never bloats the event log.
func sanitizeResponse(raw json.RawMessage) string {
	s := string(raw)
	if len(s) <= maxRecordedResponseBytes {
		return s
	}
	return s[:maxRecordedResponseBytes] + "...<truncated>"
}
