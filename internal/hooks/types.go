// Package hooks implements the ten fixed hook lifecycle runners (C5):
// pure functions from stdin JSON to output JSON that observe the host
// agent's turn, record events, and emit context-recovery payloads. No
// runner may ever let an error propagate to the host — see Run.
package hooks

import "encoding/json"

// Input is the stdin payload every hook receives, discriminated by
// HookEventName/Source rather than treated as a loose dict, per the
// design note calling for schema types over dicts. Unknown fields are
// tolerated — readers must accept arbitrary upstream shapes (§6).
type Input struct {
	HookEventName string          `json:"hook_event_name"`
	Source        string          `json:"source,omitempty"` // "compact" | "resume" | ""
	SessionID     string          `json:"session_id"`
	CWD           string          `json:"cwd,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse  json.RawMessage `json:"tool_response,omitempty"`
	SubagentType  string          `json:"subagent_type,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// SpecificOutput carries the optional additionalContext injected into
// the agent's context, wrapped in a <system-reminder> tag by the
// runner before being placed here.
type SpecificOutput struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Output is what every runner returns. Continue is always true except
// when the pre_tool_use runner blocks a policy-violating tool call or
// the permission_request runner finds no matching grant.
type Output struct {
	Continue           bool            `json:"continue"`
	SystemMessage      string          `json:"systemMessage,omitempty"`
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// WithContext wraps text in the <system-reminder> tag the host agent
// recognizes as injected context, and attaches it to o.
func (o Output) WithContext(text string) Output {
	if text == "" {
		return o
	}
	o.HookSpecificOutput = &SpecificOutput{
		AdditionalContext: "<system-reminder>\n" + text + "\n</system-reminder>",
	}
	return o
}

// ContinueOutput is the default non-blocking result.
func ContinueOutput() Output { return Output{Continue: true} }
