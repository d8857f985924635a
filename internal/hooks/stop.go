package hooks

// Stop closes out the turn's dev_drv span started by UserPromptSubmit.
func Stop(c *Context, in Input) Output {
	promptID := c.Events.PromptID
	if promptID == "" {
		promptID = LastUserPromptUUID(c, in.SessionID)
	}
	c.Events.Append("dev_drv_ended", map[string]any{
		"prompt_uuid": promptID,
	}, in)
	return ContinueOutput()
}

// SubagentStop closes out a delegation span the same way Stop closes a
// top-level turn; the subagent's own subagent_type is carried on the
// input by the host, mirroring the matching PreToolUse/PostToolUse pair.
func SubagentStop(c *Context, in Input) Output {
	c.Events.Append("delegation_ended", map[string]any{
		"subagent_type": in.SubagentType,
	}, in)
	return ContinueOutput()
}
