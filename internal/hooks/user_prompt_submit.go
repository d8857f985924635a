package hooks

// UserPromptSubmit records the prompt boundary and, when the prompt is
// long enough to be worth searching on (§4.8's 10-char floor), asks the
// warm search daemon for a policy injection to prepend.
func UserPromptSubmit(c *Context, in Input) Output {
	promptID := LastUserPromptUUID(c, in.SessionID)
	c.Events.PromptID = promptID

	c.Events.Append("dev_drv_started", map[string]any{
		"prompt_uuid": promptID,
	}, in)

	injection := c.Search.GetPolicyInjection(in.Prompt)
	if injection == "" {
		return ContinueOutput()
	}
	return ContinueOutput().WithContext("Relevant policies: " + injection)
}
