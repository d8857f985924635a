package hooks

// Notification records host-originated notifications (idle nudges,
// permission-prompt reminders) verbatim; it never blocks or injects
// context, it only preserves the message in the log for later review.
func Notification(c *Context, in Input) Output {
	c.Events.Append("notification_received", map[string]any{
		"message": in.Message,
	}, in)
	return ContinueOutput()
}
