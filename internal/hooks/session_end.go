package hooks

import "time"

// SessionEnd records the session boundary so the next session_start can
// detect a migration (a new session id with a different previous one).
func SessionEnd(c *Context, in Input) Output {
	c.Events.Append("session_ended", map[string]any{
		"session_id": in.SessionID,
		"reason":     in.Reason,
		"timestamp":  float64(time.Now().UnixNano()) / 1e9,
	}, in)
	return ContinueOutput()
}
