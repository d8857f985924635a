package hooks

import "github.com/cversek/macf/internal/projections"

// PreCompact fires immediately before the host summarizes the
// conversation. It snapshots current counters so the compact-sourced
// session_start that follows has a cheap, recent baseline to seed from
// instead of replaying the whole log.
func PreCompact(c *Context, in Input) Output {
	cycle := projections.CycleNumber(c.Events)
	dev := projections.DevDrvStats(c.Events, in.SessionID)

	c.Events.Append("state_snapshot", map[string]any{
		"cycle":                  cycle,
		"dev_drv_count":          dev.Count,
		"dev_drv_total_duration": dev.TotalDuration,
		"reason":                 in.Reason,
	}, in)
	return ContinueOutput()
}
