package commands

import (
	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/hooks"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/projections"
)

// NewBudgetCmd reports drive timing against the hook runner's nominal
// per-invocation time budget (§5) — a quick operator check of how much
// headroom the current session's hooks have been running with.
func NewBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show drive timing stats against the hook runner time budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}

			dev := projections.DevDrvStats(cc.Events, cc.Session)
			deleg := projections.DelegDrvStats(cc.Events, cc.Session)

			type resp struct {
				NominalBudgetMs    int64   `json:"nominal_budget_ms"`
				DevDrvCount        int     `json:"dev_drv_count"`
				DevDrvTotalSeconds float64 `json:"dev_drv_total_seconds"`
				DevDrvInProgress   string  `json:"dev_drv_in_progress_prompt,omitempty"`
				DelegDrvCount      int     `json:"deleg_drv_count"`
				DelegDrvTotal      float64 `json:"deleg_drv_total_seconds"`
			}
			return output.PrintSuccess(resp{
				NominalBudgetMs:    hooks.Budget.Milliseconds(),
				DevDrvCount:        dev.Count,
				DevDrvTotalSeconds: dev.TotalDuration,
				DevDrvInProgress:   dev.CurrentPromptUUID,
				DelegDrvCount:      deleg.Count,
				DelegDrvTotal:      deleg.TotalDuration,
			})
		},
	}
}
