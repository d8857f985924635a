package commands

import (
	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/breadcrumb"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/projections"
)

// NewBreadcrumbCmd mints and prints the current breadcrumb (§3.1), the
// composite address token the rest of macf stamps onto every event.
func NewBreadcrumbCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "breadcrumb",
		Short: "Mint and print the current breadcrumb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}

			minter := breadcrumb.NewMinter()
			bc := minter.Mint(cc.Session, "", func() int { return projections.CycleNumber(cc.Events) })

			if asJSON {
				type resp struct {
					Cycle     int    `json:"cycle"`
					SessionID string `json:"session_id"`
					PromptID  string `json:"prompt_id"`
					Timestamp int64  `json:"timestamp"`
					GitHash   string `json:"git_hash,omitempty"`
					String    string `json:"string"`
				}
				return output.PrintSuccess(resp{
					Cycle: bc.Cycle, SessionID: bc.SessionID, PromptID: bc.PromptID,
					Timestamp: bc.Timestamp, GitHash: bc.GitHash, String: bc.String(),
				})
			}
			return output.PrintSuccess(bc.String())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the breadcrumb's parsed fields instead of its string form")
	return cmd
}
