package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
)

// NewTimeCmd reports the current wall-clock time in the timezone the
// rest of macf's human-facing text (recovery messages, statuslines)
// should render against.
func NewTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Show current time in the configured timezone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}

			now := time.Now()
			loc := time.Local
			tzName := cc.Env.Timezone
			if tzName != "" {
				if l, err := time.LoadLocation(tzName); err == nil {
					loc = l
				}
			}
			now = now.In(loc)

			type resp struct {
				Unix      int64  `json:"unix"`
				ISO8601   string `json:"iso8601"`
				Timezone  string `json:"timezone"`
				DayOfWeek string `json:"day_of_week"`
			}
			return output.PrintSuccess(resp{
				Unix:      now.Unix(),
				ISO8601:   now.Format(time.RFC3339),
				Timezone:  loc.String(),
				DayOfWeek: now.Weekday().String(),
			})
		},
	}
}
