package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/projections"
)

// NewModeCmd reads and overrides AUTO_MODE/MANUAL_MODE (§3.7, §4.8):
// get resolves the most recent auto_mode_detected per session-scoped
// tie-break rules; set appends a new one with source "session".
func NewModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Get or set the agent's AUTO_MODE/MANUAL_MODE",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newModeGetCmd())
	cmd.AddCommand(newModeSetCmd())
	namespaceIndex(cmd)
	return cmd
}

func newModeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the resolved mode for the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			result := projections.AutoMode(cc.Events, cc.Session)
			if cc.Env.AutoModeOverride != nil {
				result = projections.AutoModeResult{Enabled: *cc.Env.AutoModeOverride, Source: "env_var", Confidence: 1}
			}
			return output.PrintSuccess(result)
		},
	}
}

func newModeSetCmd() *cobra.Command {
	var authToken string
	cmd := &cobra.Command{
		Use:   "set {AUTO_MODE|MANUAL_MODE}",
		Short: "Record a mode override for the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			var enabled bool
			switch strings.ToUpper(args[0]) {
			case "AUTO_MODE":
				enabled = true
			case "MANUAL_MODE":
				enabled = false
			default:
				return cmdErr(fmt.Errorf("mode set: argument must be AUTO_MODE or MANUAL_MODE, got %q", args[0]))
			}

			data := map[string]any{
				"session_id": cc.Session,
				"enabled":    enabled,
				"source":     "session",
				"confidence": 1.0,
			}
			if authToken != "" {
				data["auth_token"] = authToken
			}
			if !cc.Events.Append("auto_mode_detected", data, nil) {
				return cmdErr(fmt.Errorf("mode set: failed to append auto_mode_detected"))
			}
			return output.PrintSuccess(map[string]any{"enabled": enabled, "source": "session"})
		},
	}
	cmd.Flags().StringVar(&authToken, "auth-token", "", "authorization token recorded alongside the override")
	return cmd
}
