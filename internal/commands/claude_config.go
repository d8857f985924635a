package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
)

// NewClaudeConfigCmd inspects and bootstraps Claude Code's own
// ~/.claude/settings.json, as distinct from macf's config.yaml
// (config) and the hook wiring inside settings.json (hooks
// install/uninstall).
func NewClaudeConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claude-config",
		Short: "Inspect or initialize Claude Code's settings.json",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newClaudeConfigInitCmd())
	cmd.AddCommand(newClaudeConfigShowCmd())
	namespaceIndex(cmd)
	return cmd
}

func newClaudeConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create ~/.claude/settings.json with an empty hooks object if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return cmdErr(err)
			}
			path := claudeSettingsPathFor(home, false)
			settings, err := readJSONSettings(path)
			if err != nil {
				return cmdErr(err)
			}
			if _, ok := settings["hooks"]; !ok {
				settings["hooks"] = map[string]any{}
			}
			if err := writeJSONSettings(path, settings); err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]string{"path": path})
		},
	}
}

func newClaudeConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print Claude Code's settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return cmdErr(err)
			}
			path := claudeSettingsPathFor(home, false)
			settings, err := readJSONSettings(path)
			if err != nil {
				return cmdErr(err)
			}
			b, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]string{"path": path, "contents": string(b)})
		},
	}
}
