package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/projections"
)

// NewStatuslineCmd implements the out-of-scope "thin skin" statusline:
// `generate` prints the one-line text Claude Code's statusLine feature
// renders verbatim; `install` points that feature at this binary.
func NewStatuslineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statusline",
		Short: "Generate or install the terminal statusline",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newStatuslineGenerateCmd())
	cmd.AddCommand(newStatuslineInstallCmd())
	namespaceIndex(cmd)
	return cmd
}

func newStatuslineGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print the current one-line statusline text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}

			cycle := projections.CycleNumber(cc.Events)
			auto := projections.AutoMode(cc.Events, cc.Session)
			active := 0
			if all, err := cc.Tasks.ReadAll(cc.Session); err == nil {
				for _, t := range all {
					if !t.IsSentinel() && t.Status != "completed" && t.Status != "archived" {
						active++
					}
				}
			}

			modeLabel := "MANUAL"
			if auto.Enabled {
				modeLabel = "AUTO"
			}
			line := fmt.Sprintf("macf c%d [%s] tasks:%d agent:%s", cycle, modeLabel, active, cc.Agent)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), line)
			return err
		},
	}
}

func newStatuslineInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Point Claude Code's statusLine setting at this binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return cmdErr(err)
			}
			settingsPath := filepath.Join(home, ".claude", "settings.json")

			settings := map[string]any{}
			if b, err := os.ReadFile(settingsPath); err == nil {
				_ = json.Unmarshal(b, &settings)
			}

			exe, err := os.Executable()
			if err != nil || exe == "" {
				exe = "macf"
			}
			settings["statusLine"] = map[string]any{
				"type":    "command",
				"command": fmt.Sprintf("%q statusline generate", exe),
			}

			b, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return cmdErr(err)
			}
			if err := os.MkdirAll(filepath.Dir(settingsPath), 0o750); err != nil {
				return cmdErr(err)
			}
			if err := os.WriteFile(settingsPath, append(b, '\n'), 0o600); err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]string{"installed_to": settingsPath})
		},
	}
}
