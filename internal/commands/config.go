package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
)

// NewConfigCmd manages macf's own config.yaml under ~/.config/macf/,
// distinct from Claude Code's settings.json (see claude-config).
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or (re)initialize macf's config directory",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	namespaceIndex(cmd)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create ~/.config/macf/ and a default config.yaml if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := cc.Env.ConfigDir()
			if err != nil {
				return cmdErr(err)
			}
			configFile := filepath.Join(dir, "config.yaml")
			if force {
				_ = os.Remove(configFile)
			}
			if err := cc.Env.EnsureConfigDir(); err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]string{"config_dir": dir, "config_file": configFile})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.yaml with the default")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved config directory and config.yaml contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := cc.Env.ConfigDir()
			if err != nil {
				return cmdErr(err)
			}
			configFile := filepath.Join(dir, "config.yaml")
			contents := ""
			if b, err := os.ReadFile(configFile); err == nil {
				contents = string(b)
			}
			return output.PrintSuccess(map[string]string{
				"config_dir":  dir,
				"config_file": configFile,
				"contents":    contents,
			})
		},
	}
}
