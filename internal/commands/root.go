package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
)

// Execute runs the macf CLI.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "macf",
		Short:         "Agent telemetry and recovery substrate (event log, hooks, policy search, proxy)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringP("agent", "a", "", "Agent name (default: $MACEFF_USER or $USER)")
	root.PersistentFlags().String("session", "", "Host agent session id (default: $MACF_SESSION_ID)")
	root.PersistentFlags().String("framework-manifest", "", "Override framework base manifest path")
	root.PersistentFlags().String("project-manifest", "", "Override project manifest overlay path")
	root.Flags().BoolP("version", "v", false, "version for macf")

	root.AddCommand(NewEnvCmd())
	root.AddCommand(NewTimeCmd())
	root.AddCommand(NewBudgetCmd())
	root.AddCommand(NewContextCmd())
	root.AddCommand(NewStatuslineCmd())
	root.AddCommand(NewBreadcrumbCmd())
	root.AddCommand(NewDevDrvCmd())
	root.AddCommand(NewHooksCmd())
	root.AddCommand(NewAgentCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewClaudeConfigCmd())
	root.AddCommand(NewPolicyCmd())
	root.AddCommand(NewEventsCmd())
	root.AddCommand(NewModeCmd())
	root.AddCommand(NewTodosCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewSearchServiceCmd())
	root.AddCommand(NewProxyCmd())
	root.AddCommand(NewSchemaCmd(root))

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
