package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/hooks"
	"github.com/cversek/macf/internal/output"
)

// NewHooksCmd creates the hooks parent command: install/uninstall the
// Claude Code hook wiring, a `test` harness that drives the runner
// registry directly, `logs` for a session's recorded events, `status`
// for install state, plus one hidden subcommand per §4.5 runner —
// Claude Code invokes these directly via the settings installed by
// `hooks install`.
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Hook lifecycle handlers and installer",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newHooksInstallCmd())
	cmd.AddCommand(newHooksUninstallCmd())
	cmd.AddCommand(newHooksTestCmd())
	cmd.AddCommand(newHooksLogsCmd())
	cmd.AddCommand(newHooksStatusCmd())

	for name, fn := range hooks.Dispatch {
		sub := newHookRunCmd(name, fn)
		sub.Hidden = true
		cmd.AddCommand(sub)
	}

	namespaceIndex(cmd)
	return cmd
}

// newHookRunCmd wraps one hooks.RunnerFunc as a cobra subcommand named
// after its hook_event_name in kebab-case, reading stdin and writing
// stdout via hooks.Run — the exact call Claude Code makes per turn.
func newHookRunCmd(eventName string, fn hooks.RunnerFunc) *cobra.Command {
	return &cobra.Command{
		Use:           kebabCase(eventName),
		Short:         eventName + " hook runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				// A hook runner must never fail the host's turn even on
				// context construction failure.
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(hooks.Output{Continue: true, SystemMessage: "macf: " + err.Error()})
			}
			hooks.Run(cc.hookRunnerContext(), cmd.InOrStdin(), cmd.OutOrStdout(), fn)
			return nil
		},
	}
}

func kebabCase(eventName string) string {
	var b []byte
	for i, r := range eventName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b = append(b, '-')
			}
			r = r - 'A' + 'a'
		}
		b = append(b, byte(r))
	}
	return string(b)
}

func newHooksTestCmd() *cobra.Command {
	var eventName string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Drive one hook runner with a synthetic Input from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, ok := hooks.Lookup(eventName)
			if !ok {
				return cmdErr(fmt.Errorf("hooks test: unknown hook %q", eventName))
			}
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			var buf []byte
			var out hooks.Output
			hooks.Run(cc.hookRunnerContext(), cmd.InOrStdin(), jsonCapture(&buf), fn)
			_ = json.Unmarshal(buf, &out)
			return output.PrintSuccess(out)
		},
	}
	cmd.Flags().StringVar(&eventName, "event", "", "hook_event_name to drive (e.g. SessionStart)")
	return cmd
}

// jsonCapture returns an io.Writer that appends everything written to
// it into *buf, letting `hooks test` re-decode the runner's raw JSON
// output before re-emitting it through the standard success envelope.
func jsonCapture(buf *[]byte) captureWriter { return captureWriter{buf: buf} }

type captureWriter struct{ buf *[]byte }

func (c captureWriter) Write(p []byte) (int, error) {
	*c.buf = append(*c.buf, p...)
	return len(p), nil
}

func newHooksLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent events recorded by hook runners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(cc.Events.Read(limit, true))
		},
	}
	cmd.Flags().IntVar(&limit, "session", 50, "number of recent events to show")
	return cmd
}

func newHooksStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether macf hooks are installed for Claude Code",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := os.UserHomeDir()
			path := claudeSettingsPathFor(home, false)
			installed := false
			if b, err := os.ReadFile(path); err == nil {
				var settings map[string]any
				if json.Unmarshal(b, &settings) == nil {
					hooksObj, _ := settings["hooks"].(map[string]any)
					_, installed = hooksObj["SessionStart"]
				}
			}
			return output.PrintSuccess(map[string]any{"settings_path": path, "installed": installed})
		},
	}
}
