package commands

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/env"
	"github.com/cversek/macf/internal/events"
	"github.com/cversek/macf/internal/hooks"
	"github.com/cversek/macf/internal/manifest"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/tasks"
)

// printedError marks an error whose JSON response has already been
// written to stdout — Execute must not log it again.
type printedError struct {
	err error
}

func (e printedError) Error() string { return "error already printed" }
func (e printedError) Unwrap() error { return e.err }

// cmdErr logs err to stderr and wraps it so Execute's top-level handler
// doesn't double-report it once the JSON error envelope has been printed.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	slog.Default().Error("command error", "error", err.Error())
	return printedError{err: err}
}

// namespaceIndex sets RunE on a parent command to emit a JSON subcommand
// index — agents invoking a bare namespace (e.g. `macf task`) get
// structured output instead of human help text.
func namespaceIndex(cmd *cobra.Command) {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		type subCmd struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		type resp struct {
			Namespace   string   `json:"namespace"`
			Subcommands []subCmd `json:"subcommands"`
		}
		subs := []subCmd{}
		for _, child := range c.Commands() {
			if !child.Hidden {
				subs = append(subs, subCmd{Name: child.Name(), Description: child.Short})
			}
		}
		return output.PrintSuccess(resp{Namespace: c.CommandPath(), Subcommands: subs})
	}
}

// resolveAgentName resolves the agent identity used for event
// attribution: --agent flag, else MACEFF_USER/USER via env.Environment.
func resolveAgentName(cmd *cobra.Command, e *env.Environment) string {
	if v, err := cmd.Flags().GetString("agent"); err == nil && v != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return strings.ToLower(strings.TrimSpace(e.AgentUser))
}

// resolveSessionID resolves the host agent session id used to scope the
// task store: --session flag, else MACF_SESSION_ID.
func resolveSessionID(cmd *cobra.Command) string {
	if v, err := cmd.Flags().GetString("session"); err == nil && v != "" {
		return v
	}
	return os.Getenv("MACF_SESSION_ID")
}

// frameworkManifestPath resolves the bundled base manifest path: a
// --framework-manifest flag, else ~/.config/macf/base_manifest.yaml.
func frameworkManifestPath(cmd *cobra.Command, e *env.Environment) string {
	if v, err := cmd.Flags().GetString("framework-manifest"); err == nil && v != "" {
		return v
	}
	dir, err := e.ConfigDir()
	if err != nil {
		return ""
	}
	return dir + "/base_manifest.yaml"
}

// projectManifestPath resolves the project overlay manifest path: a
// --project-manifest flag, else {project}/.macf/policy/project.yaml.
func projectManifestPath(cmd *cobra.Command, e *env.Environment) string {
	if v, err := cmd.Flags().GetString("project-manifest"); err == nil && v != "" {
		return v
	}
	root := e.ProjectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	return root + "/.macf/policy/project.yaml"
}

// commandContext bundles the core stores every verb group reads or
// mutates, built fresh per invocation the same way hooks.NewContext
// builds a runner Context.
type commandContext struct {
	Env      *env.Environment
	Events   *events.Store
	Tasks    *tasks.Store
	Manifest manifest.Manifest
	Agent    string
	Session  string
}

// loadCommandContext resolves the Environment, opens the event log and
// task store, and loads the merged policy manifest. Manifest load
// failures degrade to an empty manifest per §4.8 rather than failing
// the command.
func loadCommandContext(cmd *cobra.Command) (*commandContext, error) {
	e := env.FromOS()
	ev := events.NewStore(e)
	ts := tasks.NewStore(e, ev)

	m, err := manifest.LoadMerged(e, frameworkManifestPath(cmd, e), projectManifestPath(cmd, e))
	if err != nil {
		slog.Default().Warn("manifest load failed, continuing with empty manifest", "error", err)
		m = manifest.Manifest{}
	}

	return &commandContext{
		Env:      e,
		Events:   ev,
		Tasks:    ts,
		Manifest: m,
		Agent:    resolveAgentName(cmd, e),
		Session:  resolveSessionID(cmd),
	}, nil
}

// hookRunnerContext adapts a commandContext into a hooks.Context, so
// commands that want to exercise the same code path as a live hook
// invocation (e.g. `macf hooks test`) can do so directly.
func (c *commandContext) hookRunnerContext() *hooks.Context {
	return hooks.NewContext(c.Env, c.Events, c.Tasks, c.Manifest)
}

var errAgentRequired = errors.New("agent is required (set --agent, MACEFF_USER, or USER)")
