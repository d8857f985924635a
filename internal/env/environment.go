// Package env centralizes path and identity resolution that the rest of
// macf threads through explicitly instead of reading os.Getenv ad hoc.
// It replaces the source system's module-global overrides (set_log_path,
// et al.) with a value object that tests can construct directly.
package env

import (
	"os"
	"path/filepath"
)

// Environment carries every piece of process/agent identity that the
// core packages need to resolve paths and scope queries. Production code
// builds one with FromOS, which reads the OS environment and CWD; a zero
// value reads no environment variables and resolves paths from CWD.
// Tests construct one with explicit overrides instead of mutating
// package-level state.
type Environment struct {
	// EventsLogPathOverride wins over everything (test hook).
	EventsLogPathOverride string

	// ProjectRoot is MACEFF_AGENT_HOME_DIR if set, else CWD.
	ProjectRoot string

	// AgentUser is MACEFF_USER or USER.
	AgentUser string

	// AutoModeOverride mirrors MACF_AUTO_MODE when non-nil.
	AutoModeOverride *bool

	// BackupDir mirrors MACF_BACKUP_DIR.
	BackupDir string
	// BackupKeep mirrors MACF_BACKUP_KEEP.
	BackupKeep int

	// ProxyCaptureDir mirrors MACF_PROXY_CAPTURE_DIR.
	ProxyCaptureDir string

	// TemplatesDir mirrors MACEFF_TEMPLATES_DIR.
	TemplatesDir string
	// Root mirrors MACEFF_ROOT, the maceff installation root (distinct
	// from ProjectRoot, the project being instrumented).
	Root string
	// Timezone mirrors MACEFF_TZ.
	Timezone string
}

// FromOS builds an Environment by reading the process environment and
// CWD. This is the only place production code should touch os.Getenv
// for these concerns; everything downstream takes an *Environment.
func FromOS() *Environment {
	e := &Environment{
		EventsLogPathOverride: os.Getenv("MACF_EVENTS_LOG_PATH"),
		AgentUser:             firstNonEmpty(os.Getenv("MACEFF_USER"), os.Getenv("USER")),
		BackupDir:             os.Getenv("MACF_BACKUP_DIR"),
		ProxyCaptureDir:       os.Getenv("MACF_PROXY_CAPTURE_DIR"),
		TemplatesDir:          os.Getenv("MACEFF_TEMPLATES_DIR"),
		Root:                  os.Getenv("MACEFF_ROOT"),
		Timezone:              os.Getenv("MACEFF_TZ"),
	}
	if v := os.Getenv("MACEFF_AGENT_HOME_DIR"); v != "" {
		e.ProjectRoot = v
	} else if cwd, err := os.Getwd(); err == nil {
		e.ProjectRoot = cwd
	}
	if v := os.Getenv("MACF_AUTO_MODE"); v != "" {
		b := v == "true" || v == "1"
		e.AutoModeOverride = &b
	}
	return e
}

// TestEnv builds an Environment rooted at dir, with no OS overrides
// beyond what's passed — the constructor test code should use instead
// of poking global state.
func TestEnv(dir string) *Environment {
	return &Environment{ProjectRoot: dir, AgentUser: "test-agent"}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// EventsLogPath resolves the event log path per spec precedence:
// test override > env override > .{project}/agent_events_log.jsonl > CWD fallback.
func (e *Environment) EventsLogPath() string {
	if e.EventsLogPathOverride != "" {
		return e.EventsLogPathOverride
	}
	root := e.ProjectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	return filepath.Join(root, ".macf", "agent_events_log.jsonl")
}

// AgentAPILogPath resolves the proxy's own api_request/api_response
// trace (§4.10, §6), independent of the C1 event log.
func (e *Environment) AgentAPILogPath() string {
	root := e.ProjectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	return filepath.Join(root, ".macf", "agent_api_log.jsonl")
}

// TasksRoot resolves {tasks_root} per §6: rooted under the project's
// .macf directory, sessions nested below it.
func (e *Environment) TasksRoot() string {
	root := e.ProjectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	return filepath.Join(root, ".macf", "tasks")
}

// ConfigDir returns ~/.config/macf/.
func (e *Environment) ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "macf"), nil
}

// EnsureConfigDir creates the config directory and a default config.yaml
// if one is missing, following the teacher's EnsureConfigDir shape.
func (e *Environment) EnsureConfigDir() error {
	dir, err := e.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0o600)
	}
	return nil
}

const defaultConfig = `# macf configuration
# Run: macf --help

# Optional: override the merged policy manifest's project overlay path.
# project_manifest_path: ./.macf/policy/project.yaml

# Optional: framework base manifest path (defaults to the bundled base).
# framework_manifest_path: ~/.config/macf/base_manifest.yaml
`

// HostTranscriptsDir returns the directory holding the host agent's own
// JSONL transcripts for the current project, mangled the way Claude
// Code itself mangles project paths (slashes become dashes).
func (e *Environment) HostTranscriptsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	root := e.ProjectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	return filepath.Join(home, ".claude", "projects", encodeProjectPath(root))
}

// encodeProjectPath mirrors Claude Code's own directory-name mangling:
// every path separator, dot and underscore becomes a dash.
func encodeProjectPath(p string) string {
	out := make([]rune, 0, len(p))
	for _, r := range p {
		switch r {
		case '/', '\\', '.', '_':
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
