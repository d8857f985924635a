package commands

import (
	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
)

// NewEnvCmd reports the resolved Environment — the paths and identity
// macf threads through the rest of the CLI, so an operator can see what
// a hook invocation in this same shell would resolve without guessing.
func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show resolved environment (project root, agent, paths)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			configDir, _ := cc.Env.ConfigDir()

			type resp struct {
				ProjectRoot    string `json:"project_root"`
				Agent          string `json:"agent"`
				Session        string `json:"session,omitempty"`
				EventsLogPath  string `json:"events_log_path"`
				TasksRoot      string `json:"tasks_root"`
				ConfigDir      string `json:"config_dir"`
				HostTranscript string `json:"host_transcripts_dir"`
				AutoMode       *bool  `json:"auto_mode_override,omitempty"`
			}
			return output.PrintSuccess(resp{
				ProjectRoot:    cc.Env.ProjectRoot,
				Agent:          cc.Agent,
				Session:        cc.Session,
				EventsLogPath:  cc.Env.EventsLogPath(),
				TasksRoot:      cc.Env.TasksRoot(),
				ConfigDir:      configDir,
				HostTranscript: cc.Env.HostTranscriptsDir(),
				AutoMode:       cc.Env.AutoModeOverride,
			})
		},
	}
}
