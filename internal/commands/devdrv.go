package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/breadcrumb"
	"github.com/cversek/macf/internal/hooks"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/projections"
	"github.com/cversek/macf/internal/recovery"
)

// NewDevDrvCmd renders the recovery text block that a given breadcrumb's
// drive would have received, for operator inspection/debugging. `--raw`
// prints the verbatim text with no JSON envelope; `--md` wraps it as a
// markdown document; `--output` writes to a file instead of stdout.
func NewDevDrvCmd() *cobra.Command {
	var bcString string
	var raw, md bool
	var outputFile string

	cmd := &cobra.Command{
		Use:   "dev_drv",
		Short: "Render the recovery text block for a given breadcrumb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bcString == "" {
				return cmdErr(fmt.Errorf("dev_drv: --breadcrumb is required"))
			}
			bc, ok := breadcrumb.Parse(bcString)
			if !ok {
				return cmdErr(fmt.Errorf("dev_drv: unparseable breadcrumb %q", bcString))
			}

			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}

			auto := projections.AutoMode(cc.Events, bc.SessionID)
			mode := recovery.ModeManual
			if auto.Enabled {
				mode = recovery.ModeAuto
			}

			artifacts := filepath.Join(cc.Env.ProjectRoot, ".macf", "consciousness")
			text := recovery.Build(mode, recovery.Context{
				Cycle:           bc.Cycle,
				PreviousCycle:   bc.Cycle - 1,
				SessionID:       bc.SessionID,
				CompactionCount: projections.CompactionCount(cc.Events, bc.SessionID),
				Todos:           previewTodos(cc),
				CheckpointPath:  hooks.LatestArtifactByMtime(filepath.Join(artifacts, "checkpoints")),
				ReflectionPath:  hooks.LatestArtifactByMtime(filepath.Join(artifacts, "reflections")),
				RoadmapPath:     hooks.LatestArtifactByMtime(filepath.Join(artifacts, "roadmaps")),
			})

			if md {
				text = fmt.Sprintf("# Recovery context for %s\n\n```\n%s\n```\n", bc.String(), text)
			}

			if outputFile != "" {
				if err := os.WriteFile(outputFile, []byte(text), 0o600); err != nil {
					return cmdErr(err)
				}
				if raw || md {
					return nil
				}
				return output.PrintSuccess(map[string]string{"written_to": outputFile})
			}

			if raw || md {
				_, err := fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}
			return output.PrintSuccess(map[string]string{"text": text})
		},
	}

	cmd.Flags().StringVar(&bcString, "breadcrumb", "", "breadcrumb identifying the drive to render (required)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the verbatim text with no JSON envelope")
	cmd.Flags().BoolVar(&md, "md", false, "wrap the text as a markdown document")
	cmd.Flags().StringVar(&outputFile, "output", "", "write the text to a file instead of stdout")
	return cmd
}
