package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/backup"
	"github.com/cversek/macf/internal/output"
)

// NewAgentCmd creates the agent parent command: one-time bootstrap plus
// C10's backup/restore/transplant subsystem.
func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent bootstrap and backup/restore/transplant",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newAgentInitCmd())

	backupCmd := &cobra.Command{Use: "backup", Short: "Create, list, and inspect state backups"}
	backupCmd.AddCommand(newAgentBackupCreateCmd())
	backupCmd.AddCommand(newAgentBackupListCmd())
	backupCmd.AddCommand(newAgentBackupInfoCmd())
	namespaceIndex(backupCmd)
	cmd.AddCommand(backupCmd)

	restoreCmd := &cobra.Command{Use: "restore", Short: "Verify and install a state backup"}
	restoreCmd.AddCommand(newAgentRestoreVerifyCmd())
	restoreCmd.AddCommand(newAgentRestoreInstallCmd())
	namespaceIndex(restoreCmd)
	cmd.AddCommand(restoreCmd)

	namespaceIndex(cmd)
	return cmd
}

func newAgentInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Bootstrap the project's .macf state (event log, sentinel task)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if err := cc.Env.EnsureConfigDir(); err != nil {
				return cmdErr(err)
			}
			if err := cc.Tasks.EnsureSentinel(cc.Session); err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]string{
				"events_log_path": cc.Env.EventsLogPath(),
				"tasks_root":      cc.Env.TasksRoot(),
			})
		},
	}
}

// stateDir is what a backup archives: the project's .macf directory,
// holding the event log, task files, and policy index.
func stateDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".macf")
}

func backupDir(e interface{ ConfigDir() (string, error) }, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	dir, err := e.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}

func newAgentBackupCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a .tar.xz backup of the project's macf state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := backupDir(cc.Env, cc.Env.BackupDir)
			if err != nil {
				return cmdErr(err)
			}
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return cmdErr(err)
			}

			name := fmt.Sprintf("macf-backup-%d.tar.xz", time.Now().Unix())
			archivePath := filepath.Join(dir, name)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			manifest, err := backup.CreateArchive(ctx, stateDir(cc.Env.ProjectRoot), archivePath)
			if err != nil {
				return cmdErr(err)
			}
			manifestPath := archivePath + ".manifest.json"
			if b, err := json.MarshalIndent(manifest, "", "  "); err == nil {
				_ = os.WriteFile(manifestPath, b, 0o600)
			}

			pruned := pruneOldBackups(dir, cc.Env.BackupKeep)
			return output.PrintSuccess(map[string]any{
				"archive": archivePath,
				"files":   len(manifest.Entries),
				"pruned":  pruned,
			})
		},
	}
}

// pruneOldBackups keeps the keep newest macf-backup-*.tar.xz archives
// (plus sidecar manifests) in dir, deleting the rest. keep<=0 disables
// pruning.
func pruneOldBackups(dir string, keep int) []string {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var archives []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "macf-backup-") && strings.HasSuffix(e.Name(), ".tar.xz") {
			archives = append(archives, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(archives)))
	if len(archives) <= keep {
		return nil
	}
	var pruned []string
	for _, name := range archives[keep:] {
		_ = os.Remove(filepath.Join(dir, name))
		_ = os.Remove(filepath.Join(dir, name+".manifest.json"))
		pruned = append(pruned, name)
	}
	return pruned
}

func newAgentBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := backupDir(cc.Env, cc.Env.BackupDir)
			if err != nil {
				return cmdErr(err)
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					return output.PrintSuccess([]string{})
				}
				return cmdErr(err)
			}
			var names []string
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".tar.xz") {
					names = append(names, e.Name())
				}
			}
			sort.Sort(sort.Reverse(sort.StringSlice(names)))
			return output.PrintSuccess(names)
		},
	}
}

func newAgentBackupInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show a backup's manifest summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := backupDir(cc.Env, cc.Env.BackupDir)
			if err != nil {
				return cmdErr(err)
			}
			m, err := loadBackupManifest(dir, args[0])
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(m)
		},
	}
}

func loadBackupManifest(dir, name string) (backup.Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, name+".manifest.json"))
	if err != nil {
		return backup.Manifest{}, err
	}
	var m backup.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return backup.Manifest{}, err
	}
	return m, nil
}

func newAgentRestoreVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify NAME",
		Short: "Extract a backup to a scratch directory and verify its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := backupDir(cc.Env, cc.Env.BackupDir)
			if err != nil {
				return cmdErr(err)
			}
			manifest, err := loadBackupManifest(dir, args[0])
			if err != nil {
				return cmdErr(err)
			}

			scratch, err := os.MkdirTemp("", "macf-restore-verify-")
			if err != nil {
				return cmdErr(err)
			}
			defer os.RemoveAll(scratch)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := backup.Extract(ctx, filepath.Join(dir, args[0]), scratch); err != nil {
				return cmdErr(err)
			}

			result := backup.Verify(manifest, scratch)
			return output.PrintSuccess(result)
		},
	}
}

func newAgentRestoreInstallCmd() *cobra.Command {
	var transplant []string
	var force bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "install NAME",
		Short: "Extract and install a backup, optionally transplanting it onto a different project root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := backupDir(cc.Env, cc.Env.BackupDir)
			if err != nil {
				return cmdErr(err)
			}
			manifest, err := loadBackupManifest(dir, args[0])
			if err != nil {
				return cmdErr(err)
			}

			mappings, err := parseTransplantMappings(transplant, autoDetectTransplantTarget(cc.Env.ProjectRoot))
			if err != nil {
				return cmdErr(err)
			}

			if dryRun {
				var paths []string
				for _, e := range manifest.Entries {
					paths = append(paths, filepath.Join(stateDir(cc.Env.ProjectRoot), e.Path))
				}
				return output.PrintSuccess(map[string]string{"preview": backup.DryRunPreview(paths, mappings)})
			}

			target := stateDir(cc.Env.ProjectRoot)
			if _, err := os.Stat(target); err == nil {
				confirmed, err := backup.ConfirmOverwrite(force, target)
				if err != nil {
					return cmdErr(err)
				}
				if !confirmed {
					return cmdErr(fmt.Errorf("agent restore install: target %s exists; rerun with --force to overwrite", target))
				}
			}

			scratch, err := os.MkdirTemp("", "macf-restore-install-")
			if err != nil {
				return cmdErr(err)
			}
			defer os.RemoveAll(scratch)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := backup.Extract(ctx, filepath.Join(dir, args[0]), scratch); err != nil {
				return cmdErr(err)
			}

			checkpointDir := filepath.Join(scratch, ".checkpoint")
			if err := backup.Transplant(manifest, scratch, mappings, checkpointDir); err != nil {
				return cmdErr(err)
			}

			return output.PrintSuccess(map[string]any{"installed": len(manifest.Entries), "checkpoint_dir": checkpointDir})
		},
	}

	cmd.Flags().StringSliceVar(&transplant, "transplant", nil, "FROM=TO path rewrite rules, most-specific wins")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an already-populated target without prompting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview path rewrites without copying any file")
	return cmd
}

// autoDetectTransplantTarget resolves the implicit (no --transplant
// flags given) target root: the git repository root containing the
// current project, when there is one, so a restore lands under the
// checked-out repo rather than wherever the command happened to run.
func autoDetectTransplantTarget(projectRoot string) string {
	if root, err := backup.RepoRoot(projectRoot); err == nil {
		return stateDir(root)
	}
	return stateDir(projectRoot)
}

func parseTransplantMappings(raw []string, defaultTo string) ([]backup.PathMapping, error) {
	var out []backup.PathMapping
	for _, r := range raw {
		parts := strings.SplitN(r, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("agent restore: invalid --transplant mapping %q, want FROM=TO", r)
		}
		out = append(out, backup.PathMapping{From: parts[0], To: parts[1]})
	}
	if len(out) == 0 {
		out = append(out, backup.PathMapping{From: "", To: defaultTo})
	}
	return out, nil
}
