package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/go-git/go-git/v5"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// PathMapping is one source-prefix -> destination-prefix rewrite rule.
type PathMapping struct {
	From string
	To   string
}

// RewritePath applies the most-specific (longest From) matching mapping
// to path, per §4.11's transplant ordering rule — a mapping for
// "/home/alice/proj/.macf" must win over one for "/home/alice/proj" when
// both match.
func RewritePath(path string, mappings []PathMapping) string {
	sorted := append([]PathMapping(nil), mappings...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].From) > len(sorted[j].From) })
	for _, m := range sorted {
		if strings.HasPrefix(path, m.From) {
			return m.To + strings.TrimPrefix(path, m.From)
		}
	}
	return path
}

// RepoRoot locates the git repository root containing dir via go-git's
// upward .git discovery, without shelling out.
func RepoRoot(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("backup: not a git repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	return wt.Filesystem.Root(), nil
}

// DryRunPreview renders a unified-diff-style preview of every path that
// Transplant would rewrite, so an operator can review before committing.
func DryRunPreview(paths []string, mappings []PathMapping) string {
	dmp := diffmatchpatch.New()
	var sb strings.Builder
	for _, p := range paths {
		rewritten := RewritePath(p, mappings)
		if rewritten == p {
			continue
		}
		diffs := dmp.DiffMain(p, rewritten, false)
		sb.WriteString(dmp.DiffPrettyText(diffs))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ConfirmOverwrite asks the operator to confirm an in-place restore that
// would overwrite existing files. In a non-interactive context (force
// is already true, or there's no TTY) it returns force unchanged rather
// than blocking on a prompt nobody can answer.
func ConfirmOverwrite(force bool, target string) (bool, error) {
	if force {
		return true, nil
	}
	if !isInteractive() {
		return false, nil
	}

	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Overwrite existing state at %s?", target)).
				Affirmative("Yes, overwrite").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// Transplant rewrites every path in manifest's entries per mappings and
// copies the corresponding files from srcDir to their rewritten
// destinations, taking a checkpoint copy of any file it's about to
// overwrite first (§4.11's pre-restore safety copy).
func Transplant(manifest Manifest, srcDir string, mappings []PathMapping, checkpointDir string) error {
	for _, e := range manifest.Entries {
		if e.Symlink != "" {
			continue
		}
		src := filepath.Join(srcDir, e.Path)
		dest := RewritePath(filepath.Join(srcDir, e.Path), mappings)

		if _, err := os.Stat(dest); err == nil {
			if err := checkpointCopy(dest, checkpointDir); err != nil {
				return fmt.Errorf("backup: checkpoint copy of %s failed: %w", dest, err)
			}
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return err
		}
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("backup: transplant copy %s -> %s failed: %w", src, dest, err)
		}
	}
	return nil
}

func checkpointCopy(path, checkpointDir string) error {
	if checkpointDir == "" {
		return nil
	}
	if err := os.MkdirAll(checkpointDir, 0o750); err != nil {
		return err
	}
	dest := filepath.Join(checkpointDir, filepath.Base(path))
	return copyFile(path, dest)
}

func copyFile(src, dest string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, b, 0o600)
}
