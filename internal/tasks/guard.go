package tasks

import "os"

// DirectoryGuard enforces a directory's resting file mode on Release,
// even if the caller panics or returns early mid-scope. It replaces the
// source system's ad hoc chmod-before/chmod-after gymnastics around task
// directory mutation, per the design note calling for a typed guard.
type DirectoryGuard struct {
	dir        string
	restoreTo  os.FileMode
	released   bool
}

// Unprotect chmods dir to 0o755 (writable) and returns a guard that will
// restore it to restMode (typically 0o555) when Release is called. The
// caller should `defer guard.Release()` immediately after construction.
func Unprotect(dir string, restMode os.FileMode) (*DirectoryGuard, error) {
	if err := os.Chmod(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirectoryGuard{dir: dir, restoreTo: restMode}, nil
}

// Release restores the directory's resting mode. Safe to call multiple
// times; only the first call has effect. Errors are swallowed — a failed
// chmod-back is logged by the caller's own error path if it cares, but
// must never panic out of a defer.
func (g *DirectoryGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	_ = os.Chmod(g.dir, g.restoreTo)
}
