package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cversek/macf/internal/env"
	"github.com/cversek/macf/internal/events"
)

// ErrPlanCARefRequired is returned when a task type requiring plan_ca_ref
// is created without one, or with one pointing into the forbidden host
// plans directory.
var ErrPlanCARefRequired = errors.New("plan_ca_ref is required and must not reference the host's ephemeral plan directory")

// ErrGrantRequired is returned by mutating operations when no matching
// grant event covers the requested operation/task-id set.
var ErrGrantRequired = errors.New("operation requires a matching task_grant event")

// forbiddenPlanPrefix is the host agent's ephemeral plan directory;
// plan_ca_ref must never point inside it (§3.4 invariant).
const forbiddenPlanPrefix = ".claude/plans/"

// Store is the task store's public handle: JSON files under
// {tasks_root}/{session_id}/{id}.json, directory mode 0o555 at rest.
type Store struct {
	Env    *env.Environment
	Events *events.Store
}

// NewStore builds a task Store sharing the same Environment as the
// caller's event log, so grant checks and sentinel-creation events land
// in the same log.
func NewStore(e *env.Environment, ev *events.Store) *Store {
	return &Store{Env: e, Events: ev}
}

func (s *Store) sessionDir(session string) string {
	return filepath.Join(s.Env.TasksRoot(), session)
}

func (s *Store) taskPath(session, id string) string {
	return filepath.Join(s.sessionDir(session), id+".json")
}

// ReadAll loads every task file in session's directory.
func (s *Store) ReadAll(session string) ([]Task, error) {
	dir := s.sessionDir(session)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		t, err := s.Read(session, id)
		if err != nil {
			continue // tolerate partial/corrupt files like the event log does malformed lines
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Read loads a single task by id.
func (s *Store) Read(session, id string) (Task, error) {
	b, err := os.ReadFile(s.taskPath(session, id))
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Store) write(session string, t Task) error {
	dir := s.sessionDir(session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if t.IsSentinel() {
		mode = 0o444
	}
	path := s.taskPath(session, t.ID)
	// Write via a temp file + rename for atomicity, then pin the mode.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, mode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

// restDirMode is the directory's resting protection level (§3.4).
const restDirMode = 0o555

// withUnprotectedDir runs fn under a DirectoryGuard that briefly chmods
// the session directory writable, then restores it to restDirMode.
func (s *Store) withUnprotectedDir(session string, fn func() error) error {
	dir := s.sessionDir(session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	guard, err := Unprotect(dir, restDirMode)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn()
}

// nextID allocates max existing id + 1, skipping the Sentinel, formatted
// as a zero-padded 3-digit string.
func (s *Store) nextID(session string) (string, error) {
	all, err := s.ReadAll(session)
	if err != nil {
		return "", err
	}
	max := 0
	for _, t := range all {
		if t.IsSentinel() {
			continue
		}
		n, err := strconv.Atoi(t.ID)
		if err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%03d", max+1), nil
}

// ValidatePlanCARef enforces §3.4: required for MISSION/EXPERIMENT/
// DETOUR/DELEG_PLAN/SUBPLAN, and must not point into the forbidden host
// plans directory.
func ValidatePlanCARef(t Type, ref string) error {
	if !RequiresPlanCARef(t) {
		return nil
	}
	if ref == "" {
		return ErrPlanCARefRequired
	}
	if strings.Contains(ref, forbiddenPlanPrefix) {
		return ErrPlanCARefRequired
	}
	return nil
}

// FormatSubject composes the ANSI/emoji subject string: id prefix,
// optional parent ref [^#n], type emoji, title. The Sentinel gets a
// distinctive bold-orange marker.
func FormatSubject(id, parentID string, t Type, title string) string {
	const (
		ansiBold   = "\x1b[1m"
		ansiOrange = "\x1b[38;5;208m"
		ansiReset  = "\x1b[0m"
	)
	emoji := typeEmoji(t)
	var parentRef string
	if parentID != "" {
		parentRef = fmt.Sprintf(" [^#%s]", parentID)
	}
	if t == TypeSentinel {
		return fmt.Sprintf("%s%s#%s%s%s %s %s", ansiBold, ansiOrange, id, parentRef, ansiReset, emoji, title)
	}
	return fmt.Sprintf("#%s%s %s %s", id, parentRef, emoji, title)
}

func typeEmoji(t Type) string {
	for emoji, ty := range emojiToType {
		if ty == t {
			return emoji
		}
	}
	return "📋"
}

// EnsureSentinel creates the permanent Sentinel task if it does not
// already exist, emitting task_started with source="sentinel_creation"
// so it surfaces in the active-tasks projection immediately.
func (s *Store) EnsureSentinel(session string) error {
	if _, err := s.Read(session, SentinelID); err == nil {
		return nil // already present
	}
	return s.withUnprotectedDir(session, func() error {
		t := Task{
			ID:      SentinelID,
			Subject: FormatSubject(SentinelID, "", TypeSentinel, "Sentinel — keeps this task directory alive"),
			Status:  StatusInProgress,
			Metadata: &Metadata{
				TaskType: TypeSentinel,
			},
		}
		if err := s.write(session, t); err != nil {
			return err
		}
		if s.Events != nil {
			s.Events.Append("task_started", map[string]any{
				"task_id":   SentinelID,
				"task_type": string(TypeSentinel),
				"source":    "sentinel_creation",
			}, nil)
		}
		return nil
	})
}

// CreateOptions configures CreateTask.
type CreateOptions struct {
	Type        Type
	Title       string
	Description string
	ParentID    string
	PlanCARef   string
	Repo        string
	CreatedBy   string
	Cycle       int
	Breadcrumb  string
}

// CreateTask allocates the next id, validates plan_ca_ref where
// required, formats the subject, writes the file under a directory
// guard, and ensures the Sentinel exists.
func (s *Store) CreateTask(session string, opts CreateOptions) (Task, error) {
	if err := ValidatePlanCARef(opts.Type, opts.PlanCARef); err != nil {
		return Task{}, err
	}

	if err := s.EnsureSentinel(session); err != nil {
		return Task{}, err
	}

	var created Task
	err := s.withUnprotectedDir(session, func() error {
		id, err := s.nextID(session)
		if err != nil {
			return err
		}
		created = Task{
			ID:          id,
			Subject:     FormatSubject(id, opts.ParentID, opts.Type, opts.Title),
			Description: opts.Description,
			Status:      StatusPending,
			Metadata: &Metadata{
				TaskType:           opts.Type,
				CreationBreadcrumb: opts.Breadcrumb,
				CreatedCycle:       opts.Cycle,
				CreatedBy:          opts.CreatedBy,
				ParentID:           opts.ParentID,
				PlanCARef:          opts.PlanCARef,
				Repo:               opts.Repo,
			},
		}
		if opts.ParentID != "" {
			if parent, err := s.Read(session, opts.ParentID); err == nil {
				parent.Blocks = append(parent.Blocks, id)
				_ = s.write(session, parent)
			}
		}
		return s.write(session, created)
	})
	return created, err
}

// Update loads a task, applies patch, and writes it back under a
// directory guard.
func (s *Store) Update(session, id string, patch func(*Task)) (Task, error) {
	t, err := s.Read(session, id)
	if err != nil {
		return Task{}, err
	}
	if t.IsSentinel() {
		return Task{}, errors.New("the sentinel task is read-only")
	}
	patch(&t)
	err = s.withUnprotectedDir(session, func() error { return s.write(session, t) })
	return t, err
}

// Archive copies id (and, if cascade, its descendants) into a dated
// archive directory, stamping Metadata.Archived and ArchivedAt, then sets
// status "archived" on the originals.
func (s *Store) Archive(session, id string, cascade bool) error {
	t, err := s.Read(session, id)
	if err != nil {
		return err
	}
	ids := []string{id}
	if cascade {
		seen := map[string]bool{id: true}
		for i := 0; i < len(ids); i++ {
			cur := t
			if i > 0 {
				if cur, err = s.Read(session, ids[i]); err != nil {
					continue
				}
			}
			for _, child := range cur.Blocks {
				if !seen[child] {
					seen[child] = true
					ids = append(ids, child)
				}
			}
		}
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	archiveDir := filepath.Join(s.sessionDir(session), "archive", stamp)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	return s.withUnprotectedDir(session, func() error {
		for _, tid := range ids {
			tt, err := s.Read(session, tid)
			if err != nil {
				continue
			}
			if tt.Metadata == nil {
				tt.Metadata = &Metadata{}
			}
			tt.Metadata.Archived = true
			tt.Metadata.ArchivedAt = stamp
			b, _ := json.MarshalIndent(tt, "", "  ")
			_ = os.WriteFile(filepath.Join(archiveDir, tid+".json"), b, 0o644)

			tt.Status = StatusArchived
			if err := s.write(session, tt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore loads an archived task JSON, clears archive metadata, allocates
// a new id, resets status to pending, and appends a restoration note
// citing the original id and archive date.
func (s *Store) Restore(session, archiveRef string) (Task, error) {
	path := archiveRef
	if _, err := os.Stat(path); err != nil {
		matches, _ := filepath.Glob(filepath.Join(s.sessionDir(session), "archive", "*", archiveRef+".json"))
		if len(matches) > 0 {
			path = matches[len(matches)-1]
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return Task{}, err
	}
	originalID := t.ID
	archivedAt := ""
	if t.Metadata != nil {
		archivedAt = t.Metadata.ArchivedAt
		t.Metadata.Archived = false
		t.Metadata.ArchivedAt = ""
	}

	var restored Task
	err = s.withUnprotectedDir(session, func() error {
		id, err := s.nextID(session)
		if err != nil {
			return err
		}
		t.ID = id
		t.Status = StatusPending
		if t.Metadata != nil {
			t.Metadata.Updates = append(t.Metadata.Updates, Update{
				Description: fmt.Sprintf("Restored from archived task %s (archived %s)", originalID, archivedAt),
			})
		}
		restored = t
		return s.write(session, t)
	})
	return restored, err
}
