// Package tasks implements the file-based task store (C4): JSON task
// files keyed by small integer id, a sentinel-protected directory, and
// the structured metadata block (MTMD) carried as a typed field alongside
// each task's free-text description.
package tasks

// Type is the task_type enum carried in a task's metadata block.
type Type string

const (
	TypeMission   Type = "MISSION"
	TypeExperiment Type = "EXPERIMENT"
	TypeDetour    Type = "DETOUR"
	TypePhase     Type = "PHASE"
	TypeBug       Type = "BUG"
	TypeTask      Type = "TASK"
	TypeDelegPlan Type = "DELEG_PLAN"
	TypeSubplan   Type = "SUBPLAN"
	TypeArchive   Type = "ARCHIVE"
	TypeGHIssue   Type = "GH_ISSUE"
	TypeSentinel  Type = "SENTINEL"
)

// requiresPlanCARef lists task types for which plan_ca_ref is mandatory,
// per §3.4 invariant.
var requiresPlanCARef = map[Type]bool{
	TypeMission:    true,
	TypeExperiment: true,
	TypeDetour:     true,
	TypeDelegPlan:  true,
	TypeSubplan:    true,
}

// RequiresPlanCARef reports whether t must carry a valid plan_ca_ref.
func RequiresPlanCARef(t Type) bool { return requiresPlanCARef[t] }

// Status is the task lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// SentinelID is the permanently in_progress task that exists to prevent
// garbage collection of the entire task directory.
const SentinelID = "000"

// Update is one entry in Metadata.Updates — a progress note stamped with
// the breadcrumb active when it was recorded.
type Update struct {
	Breadcrumb  string `json:"breadcrumb"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

// Metadata is the MTMD block: a tagged record carried alongside the
// task's free-text description rather than parsed out of it ad hoc,
// per the design note against dynamically-parsed metadata in free text.
// The description's raw remainder (non-metadata text) is preserved
// separately on Task.Description so round-trips are lossless.
type Metadata struct {
	TaskType             Type           `json:"task_type"`
	CreationBreadcrumb   string         `json:"creation_breadcrumb,omitempty"`
	CreatedCycle         int            `json:"created_cycle,omitempty"`
	CreatedBy            string         `json:"created_by,omitempty"`
	ParentID             string         `json:"parent_id,omitempty"`
	PlanCARef            string         `json:"plan_ca_ref,omitempty"`
	Repo                 string         `json:"repo,omitempty"`
	TargetVersion        string         `json:"target_version,omitempty"`
	CompletionBreadcrumb string         `json:"completion_breadcrumb,omitempty"`
	Updates              []Update       `json:"updates,omitempty"`
	Custom               map[string]any `json:"custom,omitempty"`
	Archived             bool           `json:"archived,omitempty"`
	ArchivedAt           string         `json:"archived_at,omitempty"`
}

// Task is one JSON task file.
type Task struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Blocks      []string  `json:"blocks,omitempty"`
	BlockedBy   []string  `json:"blockedBy,omitempty"`
	ActiveForm  string    `json:"activeForm,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// IsSentinel reports whether this task is the permanent Sentinel.
func (t Task) IsSentinel() bool { return t.ID == SentinelID }

// EffectiveType returns Metadata.TaskType when present; otherwise it
// falls back to inferring the type from the subject line's emoji prefix,
// per §3.4's "task_type inside the metadata block is authoritative; a
// fallback parser infers type from subject-line emoji prefix" rule.
func (t Task) EffectiveType() Type {
	if t.Metadata != nil && t.Metadata.TaskType != "" {
		return t.Metadata.TaskType
	}
	return inferTypeFromSubject(t.Subject)
}

var emojiToType = map[string]Type{
	"🎯": TypeMission,
	"🧪": TypeExperiment,
	"🔀": TypeDetour,
	"📐": TypePhase,
	"🐛": TypeBug,
	"📋": TypeTask,
	"🤝": TypeDelegPlan,
	"📎": TypeSubplan,
	"🗄️": TypeArchive,
	"🐙": TypeGHIssue,
	"⭐": TypeSentinel,
}

func inferTypeFromSubject(subject string) Type {
	for emoji, t := range emojiToType {
		if containsRune(subject, emoji) {
			return t
		}
	}
	return TypeTask
}

func containsRune(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
