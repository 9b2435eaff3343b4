package domain

import (
	"strings"
	"time"
)

// TimeLayout is fixed width so stored timestamps order lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout and any RFC 3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// PriorityRank maps a priority label to its sort weight; unknown labels rank 0.
func PriorityRank(p string) int {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ValidPriority reports whether p is one of the four known labels.
func ValidPriority(p string) bool {
	return PriorityRank(p) > 0 && p == strings.ToLower(strings.TrimSpace(p))
}

// ChecklistItem ids are assigned on save when missing.
type ChecklistItem struct {
	ID        string `json:"id" required:"false"`
	Text      string `json:"text"`
	Completed bool   `json:"completed" required:"false"`
}

type Template struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority" enum:"low,medium,high,urgent"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
	Tags           []string        `json:"tags"`
	Dependencies   []string        `json:"dependencies"`
	ReferenceLinks []string        `json:"reference_links"`
	ChecklistItems []ChecklistItem `json:"checklist_items"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
}

type TemplateSubtask struct {
	ID          string `json:"id"`
	TemplateID  string `json:"template_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	OrderIndex  int    `json:"order_index"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Domain is a tracked client site. TotalTasks, CompletedTasks and Progress
// are derived on read and never stored.
type Domain struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	URL            string  `json:"url"`
	Description    string  `json:"description,omitempty"`
	Status         string  `json:"status" enum:"active,closed"`
	Pinned         bool    `json:"pinned"`
	PinnedAt       *string `json:"pinned_at,omitempty" format:"date-time"`
	PinnedOrder    *int    `json:"pinned_order,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	Progress       int     `json:"progress" minimum:"0" maximum:"100"`
}

type Task struct {
	ID             string          `json:"id"`
	DomainID       string          `json:"domain_id"`
	TemplateID     *string         `json:"template_id,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
	Tags           []string        `json:"tags"`
	Dependencies   []string        `json:"dependencies"`
	ReferenceLinks []string        `json:"reference_links"`
	ChecklistItems []ChecklistItem `json:"checklist_items"`
	Completed      bool            `json:"completed"`
	CompletedAt    *string         `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
}

type Subtask struct {
	ID           string  `json:"id"`
	ParentTaskID string  `json:"parent_task_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Completed    bool    `json:"completed"`
	CompletedAt  *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

// TaskCompletion is a task's stored flag together with its subtask counts.
type TaskCompletion struct {
	DomainID          string
	TaskID            string
	Completed         bool
	SubtasksTotal     int
	SubtasksCompleted int
}

// Effective reports completion derived from subtasks when the task has any,
// and the stored flag otherwise.
func (c TaskCompletion) Effective() bool {
	if c.SubtasksTotal == 0 {
		return c.Completed
	}
	return c.SubtasksCompleted == c.SubtasksTotal
}

// Comment is attached to exactly one task or subtask; see Target.
type Comment struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	TaskID    *string `json:"task_id,omitempty"`
	SubtaskID *string `json:"subtask_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// Target rebuilds the comment's parent. It returns nil for a row that
// violates the single-parent rule.
func (c Comment) Target() CommentTarget {
	switch {
	case c.TaskID != nil && c.SubtaskID == nil:
		return TaskTarget{TaskID: *c.TaskID}
	case c.SubtaskID != nil && c.TaskID == nil:
		return SubtaskTarget{SubtaskID: *c.SubtaskID}
	default:
		return nil
	}
}

// CommentTarget is either a TaskTarget or a SubtaskTarget.
type CommentTarget interface {
	commentTarget()
	Kind() string
	ID() string
}

type TaskTarget struct{ TaskID string }

func (TaskTarget) commentTarget() {}
func (TaskTarget) Kind() string   { return "task" }
func (t TaskTarget) ID() string   { return t.TaskID }

type SubtaskTarget struct{ SubtaskID string }

func (SubtaskTarget) commentTarget() {}
func (SubtaskTarget) Kind() string   { return "subtask" }
func (t SubtaskTarget) ID() string   { return t.SubtaskID }

// Change is one row of the change feed.
type Change struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	DomainID   string `json:"domain_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
