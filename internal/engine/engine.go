package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"domainflow/internal/config"
	"domainflow/internal/domain"
	"domainflow/internal/events"
	"domainflow/internal/listing"
	"domainflow/internal/prefs"
	"domainflow/internal/repo"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Collator *listing.Collator
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Collator: listing.NewCollator(cfg.Locale),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return e.Repo.WithTx(ctx, fn)
}

func (e Engine) appendChange(ctx context.Context, tx *sql.Tx, changeType, domainID, kind, id string, payload events.Payload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, changeType, domainID, kind, id, payload)
}

func (e Engine) copySubtasks() bool {
	return e.Config == nil || e.Config.Templates.CopySubtasks
}

func (e Engine) countSubtasks() bool {
	return e.Config != nil && e.Config.Progress.CountSubtasks
}

// Preferences returns the preference store backed by the settings table.
func (e Engine) Preferences() prefs.Store {
	return prefs.Store{Backend: repo.SettingsStore{Repo: e.Repo, Now: e.now}}
}

// ListChanges returns change rows after afterID, optionally for one domain.
func (e Engine) ListChanges(ctx context.Context, afterID int64, domainID string, limit int) ([]domain.Change, error) {
	return e.Repo.ListChanges(ctx, afterID, domainID, limit)
}

// LatestChangeID returns the newest change id.
func (e Engine) LatestChangeID(ctx context.Context) (int64, error) {
	return e.Repo.LatestChangeID(ctx)
}

// TaskFields are the fields a template shares with the tasks copied from it.
type TaskFields struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description,omitempty"`
	Category       string                 `json:"category"`
	Priority       string                 `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	EstimatedHours *float64               `json:"estimated_hours,omitempty" minimum:"0"`
	Tags           []string               `json:"tags,omitempty"`
	Dependencies   []string               `json:"dependencies,omitempty"`
	ReferenceLinks []string               `json:"reference_links,omitempty"`
	ChecklistItems []domain.ChecklistItem `json:"checklist_items,omitempty"`
}

// FieldsPatch is a partial TaskFields; nil members are left unchanged.
type FieldsPatch struct {
	Title          *string                 `json:"title,omitempty"`
	Description    *string                 `json:"description,omitempty"`
	Category       *string                 `json:"category,omitempty"`
	Priority       *string                 `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	EstimatedHours *float64                `json:"estimated_hours,omitempty" minimum:"0"`
	ClearHours     bool                    `json:"clear_estimated_hours,omitempty"`
	Tags           *[]string               `json:"tags,omitempty"`
	Dependencies   *[]string               `json:"dependencies,omitempty"`
	ReferenceLinks *[]string               `json:"reference_links,omitempty"`
	ChecklistItems *[]domain.ChecklistItem `json:"checklist_items,omitempty"`
}

func (f TaskFields) apply(p FieldsPatch) TaskFields {
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.ClearHours {
		f.EstimatedHours = nil
	} else if p.EstimatedHours != nil {
		h := *p.EstimatedHours
		f.EstimatedHours = &h
	}
	if p.Tags != nil {
		f.Tags = *p.Tags
	}
	if p.Dependencies != nil {
		f.Dependencies = *p.Dependencies
	}
	if p.ReferenceLinks != nil {
		f.ReferenceLinks = *p.ReferenceLinks
	}
	if p.ChecklistItems != nil {
		f.ChecklistItems = *p.ChecklistItems
	}
	return f
}

// normalize trims and validates f in place.
func (f *TaskFields) normalize() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Category = strings.TrimSpace(f.Category)
	f.Priority = strings.ToLower(strings.TrimSpace(f.Priority))
	if f.Title == "" {
		return invalid("title is required")
	}
	if f.Category == "" {
		return invalid("category is required")
	}
	if f.Priority == "" {
		f.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(f.Priority) {
		return invalid("unknown priority %q", f.Priority)
	}
	if f.EstimatedHours != nil && *f.EstimatedHours < 0 {
		return invalid("estimated hours must be >= 0")
	}
	f.Tags = cleanSet(f.Tags)
	f.Dependencies = cleanSet(f.Dependencies)
	f.ReferenceLinks = cleanList(f.ReferenceLinks)
	items, err := normalizeChecklist(f.ChecklistItems)
	if err != nil {
		return err
	}
	f.ChecklistItems = items
	return nil
}

// cleanSet trims values, drops empties and duplicates, keeping first-seen order.
func cleanSet(in []string) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		res = append(res, v)
	}
	return res
}

func cleanList(in []string) []string {
	res := []string{}
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			res = append(res, v)
		}
	}
	return res
}

func normalizeChecklist(in []domain.ChecklistItem) ([]domain.ChecklistItem, error) {
	res := make([]domain.ChecklistItem, 0, len(in))
	for i, item := range in {
		item.Text = strings.TrimSpace(item.Text)
		if item.Text == "" {
			return nil, invalid("checklist item %d has empty text", i)
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		res = append(res, item)
	}
	return res, nil
}

func templateFields(t domain.Template) TaskFields {
	return TaskFields{
		Title:          t.Title,
		Description:    t.Description,
		Category:       t.Category,
		Priority:       t.Priority,
		EstimatedHours: t.EstimatedHours,
		Tags:           t.Tags,
		Dependencies:   t.Dependencies,
		ReferenceLinks: t.ReferenceLinks,
		ChecklistItems: t.ChecklistItems,
	}
}

func taskFields(t domain.Task) TaskFields {
	return TaskFields{
		Title:          t.Title,
		Description:    t.Description,
		Category:       t.Category,
		Priority:       t.Priority,
		EstimatedHours: t.EstimatedHours,
		Tags:           t.Tags,
		Dependencies:   t.Dependencies,
		ReferenceLinks: t.ReferenceLinks,
		ChecklistItems: t.ChecklistItems,
	}
}

func (f TaskFields) toTemplate(t domain.Template) domain.Template {
	t.Title = f.Title
	t.Description = f.Description
	t.Category = f.Category
	t.Priority = f.Priority
	t.EstimatedHours = f.EstimatedHours
	t.Tags = f.Tags
	t.Dependencies = f.Dependencies
	t.ReferenceLinks = f.ReferenceLinks
	t.ChecklistItems = f.ChecklistItems
	return t
}

func (f TaskFields) toTask(t domain.Task) domain.Task {
	t.Title = f.Title
	t.Description = f.Description
	t.Category = f.Category
	t.Priority = f.Priority
	t.EstimatedHours = f.EstimatedHours
	t.Tags = f.Tags
	t.Dependencies = f.Dependencies
	t.ReferenceLinks = f.ReferenceLinks
	t.ChecklistItems = f.ChecklistItems
	return t
}
