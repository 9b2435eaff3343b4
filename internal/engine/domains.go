package engine

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"domainflow/internal/domain"
	"domainflow/internal/events"
	"domainflow/internal/progress"
	"domainflow/internal/repo"
)

type DomainInput struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

func (in *DomainInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.URL == "" {
		return invalid("url is required")
	}
	if _, err := url.Parse(in.URL); err != nil {
		return invalid("url: %v", err)
	}
	return nil
}

type DomainPatch struct {
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateDomain inserts an active domain and copies every template into it
// as an open task, all in one transaction.
func (e Engine) CreateDomain(ctx context.Context, in DomainInput) (domain.Domain, error) {
	if err := in.normalize(); err != nil {
		return domain.Domain{}, err
	}
	now := e.stamp()
	d := domain.Domain{
		ID:          uuid.NewString(),
		Name:        in.Name,
		URL:         in.URL,
		Description: in.Description,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var created int
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDomain(ctx, tx, d); err != nil {
			return err
		}
		templates, err := e.Repo.ListTemplates(ctx, tx, nil)
		if err != nil {
			return err
		}
		// oldest template first so tasks keep the authoring order
		for i := len(templates) - 1; i >= 0; i-- {
			if err := e.materialize(ctx, tx, d.ID, templates[i], now); err != nil {
				return err
			}
			created++
		}
		return e.appendChange(ctx, tx, events.DomainCreated, d.ID, "domain", d.ID, events.Payload{
			"name":  d.Name,
			"url":   d.URL,
			"tasks": created,
		})
	})
	if err != nil {
		return domain.Domain{}, err
	}
	progress.Apply(&d, progress.Summary{TotalTasks: created})
	return d, nil
}

// materialize copies one template, and its subtasks when configured, into
// a new task of domainID.
func (e Engine) materialize(ctx context.Context, tx *sql.Tx, domainID string, tpl domain.Template, now string) error {
	checklist := make([]domain.ChecklistItem, 0, len(tpl.ChecklistItems))
	for _, item := range tpl.ChecklistItems {
		checklist = append(checklist, domain.ChecklistItem{ID: uuid.NewString(), Text: item.Text})
	}
	templateID := tpl.ID
	t := templateFields(tpl).toTask(domain.Task{
		ID:         uuid.NewString(),
		DomainID:   domainID,
		TemplateID: &templateID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	t.Tags = append([]string{}, tpl.Tags...)
	t.Dependencies = append([]string{}, tpl.Dependencies...)
	t.ReferenceLinks = append([]string{}, tpl.ReferenceLinks...)
	t.ChecklistItems = checklist
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return err
	}
	if !e.copySubtasks() {
		return nil
	}
	subs, err := e.Repo.ListTemplateSubtasks(ctx, tx, tpl.ID)
	if err != nil {
		return err
	}
	for _, ts := range subs {
		if err := e.Repo.InsertSubtask(ctx, tx, domain.Subtask{
			ID:           uuid.NewString(),
			ParentTaskID: t.ID,
			Title:        ts.Title,
			Description:  ts.Description,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) UpdateDomain(ctx context.Context, id string, patch DomainPatch) (domain.Domain, error) {
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetDomain(ctx, tx, id)
		if err != nil {
			return err
		}
		in := DomainInput{Name: cur.Name, URL: cur.URL, Description: cur.Description}
		if patch.Name != nil {
			in.Name = *patch.Name
		}
		if patch.URL != nil {
			in.URL = *patch.URL
		}
		if patch.Description != nil {
			in.Description = *patch.Description
		}
		if err := in.normalize(); err != nil {
			return err
		}
		cur.Name, cur.URL, cur.Description = in.Name, in.URL, in.Description
		cur.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateDomain(ctx, tx, cur); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.DomainUpdated, id, "domain", id, events.Payload{"name": cur.Name, "url": cur.URL})
	})
	if err != nil {
		return domain.Domain{}, err
	}
	return e.GetDomain(ctx, id)
}

// CloseDomain hides a domain from the active view; its tasks are kept.
func (e Engine) CloseDomain(ctx context.Context, id string) (domain.Domain, error) {
	return e.setStatus(ctx, id, domain.StatusClosed, events.DomainClosed)
}

func (e Engine) ReopenDomain(ctx context.Context, id string) (domain.Domain, error) {
	return e.setStatus(ctx, id, domain.StatusActive, events.DomainReopened)
}

func (e Engine) setStatus(ctx context.Context, id, status, changeType string) (domain.Domain, error) {
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetDomain(ctx, tx, id)
		if err != nil {
			return err
		}
		cur.Status = status
		cur.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateDomain(ctx, tx, cur); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, changeType, id, "domain", id, events.Payload{"status": status})
	})
	if err != nil {
		return domain.Domain{}, err
	}
	return e.GetDomain(ctx, id)
}

// DeleteDomain removes a domain together with its tasks, subtasks and comments.
func (e Engine) DeleteDomain(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteDomain(ctx, tx, id); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.DomainDeleted, id, "domain", id, nil)
	})
}

// PinDomain moves a domain to the top of the pinned group by giving it the
// next pinned_order. Pinning a pinned domain re-pins it.
func (e Engine) PinDomain(ctx context.Context, id string) (domain.Domain, error) {
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := e.Repo.DomainExists(ctx, tx, id); err != nil {
			return err
		} else if !ok {
			return repo.ErrNotFound
		}
		next, err := e.Repo.NextPinnedOrder(ctx, tx)
		if err != nil {
			return err
		}
		now := e.stamp()
		if err := e.Repo.SetDomainPin(ctx, tx, id, &next, &now, now); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.DomainPinned, id, "domain", id, events.Payload{"pinned_order": next})
	})
	if err != nil {
		return domain.Domain{}, err
	}
	return e.GetDomain(ctx, id)
}

func (e Engine) UnpinDomain(ctx context.Context, id string) (domain.Domain, error) {
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetDomainPin(ctx, tx, id, nil, nil, e.stamp()); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.DomainUnpinned, id, "domain", id, nil)
	})
	if err != nil {
		return domain.Domain{}, err
	}
	return e.GetDomain(ctx, id)
}

// GetDomain returns a domain with its progress.
func (e Engine) GetDomain(ctx context.Context, id string) (domain.Domain, error) {
	d, err := e.Repo.GetDomain(ctx, nil, id)
	if err != nil {
		return domain.Domain{}, err
	}
	list := []domain.Domain{d}
	if err := e.fillProgress(ctx, list, id); err != nil {
		return domain.Domain{}, err
	}
	return list[0], nil
}

// ListDomains returns domains newest first with progress. Closed domains
// are included only when includeClosed is set.
func (e Engine) ListDomains(ctx context.Context, includeClosed bool) ([]domain.Domain, error) {
	status := domain.StatusActive
	if includeClosed {
		status = ""
	}
	list, err := e.Repo.ListDomains(ctx, status)
	if err != nil {
		return nil, err
	}
	if err := e.fillProgress(ctx, list, ""); err != nil {
		return nil, err
	}
	return list, nil
}

// DomainStats summarizes progress over the domains the dashboard shows.
func (e Engine) DomainStats(ctx context.Context, includeClosed bool) (progress.Stats, error) {
	list, err := e.ListDomains(ctx, includeClosed)
	if err != nil {
		return progress.Stats{}, err
	}
	return progress.Summarize(list), nil
}

// fillProgress sets the derived counters. By default they come from the
// stored task flags already counted by the query; with count_subtasks the
// subtask-derived rule is applied instead.
func (e Engine) fillProgress(ctx context.Context, list []domain.Domain, domainID string) error {
	if !e.countSubtasks() {
		for i := range list {
			list[i].Progress = progress.Percent(list[i].CompletedTasks, list[i].TotalTasks)
		}
		return nil
	}
	rows, err := e.Repo.ListTaskCompletions(ctx, domainID)
	if err != nil {
		return err
	}
	byDomain := progress.ByDomain(rows, true)
	for i := range list {
		progress.Apply(&list[i], byDomain[list[i].ID])
	}
	return nil
}
