package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"domainflow/internal/domain"
	"domainflow/internal/events"
)

func (e Engine) CreateTemplate(ctx context.Context, in TaskFields) (domain.Template, error) {
	if err := in.normalize(); err != nil {
		return domain.Template{}, err
	}
	now := e.stamp()
	t := in.toTemplate(domain.Template{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now})
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateCreated, "", "template", t.ID, events.Payload{"title": t.Title})
	})
	if err != nil {
		return domain.Template{}, err
	}
	return t, nil
}

// UpdateTemplate edits a template. Tasks already copied from it are not touched.
func (e Engine) UpdateTemplate(ctx context.Context, id string, patch FieldsPatch) (domain.Template, error) {
	var t domain.Template
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		f := templateFields(cur).apply(patch)
		if err := f.normalize(); err != nil {
			return err
		}
		t = f.toTemplate(cur)
		t.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateTemplate(ctx, tx, t); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateUpdated, "", "template", t.ID, events.Payload{"title": t.Title})
	})
	if err != nil {
		return domain.Template{}, err
	}
	return t, nil
}

func (e Engine) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return e.Repo.GetTemplate(ctx, nil, id)
}

// ListTemplates returns every template, newest first.
func (e Engine) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return e.Repo.ListTemplates(ctx, nil, nil)
}

// DeleteTemplate removes a template with its subtasks. Copied tasks lose
// their template reference and keep everything else.
func (e Engine) DeleteTemplate(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteTemplate(ctx, tx, id); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateDeleted, "", "template", id, nil)
	})
}

// SubtaskInput creates a subtask or a template subtask.
type SubtaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (in *SubtaskInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return invalid("title is required")
	}
	return nil
}

// AddTemplateSubtask appends a subtask at the end of the template's list.
func (e Engine) AddTemplateSubtask(ctx context.Context, templateID string, in SubtaskInput) (domain.TemplateSubtask, error) {
	if err := in.normalize(); err != nil {
		return domain.TemplateSubtask{}, err
	}
	var s domain.TemplateSubtask
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetTemplate(ctx, tx, templateID); err != nil {
			return err
		}
		idx, err := e.Repo.NextTemplateSubtaskIndex(ctx, tx, templateID)
		if err != nil {
			return err
		}
		now := e.stamp()
		s = domain.TemplateSubtask{
			ID:          uuid.NewString(),
			TemplateID:  templateID,
			Title:       in.Title,
			Description: in.Description,
			OrderIndex:  idx,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertTemplateSubtask(ctx, tx, s); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateSubtaskCreated, "", "template_subtask", s.ID, events.Payload{"template_id": templateID, "order_index": idx})
	})
	if err != nil {
		return domain.TemplateSubtask{}, err
	}
	return s, nil
}

type TemplateSubtaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (e Engine) UpdateTemplateSubtask(ctx context.Context, id string, patch TemplateSubtaskPatch) (domain.TemplateSubtask, error) {
	var s domain.TemplateSubtask
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetTemplateSubtask(ctx, tx, id)
		if err != nil {
			return err
		}
		in := SubtaskInput{Title: cur.Title, Description: cur.Description}
		if patch.Title != nil {
			in.Title = *patch.Title
		}
		if patch.Description != nil {
			in.Description = *patch.Description
		}
		if err := in.normalize(); err != nil {
			return err
		}
		s = cur
		s.Title = in.Title
		s.Description = in.Description
		s.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateTemplateSubtask(ctx, tx, s); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateSubtaskUpdated, "", "template_subtask", s.ID, events.Payload{"template_id": s.TemplateID})
	})
	if err != nil {
		return domain.TemplateSubtask{}, err
	}
	return s, nil
}

// DeleteTemplateSubtask removes one subtask and closes the gap it leaves so
// order_index stays 0..n-1.
func (e Engine) DeleteTemplateSubtask(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetTemplateSubtask(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTemplateSubtask(ctx, tx, id); err != nil {
			return err
		}
		rest, err := e.Repo.ListTemplateSubtasks(ctx, tx, cur.TemplateID)
		if err != nil {
			return err
		}
		if err := e.renumber(ctx, tx, rest); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateSubtaskDeleted, "", "template_subtask", id, events.Payload{"template_id": cur.TemplateID})
	})
}

// MoveTemplateSubtask places a subtask at index, clamped to the list bounds,
// shifting the others.
func (e Engine) MoveTemplateSubtask(ctx context.Context, id string, index int) ([]domain.TemplateSubtask, error) {
	var list []domain.TemplateSubtask
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetTemplateSubtask(ctx, tx, id)
		if err != nil {
			return err
		}
		all, err := e.Repo.ListTemplateSubtasks(ctx, tx, cur.TemplateID)
		if err != nil {
			return err
		}
		rest := make([]domain.TemplateSubtask, 0, len(all))
		var moving domain.TemplateSubtask
		for _, s := range all {
			if s.ID == id {
				moving = s
				continue
			}
			rest = append(rest, s)
		}
		if index < 0 {
			index = 0
		}
		if index > len(rest) {
			index = len(rest)
		}
		list = make([]domain.TemplateSubtask, 0, len(all))
		list = append(list, rest[:index]...)
		list = append(list, moving)
		list = append(list, rest[index:]...)
		if err := e.renumber(ctx, tx, list); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TemplateSubtaskMoved, "", "template_subtask", id, events.Payload{"template_id": cur.TemplateID, "order_index": index})
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// renumber writes order_index = position for every subtask in list.
func (e Engine) renumber(ctx context.Context, tx *sql.Tx, list []domain.TemplateSubtask) error {
	for i := range list {
		if list[i].OrderIndex == i {
			continue
		}
		if err := e.Repo.SetTemplateSubtaskOrder(ctx, tx, list[i].ID, i); err != nil {
			return err
		}
		list[i].OrderIndex = i
	}
	return nil
}

// ListTemplateSubtasks returns a template's subtasks by order_index.
func (e Engine) ListTemplateSubtasks(ctx context.Context, templateID string) ([]domain.TemplateSubtask, error) {
	if _, err := e.Repo.GetTemplate(ctx, nil, templateID); err != nil {
		return nil, err
	}
	return e.Repo.ListTemplateSubtasks(ctx, nil, templateID)
}
