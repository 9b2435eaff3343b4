package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"domainflow/internal/domain"
	"domainflow/internal/events"
	"domainflow/internal/repo"
)

// ListDomainTasks returns a domain's tasks in creation order.
func (e Engine) ListDomainTasks(ctx context.Context, domainID string) ([]domain.Task, error) {
	ok, err := e.Repo.DomainExists(ctx, nil, domainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repo.ErrNotFound
	}
	return e.Repo.ListTasks(ctx, nil, domainID)
}

// TaskCompletions returns the completion record of every task in a domain,
// keyed by task id.
func (e Engine) TaskCompletions(ctx context.Context, domainID string) (map[string]domain.TaskCompletion, error) {
	rows, err := e.Repo.ListTaskCompletions(ctx, domainID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]domain.TaskCompletion, len(rows))
	for _, r := range rows {
		res[r.TaskID] = r
	}
	return res, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, nil, id)
}

// CreateTask adds a manual task, without template, to a domain.
func (e Engine) CreateTask(ctx context.Context, domainID string, in TaskFields) (domain.Task, error) {
	if err := in.normalize(); err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	t := in.toTask(domain.Task{ID: uuid.NewString(), DomainID: domainID, CreatedAt: now, UpdatedAt: now})
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := e.Repo.DomainExists(ctx, tx, domainID); err != nil {
			return err
		} else if !ok {
			return repo.ErrNotFound
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TaskCreated, domainID, "task", t.ID, events.Payload{"title": t.Title})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask edits the copyable fields of a task.
func (e Engine) UpdateTask(ctx context.Context, id string, patch FieldsPatch) (domain.Task, error) {
	return e.mutateTask(ctx, id, events.TaskUpdated, func(t *domain.Task) error {
		f := taskFields(*t).apply(patch)
		if err := f.normalize(); err != nil {
			return err
		}
		*t = f.toTask(*t)
		return nil
	})
}

// SetTaskCompleted stores the completion flag. completed_at is set to now
// when the flag turns on and cleared when it turns off.
func (e Engine) SetTaskCompleted(ctx context.Context, id string, completed bool) (domain.Task, error) {
	changeType := events.TaskReopened
	if completed {
		changeType = events.TaskCompleted
	}
	return e.mutateTask(ctx, id, changeType, func(t *domain.Task) error {
		if t.Completed == completed {
			return nil
		}
		t.Completed = completed
		t.CompletedAt = nil
		if completed {
			now := e.stamp()
			t.CompletedAt = &now
		}
		return nil
	})
}

// UpdateChecklist replaces a task's checklist.
func (e Engine) UpdateChecklist(ctx context.Context, id string, items []domain.ChecklistItem) (domain.Task, error) {
	return e.mutateTask(ctx, id, events.TaskUpdated, func(t *domain.Task) error {
		cleaned, err := normalizeChecklist(items)
		if err != nil {
			return err
		}
		t.ChecklistItems = cleaned
		return nil
	})
}

func (e Engine) mutateTask(ctx context.Context, id, changeType string, fn func(t *domain.Task) error) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetTask(ctx, tx, id)
		if err != nil {
			return err
		}
		t = cur
		if err := fn(&t); err != nil {
			return err
		}
		t.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, changeType, t.DomainID, "task", t.ID, events.Payload{"completed": t.Completed})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task with its subtasks and comments.
func (e Engine) DeleteTask(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.TaskDeleted, t.DomainID, "task", id, nil)
	})
}

// ListSubtasks returns a task's subtasks in creation order.
func (e Engine) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	if _, err := e.Repo.GetTask(ctx, nil, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListSubtasks(ctx, nil, taskID)
}

func (e Engine) AddSubtask(ctx context.Context, taskID string, in SubtaskInput) (domain.Subtask, error) {
	if err := in.normalize(); err != nil {
		return domain.Subtask{}, err
	}
	now := e.stamp()
	s := domain.Subtask{
		ID:           uuid.NewString(),
		ParentTaskID: taskID,
		Title:        in.Title,
		Description:  in.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := e.Repo.GetTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertSubtask(ctx, tx, s); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.SubtaskCreated, parent.DomainID, "subtask", s.ID, events.Payload{"task_id": taskID})
	})
	if err != nil {
		return domain.Subtask{}, err
	}
	return s, nil
}

type SubtaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

func (e Engine) UpdateSubtask(ctx context.Context, id string, patch SubtaskPatch) (domain.Subtask, error) {
	var s domain.Subtask
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetSubtask(ctx, tx, id)
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
		s.Title, s.Description = in.Title, in.Description
		if patch.Completed != nil && *patch.Completed != s.Completed {
			s.Completed = *patch.Completed
			s.CompletedAt = nil
			if s.Completed {
				now := e.stamp()
				s.CompletedAt = &now
			}
		}
		s.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateSubtask(ctx, tx, s); err != nil {
			return err
		}
		domainID, err := e.Repo.SubtaskDomainID(ctx, tx, id)
		if err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.SubtaskUpdated, domainID, "subtask", id, events.Payload{"task_id": s.ParentTaskID, "completed": s.Completed})
	})
	if err != nil {
		return domain.Subtask{}, err
	}
	return s, nil
}

// SetSubtaskCompleted toggles a subtask. The parent task's stored flag is
// left alone.
func (e Engine) SetSubtaskCompleted(ctx context.Context, id string, completed bool) (domain.Subtask, error) {
	return e.UpdateSubtask(ctx, id, SubtaskPatch{Completed: &completed})
}

func (e Engine) DeleteSubtask(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		domainID, err := e.Repo.SubtaskDomainID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteSubtask(ctx, tx, id); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.SubtaskDeleted, domainID, "subtask", id, nil)
	})
}

// targetDomain checks that the comment target exists and returns its domain.
func (e Engine) targetDomain(ctx context.Context, tx *sql.Tx, target domain.CommentTarget) (string, error) {
	switch t := target.(type) {
	case domain.TaskTarget:
		task, err := e.Repo.GetTask(ctx, tx, t.TaskID)
		if err != nil {
			return "", err
		}
		return task.DomainID, nil
	case domain.SubtaskTarget:
		return e.Repo.SubtaskDomainID(ctx, tx, t.SubtaskID)
	default:
		return "", invalid("comment target is required")
	}
}

// AddComment attaches a comment to a task or a subtask.
func (e Engine) AddComment(ctx context.Context, target domain.CommentTarget, content string) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, invalid("content is required")
	}
	c := domain.Comment{ID: uuid.NewString(), Content: content, CreatedAt: e.stamp()}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		domainID, err := e.targetDomain(ctx, tx, target)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertComment(ctx, tx, c, target); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.CommentCreated, domainID, "comment", c.ID, events.Payload{target.Kind() + "_id": target.ID()})
	})
	if err != nil {
		return domain.Comment{}, err
	}
	id := target.ID()
	switch target.(type) {
	case domain.TaskTarget:
		c.TaskID = &id
	case domain.SubtaskTarget:
		c.SubtaskID = &id
	}
	return c, nil
}

// ListComments returns a target's comments, oldest first.
func (e Engine) ListComments(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error) {
	if _, err := e.targetDomain(ctx, nil, target); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, target)
}

func (e Engine) DeleteComment(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		c, err := e.Repo.GetComment(ctx, tx, id)
		if err != nil {
			return err
		}
		target := c.Target()
		domainID := ""
		if target != nil {
			if domainID, err = e.targetDomain(ctx, tx, target); err != nil {
				return err
			}
		}
		if err := e.Repo.DeleteComment(ctx, tx, id); err != nil {
			return err
		}
		return e.appendChange(ctx, tx, events.CommentDeleted, domainID, "comment", id, nil)
	})
}
