package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"domainflow/internal/domain"
)

const templateColumns = `id, title, COALESCE(description,''), category, priority, estimated_hours,
	tags_json, dependencies_json, reference_links_json, checklist_json, created_at, updated_at`

func scanTemplate(s rowScanner) (domain.Template, error) {
	var (
		t                        domain.Template
		hours                    sql.NullFloat64
		tags, deps, links, check sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.Priority, &hours,
		&tags, &deps, &links, &check, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Template{}, err
	}
	if hours.Valid {
		h := hours.Float64
		t.EstimatedHours = &h
	}
	t.Tags = decodeStrings(tags)
	t.Dependencies = decodeStrings(deps)
	t.ReferenceLinks = decodeStrings(links)
	t.ChecklistItems = decodeChecklist(check)
	return t, nil
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	if t.ID == "" {
		return errors.New("id required")
	}
	lc, err := encodeLists(t.Tags, t.Dependencies, t.ReferenceLinks, t.ChecklistItems)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO task_templates(id,title,description,category,priority,estimated_hours,tags_json,dependencies_json,reference_links_json,checklist_json,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Category, t.Priority, nullableFloatPtr(t.EstimatedHours),
		lc.tags, lc.deps, lc.links, lc.checklist, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r Repo) UpdateTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	lc, err := encodeLists(t.Tags, t.Dependencies, t.ReferenceLinks, t.ChecklistItems)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE task_templates SET title=?, description=?, category=?, priority=?, estimated_hours=?,
		tags_json=?, dependencies_json=?, reference_links_json=?, checklist_json=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Category, t.Priority, nullableFloatPtr(t.EstimatedHours),
		lc.tags, lc.deps, lc.links, lc.checklist, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return expectAffected(res)
}

// DeleteTemplate removes the template and its template subtasks. Tasks that
// were materialized from it keep their copied fields.
func (r Repo) DeleteTemplate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM task_templates WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) GetTemplate(ctx context.Context, tx *sql.Tx, id string) (domain.Template, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+templateColumns+` FROM task_templates WHERE id=?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return domain.Template{}, ErrNotFound
	}
	return t, err
}

// ListTemplates returns templates, optionally restricted to ids, newest first.
func (r Repo) ListTemplates(ctx context.Context, tx *sql.Tx, ids []string) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM task_templates`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTemplateSubtask(ctx context.Context, tx *sql.Tx, s domain.TemplateSubtask) error {
	if s.ID == "" {
		return errors.New("id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO template_subtasks(id,template_id,title,description,order_index,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.TemplateID, s.Title, nullable(s.Description), s.OrderIndex, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template subtask: %w", err)
	}
	return nil
}

func (r Repo) UpdateTemplateSubtask(ctx context.Context, tx *sql.Tx, s domain.TemplateSubtask) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE template_subtasks SET title=?, description=?, order_index=?, updated_at=? WHERE id=?`,
		s.Title, nullable(s.Description), s.OrderIndex, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update template subtask: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) DeleteTemplateSubtask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM template_subtasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete template subtask: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) GetTemplateSubtask(ctx context.Context, tx *sql.Tx, id string) (domain.TemplateSubtask, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, template_id, title, COALESCE(description,''), order_index, created_at, updated_at FROM template_subtasks WHERE id=?`, id)
	var s domain.TemplateSubtask
	err := row.Scan(&s.ID, &s.TemplateID, &s.Title, &s.Description, &s.OrderIndex, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.TemplateSubtask{}, ErrNotFound
	}
	if err != nil {
		return domain.TemplateSubtask{}, err
	}
	return s, nil
}

// ListTemplateSubtasks returns a template's subtasks ordered by order_index.
func (r Repo) ListTemplateSubtasks(ctx context.Context, tx *sql.Tx, templateID string) ([]domain.TemplateSubtask, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, template_id, title, COALESCE(description,''), order_index, created_at, updated_at
		FROM template_subtasks WHERE template_id=? ORDER BY order_index, created_at, id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TemplateSubtask{}
	for rows.Next() {
		var s domain.TemplateSubtask
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.Title, &s.Description, &s.OrderIndex, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// NextTemplateSubtaskIndex returns the order_index a newly appended subtask gets.
func (r Repo) NextTemplateSubtaskIndex(ctx context.Context, tx *sql.Tx, templateID string) (int, error) {
	var next int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(order_index)+1, 0) FROM template_subtasks WHERE template_id=?`, templateID).Scan(&next)
	return next, err
}

// SetTemplateSubtaskOrder writes order_index for one subtask without touching updated_at.
func (r Repo) SetTemplateSubtaskOrder(ctx context.Context, tx *sql.Tx, id string, index int) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE template_subtasks SET order_index=? WHERE id=?`, index, id)
	return err
}
