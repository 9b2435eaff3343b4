package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"domainflow/internal/domain"
)

const taskColumns = `id, domain_id, template_id, title, COALESCE(description,''), category, priority, estimated_hours,
	tags_json, dependencies_json, reference_links_json, checklist_json, completed, completed_at, created_at, updated_at`

func scanTask(s rowScanner) (domain.Task, error) {
	var (
		t                        domain.Task
		templateID, completedAt  sql.NullString
		hours                    sql.NullFloat64
		tags, deps, links, check sql.NullString
		completed                int
	)
	if err := s.Scan(&t.ID, &t.DomainID, &templateID, &t.Title, &t.Description, &t.Category, &t.Priority, &hours,
		&tags, &deps, &links, &check, &completed, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	if templateID.Valid {
		v := templateID.String
		t.TemplateID = &v
	}
	if hours.Valid {
		h := hours.Float64
		t.EstimatedHours = &h
	}
	if completedAt.Valid {
		v := completedAt.String
		t.CompletedAt = &v
	}
	t.Completed = completed == 1
	t.Tags = decodeStrings(tags)
	t.Dependencies = decodeStrings(deps)
	t.ReferenceLinks = decodeStrings(links)
	t.ChecklistItems = decodeChecklist(check)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	if t.ID == "" {
		return errors.New("id required")
	}
	lc, err := encodeLists(t.Tags, t.Dependencies, t.ReferenceLinks, t.ChecklistItems)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO domain_tasks(id,domain_id,template_id,title,description,category,priority,estimated_hours,
		tags_json,dependencies_json,reference_links_json,checklist_json,completed,completed_at,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.DomainID, nullableStringPtr(t.TemplateID), t.Title, nullable(t.Description), t.Category, t.Priority, nullableFloatPtr(t.EstimatedHours),
		lc.tags, lc.deps, lc.links, lc.checklist, boolInt(t.Completed), nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask rewrites every mutable column including the completion pair.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	lc, err := encodeLists(t.Tags, t.Dependencies, t.ReferenceLinks, t.ChecklistItems)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE domain_tasks SET title=?, description=?, category=?, priority=?, estimated_hours=?,
		tags_json=?, dependencies_json=?, reference_links_json=?, checklist_json=?, completed=?, completed_at=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Category, t.Priority, nullableFloatPtr(t.EstimatedHours),
		lc.tags, lc.deps, lc.links, lc.checklist, boolInt(t.Completed), nullableStringPtr(t.CompletedAt), t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM domain_tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM domain_tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

// ListTasks returns a domain's tasks in insertion order.
func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, domainID string) ([]domain.Task, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM domain_tasks WHERE domain_id=? ORDER BY created_at, rowid`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTaskCompletions returns per-task completion state with subtask counts,
// for every domain when domainID is empty.
func (r Repo) ListTaskCompletions(ctx context.Context, domainID string) ([]domain.TaskCompletion, error) {
	query := `SELECT t.domain_id, t.id, t.completed, COUNT(s.id), COALESCE(SUM(s.completed),0)
		FROM domain_tasks t LEFT JOIN subtasks s ON s.parent_task_id = t.id`
	var args []any
	if domainID != "" {
		query += ` WHERE t.domain_id=?`
		args = append(args, domainID)
	}
	query += ` GROUP BY t.id ORDER BY t.domain_id, t.created_at`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskCompletion{}
	for rows.Next() {
		var (
			c         domain.TaskCompletion
			completed int
		)
		if err := rows.Scan(&c.DomainID, &c.TaskID, &completed, &c.SubtasksTotal, &c.SubtasksCompleted); err != nil {
			return nil, err
		}
		c.Completed = completed == 1
		res = append(res, c)
	}
	return res, rows.Err()
}
