package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"domainflow/internal/domain"
)

const subtaskColumns = `id, parent_task_id, title, COALESCE(description,''), completed, completed_at, created_at, updated_at`

func scanSubtask(s rowScanner) (domain.Subtask, error) {
	var (
		st          domain.Subtask
		completed   int
		completedAt sql.NullString
	)
	if err := s.Scan(&st.ID, &st.ParentTaskID, &st.Title, &st.Description, &completed, &completedAt, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return domain.Subtask{}, err
	}
	st.Completed = completed == 1
	if completedAt.Valid {
		v := completedAt.String
		st.CompletedAt = &v
	}
	return st, nil
}

func (r Repo) InsertSubtask(ctx context.Context, tx *sql.Tx, s domain.Subtask) error {
	if s.ID == "" {
		return errors.New("id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO subtasks(id,parent_task_id,title,description,completed,completed_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.ParentTaskID, s.Title, nullable(s.Description), boolInt(s.Completed), nullableStringPtr(s.CompletedAt), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subtask: %w", err)
	}
	return nil
}

func (r Repo) UpdateSubtask(ctx context.Context, tx *sql.Tx, s domain.Subtask) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE subtasks SET title=?, description=?, completed=?, completed_at=?, updated_at=? WHERE id=?`,
		s.Title, nullable(s.Description), boolInt(s.Completed), nullableStringPtr(s.CompletedAt), s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update subtask: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) DeleteSubtask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM subtasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete subtask: %w", err)
	}
	return expectAffected(res)
}

func (r Repo) GetSubtask(ctx context.Context, tx *sql.Tx, id string) (domain.Subtask, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id=?`, id)
	s, err := scanSubtask(row)
	if err == sql.ErrNoRows {
		return domain.Subtask{}, ErrNotFound
	}
	return s, err
}

// ListSubtasks returns a task's subtasks in insertion order.
func (r Repo) ListSubtasks(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Subtask, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE parent_task_id=? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Subtask{}
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SubtaskDomainID resolves the domain owning a subtask through its parent task.
func (r Repo) SubtaskDomainID(ctx context.Context, tx *sql.Tx, subtaskID string) (string, error) {
	var id string
	err := r.q(tx).QueryRowContext(ctx, `SELECT t.domain_id FROM subtasks s JOIN domain_tasks t ON t.id = s.parent_task_id WHERE s.id=?`, subtaskID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}
