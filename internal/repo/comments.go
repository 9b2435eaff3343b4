package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"domainflow/internal/domain"
)

// InsertComment stores c under target. The target decides which parent
// column is set.
func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment, target domain.CommentTarget) error {
	if c.ID == "" {
		return errors.New("id required")
	}
	var taskID, subtaskID any
	switch t := target.(type) {
	case domain.TaskTarget:
		taskID = t.TaskID
	case domain.SubtaskTarget:
		subtaskID = t.SubtaskID
	default:
		return errors.New("comment target required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_comments(id,content,task_id,subtask_id,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Content, taskID, subtaskID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM task_comments WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return expectAffected(res)
}

func scanComment(s rowScanner) (domain.Comment, error) {
	var (
		c                 domain.Comment
		taskID, subtaskID sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Content, &taskID, &subtaskID, &c.CreatedAt); err != nil {
		return domain.Comment{}, err
	}
	if taskID.Valid {
		v := taskID.String
		c.TaskID = &v
	}
	if subtaskID.Valid {
		v := subtaskID.String
		c.SubtaskID = &v
	}
	return c, nil
}

func (r Repo) GetComment(ctx context.Context, tx *sql.Tx, id string) (domain.Comment, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, content, task_id, subtask_id, created_at FROM task_comments WHERE id=?`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return domain.Comment{}, ErrNotFound
	}
	return c, err
}

// ListComments returns the comments of one target, oldest first.
func (r Repo) ListComments(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error) {
	var col string
	switch target.(type) {
	case domain.TaskTarget:
		col = "task_id"
	case domain.SubtaskTarget:
		col = "subtask_id"
	default:
		return nil, errors.New("comment target required")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id, content, task_id, subtask_id, created_at FROM task_comments WHERE `+col+`=? ORDER BY created_at, rowid`, target.ID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
