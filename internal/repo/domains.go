package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"domainflow/internal/domain"
)

const domainSelect = `SELECT d.id, d.name, d.url, COALESCE(d.description,''), d.status, d.pinned, d.pinned_at, d.pinned_order,
	d.created_at, d.updated_at, COUNT(t.id), COALESCE(SUM(t.completed),0)
	FROM domains d LEFT JOIN domain_tasks t ON t.domain_id = d.id`

func scanDomain(s rowScanner) (domain.Domain, error) {
	var (
		d        domain.Domain
		pinned   int
		pinnedAt sql.NullString
		order    sql.NullInt64
	)
	if err := s.Scan(&d.ID, &d.Name, &d.URL, &d.Description, &d.Status, &pinned, &pinnedAt, &order,
		&d.CreatedAt, &d.UpdatedAt, &d.TotalTasks, &d.CompletedTasks); err != nil {
		return domain.Domain{}, err
	}
	d.Pinned = pinned == 1
	if pinnedAt.Valid {
		v := pinnedAt.String
		d.PinnedAt = &v
	}
	if order.Valid {
		v := int(order.Int64)
		d.PinnedOrder = &v
	}
	return d, nil
}

func (r Repo) InsertDomain(ctx context.Context, tx *sql.Tx, d domain.Domain) error {
	if d.ID == "" {
		return errors.New("id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO domains(id,name,url,description,status,pinned,pinned_at,pinned_order,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Name, d.URL, nullable(d.Description), d.Status, boolInt(d.Pinned), nullableStringPtr(d.PinnedAt), nullableIntPtr(d.PinnedOrder), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

// UpdateDomain writes the editable fields and status. Pin state is changed
// through SetDomainPin only.
func (r Repo) UpdateDomain(ctx context.Context, tx *sql.Tx, d domain.Domain) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE domains SET name=?, url=?, description=?, status=?, updated_at=? WHERE id=?`,
		d.Name, d.URL, nullable(d.Description), d.Status, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	return expectAffected(res)
}

// SetDomainPin stores the pin triple. order nil unpins.
func (r Repo) SetDomainPin(ctx context.Context, tx *sql.Tx, id string, order *int, pinnedAt *string, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE domains SET pinned=?, pinned_at=?, pinned_order=?, updated_at=? WHERE id=?`,
		boolInt(order != nil), nullableStringPtr(pinnedAt), nullableIntPtr(order), updatedAt, id)
	if err != nil {
		return fmt.Errorf("pin domain: %w", err)
	}
	return expectAffected(res)
}

// NextPinnedOrder returns one past the highest pinned_order, starting at 1.
func (r Repo) NextPinnedOrder(ctx context.Context, tx *sql.Tx) (int, error) {
	var next int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(pinned_order),0)+1 FROM domains WHERE pinned=1`).Scan(&next)
	return next, err
}

// DeleteDomain removes a domain; tasks, subtasks and comments cascade.
func (r Repo) DeleteDomain(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM domains WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	return expectAffected(res)
}

// GetDomain returns one domain with its stored-flag task counts.
func (r Repo) GetDomain(ctx context.Context, tx *sql.Tx, id string) (domain.Domain, error) {
	row := r.q(tx).QueryRowContext(ctx, domainSelect+` WHERE d.id=? GROUP BY d.id`, id)
	d, err := scanDomain(row)
	if err == sql.ErrNoRows {
		return domain.Domain{}, ErrNotFound
	}
	return d, err
}

// ListDomains returns domains newest first with task counts. A domain with
// no tasks is included with zero counts.
func (r Repo) ListDomains(ctx context.Context, status string) ([]domain.Domain, error) {
	query := domainSelect
	var args []any
	if status != "" {
		query += ` WHERE d.status=?`
		args = append(args, status)
	}
	query += ` GROUP BY d.id ORDER BY d.created_at DESC, d.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Domain{}
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// DomainExists reports whether id names a stored domain.
func (r Repo) DomainExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	if err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM domains WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
