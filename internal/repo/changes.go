package repo

import (
	"context"
	"database/sql"

	"domainflow/internal/domain"
)

// ListChanges returns change rows with id greater than afterID, oldest first.
// domainID narrows the feed to one domain; limit <= 0 means no limit.
func (r Repo) ListChanges(ctx context.Context, afterID int64, domainID string, limit int) ([]domain.Change, error) {
	query := `SELECT id, ts, type, COALESCE(domain_id,''), entity_kind, COALESCE(entity_id,''), payload_json FROM changes WHERE id > ?`
	args := []any{afterID}
	if domainID != "" {
		query += ` AND domain_id=?`
		args = append(args, domainID)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Change{}
	for rows.Next() {
		var c domain.Change
		if err := rows.Scan(&c.ID, &c.TS, &c.Type, &c.DomainID, &c.EntityKind, &c.EntityID, &c.Payload); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// LatestChangeID returns the highest change id, 0 on an empty feed.
func (r Repo) LatestChangeID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM changes`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}
