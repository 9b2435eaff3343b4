package repo

import (
	"context"
	"database/sql"
	"time"

	"domainflow/internal/domain"
)

// SettingsStore adapts the settings table to a string key/value backend.
type SettingsStore struct {
	Repo Repo
	Now  func() time.Time
}

// Get returns the stored value and whether the key exists.
func (s SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.Repo.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s SettingsStore) Set(ctx context.Context, key, value string) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	_, err := s.Repo.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, domain.FormatTime(now()))
	return err
}
