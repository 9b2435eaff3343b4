package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"domainflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

// WithTx runs fn inside a transaction and commits when it returns nil.
func (r Repo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeStrings(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw sql.NullString) []string {
	res := []string{}
	if !raw.Valid || raw.String == "" {
		return res
	}
	_ = json.Unmarshal([]byte(raw.String), &res)
	if res == nil {
		res = []string{}
	}
	return res
}

func encodeChecklist(items []domain.ChecklistItem) (string, error) {
	if items == nil {
		items = []domain.ChecklistItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeChecklist(raw sql.NullString) []domain.ChecklistItem {
	res := []domain.ChecklistItem{}
	if !raw.Valid || raw.String == "" {
		return res
	}
	_ = json.Unmarshal([]byte(raw.String), &res)
	if res == nil {
		res = []domain.ChecklistItem{}
	}
	return res
}

// listColumns holds the JSON-encoded list columns shared by templates and tasks.
type listColumns struct {
	tags, deps, links, checklist string
}

func encodeLists(tags, deps, links []string, checklist []domain.ChecklistItem) (listColumns, error) {
	var (
		lc  listColumns
		err error
	)
	if lc.tags, err = encodeStrings(tags); err != nil {
		return lc, fmt.Errorf("encode tags: %w", err)
	}
	if lc.deps, err = encodeStrings(deps); err != nil {
		return lc, fmt.Errorf("encode dependencies: %w", err)
	}
	if lc.links, err = encodeStrings(links); err != nil {
		return lc, fmt.Errorf("encode reference links: %w", err)
	}
	if lc.checklist, err = encodeChecklist(checklist); err != nil {
		return lc, fmt.Errorf("encode checklist: %w", err)
	}
	return lc, nil
}

func expectAffected(res sql.Result) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
