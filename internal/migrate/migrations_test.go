package migrate

import (
	"testing"

	"domainflow/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	v, err := Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; v != want {
		t.Fatalf("expected version %d, got %d", want, v)
	}
}

func TestCommentParentCheck(t *testing.T) {
	conn, err := db.Open(db.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = conn.Exec(`INSERT INTO task_comments(id, content, created_at) VALUES ('c1','orphan','2024-01-01T00:00:00.000000Z')`)
	if err == nil {
		t.Fatalf("expected check constraint to reject a comment without parent")
	}
}
