package app

import (
	"database/sql"
	"fmt"
	"os"

	"domainflow/internal/config"
	"domainflow/internal/db"
	"domainflow/internal/engine"
	"domainflow/internal/migrate"
)

// Workspace is an opened, migrated workspace ready for use.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open opens the workspace database, applies migrations and loads
// domainflow.yml, falling back to defaults when the file is missing.
// overrides runs after loading so flags and environment can win over the file.
func Open(dir string, overrides func(*config.Config)) (*Workspace, error) {
	if dir == "" {
		dir = "."
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		overrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{
		Dir:    dir,
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

// InitConfig writes the default domainflow.yml unless one exists.
func InitConfig(dir string) (string, bool, error) {
	path := config.Path(dir)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		return "", false, err
	}
	return path, true, nil
}
