package app

import (
	"context"
	"testing"

	"domainflow/internal/config"
	"domainflow/internal/engine"
)

func TestOpenAppliesOverridesAndMigrates(t *testing.T) {
	dir := t.TempDir()
	path, created, err := InitConfig(dir)
	if err != nil || !created {
		t.Fatalf("init config: %v %v", created, err)
	}
	if _, again, _ := InitConfig(dir); again {
		t.Fatalf("existing config %s must not be overwritten", path)
	}
	ws, err := Open(dir, func(c *config.Config) { c.Progress.CountSubtasks = true })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if !ws.Config.Progress.CountSubtasks {
		t.Fatalf("override not applied")
	}
	d, err := ws.Engine.CreateDomain(context.Background(), engine.DomainInput{Name: "rossi", URL: "https://rossi.it"})
	if err != nil || d.ID == "" {
		t.Fatalf("engine not usable: %v", err)
	}
}

func TestOpenRejectsInvalidOverride(t *testing.T) {
	_, err := Open(t.TempDir(), func(c *config.Config) { c.Server.BasePath = "v0" })
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
