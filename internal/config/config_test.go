package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" || cfg.Locale != "it" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Templates.CopySubtasks || cfg.Progress.CountSubtasks {
		t.Fatalf("unexpected template/progress defaults: %+v", cfg)
	}
	if cfg.AuthEnabled() {
		t.Fatalf("auth must be disabled by default")
	}
	d, err := cfg.PollInterval()
	if err != nil || d != 2*time.Second {
		t.Fatalf("poll interval: %v %v", d, err)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("progress:\n  count_subtasks: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Progress.CountSubtasks {
		t.Fatalf("expected count_subtasks to be set")
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || !cfg.Templates.CopySubtasks {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"base path": "server:\n  base_path: v0\n",
		"locale":    "locale: \"not a tag!\"\n",
		"interval":  "changes:\n  poll_interval: soon\n",
		"webhook":   "webhooks:\n  - url: ftp://example.com\n",
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file should give defaults: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("Load should fail without a file")
	}
	data := "auth:\n  jwt_secret: s3cret\nwebhooks:\n  - url: https://hooks.example.com/df\n    events: [task.completed]\n"
	if err := os.WriteFile(filepath.Join(dir, "domainflow.yml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.AuthEnabled() || len(cfg.Webhooks) != 1 || !cfg.Webhooks[0].IsEnabled() {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
