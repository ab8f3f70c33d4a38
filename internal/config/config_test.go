package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.SchemaVersion != "1.0.0" {
		t.Errorf("SchemaVersion = %q, want 1.0.0", cfg.SchemaVersion)
	}
	if cfg.RootFolder != "HabitTracker" || cfg.SubFolder != "Habits" {
		t.Errorf("folder defaults = %q/%q", cfg.RootFolder, cfg.SubFolder)
	}
	if cfg.ActiveInterval != 5*time.Minute {
		t.Errorf("ActiveInterval = %v, want 5m", cfg.ActiveInterval)
	}
	if cfg.DBPath != filepath.Join(dir, "cache.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `api_base_url: https://backend.example
schema_version: 2.1.0
active_interval: 90s
dashboard_port: 9000
`
	if err := os.WriteFile(filepath.Join(dir, "habitsync.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.APIBaseURL != "https://backend.example" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.SchemaVersion != "2.1.0" {
		t.Errorf("SchemaVersion = %q, want 2.1.0", cfg.SchemaVersion)
	}
	if cfg.ActiveInterval != 90*time.Second {
		t.Errorf("ActiveInterval = %v, want 90s", cfg.ActiveInterval)
	}
	if cfg.DashboardPort != 9000 {
		t.Errorf("DashboardPort = %d, want 9000", cfg.DashboardPort)
	}
	// Unset keys keep their defaults.
	if cfg.BackgroundInterval != 30*time.Minute {
		t.Errorf("BackgroundInterval = %v, want default 30m", cfg.BackgroundInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "habitsync.yaml"),
		[]byte("schema_version: 2.0.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HABITSYNC_SCHEMA_VERSION", "3.0.0")
	t.Setenv("HABITSYNC_TOKEN", "env-token")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.SchemaVersion != "3.0.0" {
		t.Errorf("env should beat file: SchemaVersion = %q", cfg.SchemaVersion)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", cfg.Token)
	}
}
