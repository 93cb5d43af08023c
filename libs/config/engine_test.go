package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEngineDefaults_MissingFileUsesBuiltins(t *testing.T) {
	d, err := LoadEngineDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Granularity() != 15*time.Minute {
		t.Fatalf("expected 15m granularity, got %s", d.Granularity())
	}
	if d.SyncMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", d.SyncMaxAttempts)
	}
}

func TestLoadEngineDefaults_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := `granularity_minutes: 30
min_slot_minutes: 30
pull_timeout_seconds: 3
timezones:
  - id: America/New_York
    label: Eastern Time
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := LoadEngineDefaults(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Granularity() != 30*time.Minute {
		t.Fatalf("expected 30m granularity, got %s", d.Granularity())
	}
	if d.PullTimeout() != 3*time.Second {
		t.Fatalf("expected 3s pull timeout, got %s", d.PullTimeout())
	}
	if len(d.Timezones) != 1 || d.Timezones[0].Label != "Eastern Time" {
		t.Fatalf("unexpected timezones: %+v", d.Timezones)
	}
}

func TestLoadEngineDefaults_RejectsUnknownTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := "timezones:\n  - id: Mars/Olympus\n    label: Mars\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadEngineDefaults(path); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
