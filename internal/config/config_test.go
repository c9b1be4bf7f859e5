package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knoldeck/internal/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knoldeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "knoldeck.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Scheduler.Algorithm != "fsrs" || cfg.Scheduler.Retention != 0.9 || cfg.Scheduler.MaximumInterval != 36500 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Engine.Direction != "ascending" || !cfg.Engine.IncludeUnreviewed {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Locking.Mode != "single" || cfg.Log.Level != "info" || cfg.ReposDir != "repos" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, `
database:
  dsn: from-file.db
scheduler:
  algorithm: simple
  retention: 0.8
log:
  level: debug
`)
	t.Setenv("KNOLDECK_SCHEDULER__RETENTION", "0.85")
	t.Setenv("KNOLDECK_ENGINE__INCLUDE_UNREVIEWED", "false")
	t.Setenv("KNOLDECK_LOG__LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--log-level", "error"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file over default", cfg.Database.DSN, "from-file.db"},
		{"file only", cfg.Scheduler.Algorithm, "simple"},
		{"env over file", cfg.Scheduler.Retention, 0.85},
		{"env bool", cfg.Engine.IncludeUnreviewed, false},
		{"flag over env", cfg.Log.Level, "error"},
		{"unset flag keeps default", cfg.Locking.Mode, "single"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"driver", "database:\n  driver: postgres\n"},
		{"sqlite without dsn", "database:\n  dsn: \"\"\n"},
		{"retention", "scheduler:\n  retention: 1.5\n"},
		{"direction", "engine:\n  direction: sideways\n"},
		{"locking", "locking:\n  mode: optimistic\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.yaml), nil)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestMemoryDriverNeedsNoDSN(t *testing.T) {
	cfg, err := Load(writeFile(t, "database:\n  driver: memory\n  dsn: \"\"\n"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
}
