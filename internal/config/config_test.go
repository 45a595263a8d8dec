package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STOROZH_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultMute != 600*time.Second {
		t.Fatalf("unexpected default mute: %v", cfg.DefaultMute)
	}
	if cfg.Audit.PrimaryWindow != 48*time.Hour || cfg.Audit.ArchiveWindow != 96*time.Hour || !cfg.Audit.Archive {
		t.Fatalf("unexpected audit defaults: %+v", cfg.Audit)
	}
	if cfg.Quorum.Window != 10*time.Minute || !cfg.Quorum.RequireDistinct {
		t.Fatalf("unexpected quorum defaults: %+v", cfg.Quorum)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storozh.yaml")
	body := []byte(`
database_dsn: postgres://file
default_mute: 5m
audit:
  primary_window: 24h
  archive_window: 72h
  archive: false
  sweep_interval: 30m
quorum:
  require_distinct: false
  bypass_role: 3
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STOROZH_CONFIG", path)
	t.Setenv("STOROZH_DATABASE_DSN", "postgres://env")
	t.Setenv("STOROZH_DEFAULT_MUTE", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDSN != "postgres://env" {
		t.Fatalf("env should override file, got %q", cfg.DatabaseDSN)
	}
	if cfg.DefaultMute != 2*time.Minute {
		t.Fatalf("bare seconds not parsed: %v", cfg.DefaultMute)
	}
	if cfg.Audit.Archive || cfg.Audit.PrimaryWindow != 24*time.Hour || cfg.Audit.SweepInterval != 30*time.Minute {
		t.Fatalf("audit section not loaded: %+v", cfg.Audit)
	}
	if cfg.Quorum.RequireDistinct || cfg.Quorum.BypassRole != 3 {
		t.Fatalf("quorum section not loaded: %+v", cfg.Quorum)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("defaults lost: %q", cfg.HTTPAddr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("STOROZH_CONFIG", "")
	t.Setenv("STOROZH_AUDIT_ARCHIVE_WINDOW", "1h")
	if _, err := Load(); err == nil {
		t.Fatal("expected archive window validation error")
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("STOROZH_CONFIG", "")
	t.Setenv("STOROZH_QUORUM_BYPASS_ROLE", "owner")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}
