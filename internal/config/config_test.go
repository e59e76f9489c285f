package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindRoot(t *testing.T) {
	tmp := t.TempDir()
	swDir := filepath.Join(tmp, ".spacewald")
	if err := os.MkdirAll(swDir, 0o755); err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(tmp, "a", "b", "c")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	root, err := FindRoot(sub)
	if err != nil {
		t.Fatalf("FindRoot(%q) error: %v", sub, err)
	}
	if root != tmp {
		t.Errorf("FindRoot(%q) = %q, want %q", sub, root, tmp)
	}
}

func TestFindRootNotFound(t *testing.T) {
	tmp := t.TempDir()
	_, err := FindRoot(tmp)
	if err == nil {
		t.Fatal("expected error outside a spacewald node directory")
	}
}

func TestConfigRoundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.toml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Holdback.RetryBudget = 10

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", got.Logging.Level, "debug")
	}
	if got.Holdback.RetryBudget != 10 {
		t.Errorf("Holdback.RetryBudget = %d, want 10", got.Holdback.RetryBudget)
	}
	if got.MLS.CipherSuite != MLSCiphersuiteID {
		t.Errorf("MLS.CipherSuite = %d, want %d", got.MLS.CipherSuite, MLSCiphersuiteID)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.toml")
	if err := os.WriteFile(path, []byte("[node]\nversion = \"0.1.0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Holdback.RetryBudget != 5 {
		t.Errorf("expected default RetryBudget 5, got %d", cfg.Holdback.RetryBudget)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default Logging.Level info, got %q", cfg.Logging.Level)
	}
}
