package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCoordinatorConfigDefaults(t *testing.T) {
	cfg, err := LoadCoordinatorConfig("")
	if err != nil {
		t.Fatalf("LoadCoordinatorConfig: %v", err)
	}
	if cfg.Port != 8443 {
		t.Fatalf("expected default port 8443, got %d", cfg.Port)
	}
	if cfg.BroadcastQueueCapacity != 1024 {
		t.Fatalf("expected default queue capacity 1024, got %d", cfg.BroadcastQueueCapacity)
	}
}

func TestLoadCoordinatorConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinatord.yaml")
	yaml := "port: 9000\nmax_users_per_rift: 8\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadCoordinatorConfig(path)
	if err != nil {
		t.Fatalf("LoadCoordinatorConfig: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.MaxUsersPerRift != 8 {
		t.Fatalf("expected max_users_per_rift 8, got %d", cfg.MaxUsersPerRift)
	}
	// Unset keys still pick up defaults.
	if cfg.BlobDir != "./rift-blobs" {
		t.Fatalf("expected default blob dir, got %q", cfg.BlobDir)
	}
}

func TestLoadCoordinatorConfigEnvOverride(t *testing.T) {
	t.Setenv("RIFT_PORT", "1234")
	cfg, err := LoadCoordinatorConfig("")
	if err != nil {
		t.Fatalf("LoadCoordinatorConfig: %v", err)
	}
	if cfg.Port != 1234 {
		t.Fatalf("expected env override port 1234, got %d", cfg.Port)
	}
}

func TestValidateCoordinatorConfig(t *testing.T) {
	cfg := defaultCoordinatorConfig()
	cfg.Port = 0
	cfg.BroadcastQueueCapacity = -1
	errs := ValidateCoordinatorConfig(&cfg)
	if len(errs) != 2 {
		t.Fatalf("expected 2 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestLoadDaemonConfigMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadDaemonConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected a missing config file to fall back to defaults, got %v", err)
	}
	if cfg.IPCPort != 7417 {
		t.Fatalf("expected default ipc_port 7417, got %d", cfg.IPCPort)
	}
}

func TestValidateDaemonConfig(t *testing.T) {
	cfg := defaultDaemonConfig()
	cfg.CoordinatorURL = ""
	errs := ValidateDaemonConfig(&cfg)
	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %d: %v", len(errs), errs)
	}
}
