package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirCreatesNestedPath(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "c")

	if err := EnsureDir(target); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected a directory")
	}
}

func TestIsProcessAliveCurrentProcess(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Fatal("expected the current process to report alive")
	}
}

func TestIsProcessAliveInvalidPID(t *testing.T) {
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Fatal("expected non-positive PIDs to report not alive")
	}
}

func TestProjectStatePathAndPIDPath(t *testing.T) {
	stateDir := "/tmp/rift-state"
	if got, want := ProjectStatePath(stateDir, "proj-1"), filepath.Join(stateDir, "projects", "proj-1.json"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := PIDPath(stateDir), filepath.Join(stateDir, "riftd.pid"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
