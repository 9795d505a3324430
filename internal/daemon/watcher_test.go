package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/riftlab/rift/internal/wireproto"
)

func drainEmitted(t *testing.T, p *TrackedProject) *wireproto.FileChanged {
	t.Helper()
	select {
	case data := <-p.outbound:
		_, frame, err := wireproto.Parse(data)
		if err != nil {
			t.Fatalf("parsing emitted frame: %v", err)
		}
		fc, ok := frame.(*wireproto.FileChanged)
		if !ok {
			t.Fatalf("expected *FileChanged, got %T", frame)
		}
		return fc
	default:
		return nil
	}
}

func TestProcessWatchEventEmitsOnNewFile(t *testing.T) {
	p := testProject(t)
	d := &Daemon{}

	path := filepath.Join(p.LocalRoot, "main.go")
	if err := os.WriteFile(path, []byte("package main"), 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	d.processWatchEvent(context.Background(), p, path)

	fc := drainEmitted(t, p)
	if fc == nil {
		t.Fatal("expected a FileChanged frame to be emitted")
	}
	if fc.Path != "main.go" || string(fc.Content) != "package main" {
		t.Fatalf("unexpected frame: %+v", fc)
	}
}

func TestProcessWatchEventSkipsIdenticalContent(t *testing.T) {
	p := testProject(t)
	d := &Daemon{}

	path := filepath.Join(p.LocalRoot, "main.go")
	os.WriteFile(path, []byte("package main"), 0o644)
	d.processWatchEvent(context.Background(), p, path)
	drainEmitted(t, p) // first emit consumed

	os.WriteFile(path, []byte("package main"), 0o644) // rewritten, identical bytes
	d.processWatchEvent(context.Background(), p, path)

	if fc := drainEmitted(t, p); fc != nil {
		t.Fatalf("expected no emit for identical content, got %+v", fc)
	}
}

func TestProcessWatchEventSuppressesOwnWrite(t *testing.T) {
	p := testProject(t)
	d := &Daemon{}

	path := filepath.Join(p.LocalRoot, "main.go")
	p.markSuppressed("main.go")
	os.WriteFile(path, []byte("package main"), 0o644)
	d.processWatchEvent(context.Background(), p, path)

	if fc := drainEmitted(t, p); fc != nil {
		t.Fatalf("expected suppressed write to not be re-emitted, got %+v", fc)
	}
	if got, ok := p.getLastHash("main.go"); !ok || got == "" {
		t.Fatal("expected last hash to be recorded even when suppressed")
	}
}

func TestProcessWatchEventIgnoresConfiguredPatterns(t *testing.T) {
	p := testProject(t)
	d := &Daemon{}

	gitDir := filepath.Join(p.LocalRoot, ".git")
	os.Mkdir(gitDir, 0o755)
	path := filepath.Join(gitDir, "HEAD")
	os.WriteFile(path, []byte("ref: refs/heads/main"), 0o644)

	d.processWatchEvent(context.Background(), p, path)

	if fc := drainEmitted(t, p); fc != nil {
		t.Fatalf("expected ignored path to not be emitted, got %+v", fc)
	}
}

func TestProcessWatchEventHandlesDelete(t *testing.T) {
	p := testProject(t)
	d := &Daemon{}

	path := filepath.Join(p.LocalRoot, "main.go")
	os.WriteFile(path, []byte("package main"), 0o644)
	d.processWatchEvent(context.Background(), p, path)
	drainEmitted(t, p)

	os.Remove(path)
	d.processWatchEvent(context.Background(), p, path)

	fc := drainEmitted(t, p)
	if fc == nil || !fc.Deleted {
		t.Fatalf("expected a deleted FileChanged frame, got %+v", fc)
	}
}
