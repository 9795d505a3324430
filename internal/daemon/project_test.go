package daemon

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/riftlab/rift/internal/config"
)

func testProject(t *testing.T) *TrackedProject {
	t.Helper()
	cfg := &config.DaemonConfig{
		SuppressionWindowMS: 50,
		IgnorePatterns:      []string{".git/"},
	}
	return newTrackedProject("proj-1", "widgets", t.TempDir(), "rift-1", cfg, zerolog.Nop())
}

func TestSuppressionMarksThenExpires(t *testing.T) {
	p := testProject(t)

	if p.isSuppressed("main.go") {
		t.Fatal("expected no suppression before marking")
	}
	p.markSuppressed("main.go")
	if !p.isSuppressed("main.go") {
		t.Fatal("expected suppression immediately after marking")
	}

	time.Sleep(120 * time.Millisecond)
	if p.isSuppressed("main.go") {
		t.Fatal("expected suppression entry to expire after the window")
	}
}

func TestLastHashLifecycle(t *testing.T) {
	p := testProject(t)

	if _, ok := p.getLastHash("main.go"); ok {
		t.Fatal("expected no last hash for an untracked path")
	}
	p.setLastHash("main.go", "abc123")
	if got, ok := p.getLastHash("main.go"); !ok || got != "abc123" {
		t.Fatalf("expected hash abc123, got %q ok=%v", got, ok)
	}
	p.forgetHash("main.go")
	if _, ok := p.getLastHash("main.go"); ok {
		t.Fatal("expected hash to be forgotten")
	}
}

func TestConnLifecycle(t *testing.T) {
	p := testProject(t)
	if p.getConn() != nil {
		t.Fatal("expected no connection initially")
	}
	p.setConn(nil) // must not panic
	if p.getConn() != nil {
		t.Fatal("expected connection to remain nil")
	}
}
