package client

import (
	"fmt"
	"testing"

	"github.com/riftlab/rift/internal/rifterr"
)

func TestExitCodeForNil(t *testing.T) {
	if got := ExitCodeFor(nil); got != ExitSuccess {
		t.Fatalf("expected ExitSuccess, got %d", got)
	}
}

func TestExitCodeForWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("%w: spawning daemon: connection refused", rifterr.ErrDaemonUnreachable)
	if got := ExitCodeFor(err); got != ExitDaemonUnreachable {
		t.Fatalf("expected ExitDaemonUnreachable, got %d", got)
	}

	err = fmt.Errorf("%w: project widgets", rifterr.ErrNotFound)
	if got := ExitCodeFor(err); got != ExitCoordinatorError {
		t.Fatalf("expected ExitCoordinatorError, got %d", got)
	}
}

func TestExitCodeForWireDecodedError(t *testing.T) {
	err := decodeWireErrorForTest(rifterr.CodeDaemonUnreachable, "no route to host")
	if got := ExitCodeFor(err); got != ExitDaemonUnreachable {
		t.Fatalf("expected ExitDaemonUnreachable, got %d", got)
	}

	err = decodeWireErrorForTest(rifterr.CodeNameConflict, "widgets already exists")
	if got := ExitCodeFor(err); got != ExitCoordinatorError {
		t.Fatalf("expected ExitCoordinatorError, got %d", got)
	}
}

func TestExitCodeForUnknownIsUserError(t *testing.T) {
	err := fmt.Errorf("something went sideways")
	if got := ExitCodeFor(err); got != ExitUserError {
		t.Fatalf("expected ExitUserError, got %d", got)
	}
}

// decodeWireErrorForTest mirrors the shape decodeWireError produces from a
// Wire{Code, Message} response without needing a real *http.Response.
func decodeWireErrorForTest(code rifterr.Code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}
