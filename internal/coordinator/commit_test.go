package coordinator

import (
	"testing"

	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/wireproto"
)

func TestDiffRiftFileCreated(t *testing.T) {
	f := &wireproto.FileChanged{Path: "main.go"}
	change, changed := diffRiftFile(f, model.RiftFile{}, false, "hash1")
	if !changed {
		t.Fatal("expected a new file to be a change")
	}
	if change.ChangeType != model.ChangeCreated {
		t.Fatalf("expected ChangeCreated, got %v", change.ChangeType)
	}
	if change.NewContentHash != "hash1" {
		t.Fatalf("expected hash1, got %s", change.NewContentHash)
	}
}

func TestDiffRiftFileUnchangedIsNoOp(t *testing.T) {
	f := &wireproto.FileChanged{Path: "main.go"}
	current := model.RiftFile{Path: "main.go", ContentHash: "same"}
	_, changed := diffRiftFile(f, current, true, "same")
	if changed {
		t.Fatal("expected identical content hash to be a no-op")
	}
}

func TestDiffRiftFileModified(t *testing.T) {
	f := &wireproto.FileChanged{Path: "main.go"}
	current := model.RiftFile{Path: "main.go", ContentHash: "old"}
	change, changed := diffRiftFile(f, current, true, "new")
	if !changed {
		t.Fatal("expected a content hash change to be a change")
	}
	if change.ChangeType != model.ChangeModified {
		t.Fatalf("expected ChangeModified, got %v", change.ChangeType)
	}
}

func TestDiffRiftFileMoved(t *testing.T) {
	f := &wireproto.FileChanged{Path: "new.go", MovedFrom: "old.go"}
	change, changed := diffRiftFile(f, model.RiftFile{}, false, "hash1")
	if !changed {
		t.Fatal("expected a move to be a change")
	}
	if change.ChangeType != model.ChangeMoved {
		t.Fatalf("expected ChangeMoved, got %v", change.ChangeType)
	}
	if change.MovedFrom != "old.go" {
		t.Fatalf("expected MovedFrom old.go, got %s", change.MovedFrom)
	}
}

func TestDiffRiftFileDeletedKnownFile(t *testing.T) {
	f := &wireproto.FileChanged{Path: "main.go", Deleted: true}
	current := model.RiftFile{Path: "main.go", ContentHash: "old"}
	change, changed := diffRiftFile(f, current, true, "")
	if !changed {
		t.Fatal("expected a delete of a tracked file to be a change")
	}
	if change.ChangeType != model.ChangeDeleted {
		t.Fatalf("expected ChangeDeleted, got %v", change.ChangeType)
	}
}

func TestDiffRiftFileDeletedUnknownFileIsNoOp(t *testing.T) {
	f := &wireproto.FileChanged{Path: "ghost.go", Deleted: true}
	_, changed := diffRiftFile(f, model.RiftFile{}, false, "")
	if changed {
		t.Fatal("expected deleting an untracked path to be a no-op")
	}
}

func TestBatchKeyScopedPerSessionAndRift(t *testing.T) {
	a := batchKey("sess-1", "rift-1")
	b := batchKey("sess-1", "rift-2")
	c := batchKey("sess-2", "rift-1")
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct keys, got %q %q %q", a, b, c)
	}
}
