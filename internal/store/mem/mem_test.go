package mem

import (
	"context"
	"testing"

	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/store"
)

func TestCreateProjectSeedsMainRift(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, model.User{Username: "alice"})
	project, rift, err := s.CreateProject(ctx, u.ID, "widgets", "a widget factory")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if rift.Name != model.MainRiftName {
		t.Fatalf("expected main rift name %q, got %q", model.MainRiftName, rift.Name)
	}

	rifts, err := s.ListRifts(ctx, project.ID)
	if err != nil || len(rifts) != 1 {
		t.Fatalf("expected exactly 1 rift, got %d (err=%v)", len(rifts), err)
	}
}

func TestCreateProjectNameConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, model.User{Username: "alice"})

	if _, _, err := s.CreateProject(ctx, u.ID, "widgets", ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := s.CreateProject(ctx, u.ID, "widgets", "")
	if err != store.ErrNameConflict {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
}

func TestApplyChangeAndGetRiftFile(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, model.User{Username: "alice"})
	_, rift, _ := s.CreateProject(ctx, u.ID, "widgets", "")

	err := s.ApplyChange(ctx, rift.ID, model.FileChange{
		Path: "main.go", ChangeType: model.ChangeCreated, NewContentHash: "abc123",
	})
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	f, ok, err := s.GetRiftFile(ctx, rift.ID, "main.go")
	if err != nil || !ok {
		t.Fatalf("expected file present, ok=%v err=%v", ok, err)
	}
	if f.ContentHash != "abc123" {
		t.Fatalf("expected hash abc123, got %s", f.ContentHash)
	}

	err = s.ApplyChange(ctx, rift.ID, model.FileChange{
		Path: "main.go", ChangeType: model.ChangeDeleted,
	})
	if err != nil {
		t.Fatalf("ApplyChange delete: %v", err)
	}
	_, ok, _ = s.GetRiftFile(ctx, rift.ID, "main.go")
	if ok {
		t.Fatal("expected file to be gone after delete")
	}
}

func TestApplyChangeMoved(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, model.User{Username: "alice"})
	_, rift, _ := s.CreateProject(ctx, u.ID, "widgets", "")

	s.ApplyChange(ctx, rift.ID, model.FileChange{
		Path: "old.go", ChangeType: model.ChangeCreated, NewContentHash: "h1",
	})
	err := s.ApplyChange(ctx, rift.ID, model.FileChange{
		Path: "new.go", MovedFrom: "old.go", ChangeType: model.ChangeMoved, NewContentHash: "h1",
	})
	if err != nil {
		t.Fatalf("ApplyChange move: %v", err)
	}

	if _, ok, _ := s.GetRiftFile(ctx, rift.ID, "old.go"); ok {
		t.Fatal("expected old path to be removed after move")
	}
	if f, ok, _ := s.GetRiftFile(ctx, rift.ID, "new.go"); !ok || f.ContentHash != "h1" {
		t.Fatalf("expected new path present with hash h1, got ok=%v f=%+v", ok, f)
	}
}

func TestCheckpointChainOrderAndLastID(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, model.User{Username: "alice"})
	_, rift, _ := s.CreateProject(ctx, u.ID, "widgets", "")

	if _, ok, err := s.LastCheckpointID(ctx, rift.ID); ok || err != nil {
		t.Fatalf("expected no checkpoint yet, ok=%v err=%v", ok, err)
	}

	if err := s.CreateCheckpoint(ctx, model.Checkpoint{ID: "cp1", RiftID: rift.ID}); err != nil {
		t.Fatalf("CreateCheckpoint cp1: %v", err)
	}
	if err := s.CreateCheckpoint(ctx, model.Checkpoint{ID: "cp2", RiftID: rift.ID}); err != nil {
		t.Fatalf("CreateCheckpoint cp2: %v", err)
	}

	lastID, ok, err := s.LastCheckpointID(ctx, rift.ID)
	if err != nil || !ok || lastID != "cp2" {
		t.Fatalf("expected last checkpoint cp2, got %q ok=%v err=%v", lastID, ok, err)
	}

	history, err := s.History(ctx, rift.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].ID != "cp2" || history[1].ID != "cp1" {
		t.Fatalf("expected [cp2, cp1] most-recent-first, got %+v", history)
	}
}

func TestWithRiftLockSerializesPerRift(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, model.User{Username: "alice"})
	_, rift, _ := s.CreateProject(ctx, u.ID, "widgets", "")

	var order []int
	done := make(chan struct{}, 2)
	go func() {
		s.WithRiftLock(ctx, rift.ID, func(ctx context.Context) error {
			order = append(order, 1)
			return nil
		})
		done <- struct{}{}
	}()
	<-done
	s.WithRiftLock(ctx, rift.ID, func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	if len(order) != 2 {
		t.Fatalf("expected both critical sections to run, got %v", order)
	}
}

func TestSwitchRiftRequiresMembership(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, _ := s.CreateUser(ctx, model.User{Username: "alice"})
	outsider, _ := s.CreateUser(ctx, model.User{Username: "bob"})
	project, rift, _ := s.CreateProject(ctx, owner.ID, "widgets", "")

	err := s.SwitchRift(ctx, outsider.ID, project.ID, rift.ID)
	if err != store.ErrNotMember {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	if err := s.SwitchRift(ctx, owner.ID, project.ID, rift.ID); err != nil {
		t.Fatalf("owner switch should succeed: %v", err)
	}
	current, err := s.CurrentRift(ctx, owner.ID, project.ID)
	if err != nil || current != rift.ID {
		t.Fatalf("expected current rift %s, got %s (err=%v)", rift.ID, current, err)
	}
}
