// Package store defines the Store contract (spec §1, §6): the durable
// entities (users, projects, rifts, rift_files, checkpoints,
// user_rift_state) and content blobs, treated as an external dependency
// with a fixed operation set. internal/store/mem and internal/store/pg
// provide concrete implementations.
package store

import (
	"context"
	"errors"

	"github.com/riftlab/rift/internal/model"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// ErrNameConflict is returned when a unique-name constraint is violated.
var ErrNameConflict = errors.New("store: name conflict")

// ErrNotMember is returned when a caller is not a member of the target project.
var ErrNotMember = errors.New("store: not a member")

// Store is the fixed operation set the Coordinator depends on.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)

	// Projects
	CreateProject(ctx context.Context, callerUserID string, name, description string) (model.Project, model.Rift, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	IsMember(ctx context.Context, projectID, userID string) (bool, error)

	// Rifts
	ListRifts(ctx context.Context, projectID string) ([]model.Rift, error)
	GetRift(ctx context.Context, id string) (model.Rift, error)
	ListCollaborators(ctx context.Context, riftID string) ([]string, error)

	// UserRiftState
	SwitchRift(ctx context.Context, userID, projectID, riftID string) error
	CurrentRift(ctx context.Context, userID, projectID string) (string, error)

	// RiftFiles — the authoritative per-path content hash for a rift.
	GetRiftFiles(ctx context.Context, riftID string) ([]model.RiftFile, error)
	GetRiftFile(ctx context.Context, riftID, path string) (model.RiftFile, bool, error)
	// ApplyChange mutates RiftFile rows to match a single FileChange,
	// atomically with appending the owning Checkpoint (spec I3, I2).
	// Implementations must perform this under the per-rift write lock.
	ApplyChange(ctx context.Context, riftID string, change model.FileChange) error

	// Checkpoints — an immutable, parent-linked chain per rift (I2, I4/P4).
	LastCheckpointID(ctx context.Context, riftID string) (string, bool, error)
	CreateCheckpoint(ctx context.Context, cp model.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (model.Checkpoint, error)
	History(ctx context.Context, riftID string, limit int) ([]model.Checkpoint, error)

	// Locking — per-rift write lock serializing the commit algorithm's
	// steps 3-5 (spec §4.1, §5): read current hash, read parent, create
	// checkpoint + update RiftFile, all inside one critical section.
	WithRiftLock(ctx context.Context, riftID string, fn func(ctx context.Context) error) error
}
