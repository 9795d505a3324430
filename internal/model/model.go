// Package model defines the durable entities of the rift data model (spec §3).
package model

import "time"

// Role is a User's authorization level.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// User is a unique identity. Unique on Username and Email.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Project is a named collection of rifts with a membership set.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Members     []string  `json:"members"` // user ids
}

// Rift is a named, project-scoped collaboration dimension.
type Rift struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Name           string    `json:"name"`
	ParentRiftID   *string   `json:"parent_rift_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
	IsConflictRift bool      `json:"is_conflict_rift"`
}

// MainRiftName is the name given to the rift automatically created with a project.
const MainRiftName = "main"

// RiftFile is the current authoritative content hash for a path in a rift.
// Primary key (RiftID, Path).
type RiftFile struct {
	RiftID      string `json:"rift_id"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
}

// ChangeType enumerates the kind of mutation a FileChange records.
type ChangeType string

const (
	ChangeCreated  ChangeType = "Created"
	ChangeModified ChangeType = "Modified"
	ChangeDeleted  ChangeType = "Deleted"
	ChangeMoved    ChangeType = "Moved"
)

// FileChange is one path mutation within a Checkpoint. Content bodies are
// stored content-addressed; the change record carries only the hash.
type FileChange struct {
	Path           string     `json:"path"`
	ChangeType     ChangeType `json:"change_type"`
	MovedFrom      string     `json:"moved_from,omitempty"`
	NewContentHash string     `json:"new_content_hash,omitempty"`
}

// Checkpoint is an immutable, parent-linked commit of one or more FileChanges.
type Checkpoint struct {
	ID                 string       `json:"id"`
	RiftID             string       `json:"rift_id"`
	AuthorUserID       string       `json:"author_user_id"`
	Timestamp          time.Time    `json:"timestamp"`
	ParentCheckpointID *string      `json:"parent_checkpoint_id,omitempty"`
	Message            string       `json:"message,omitempty"`
	Changes            []FileChange `json:"changes"`
}

// UserRiftState tracks the single current rift a user has selected within a project.
type UserRiftState struct {
	UserID        string `json:"user_id"`
	ProjectID     string `json:"project_id"`
	CurrentRiftID string `json:"current_rift_id"`
}
