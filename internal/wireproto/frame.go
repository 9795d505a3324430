// Package wireproto defines the WebSocket wire frame grammar (spec §6) and
// its JSON codec. Frame shapes and the dispatch-on-"type" parsing pattern
// are grounded on victorarias/attn's internal/protocol package, whose
// ParseMessage/WebSocketEvent pair the Coordinator's handleClientMessage
// and the Daemon's inbound frame loop both mirror.
package wireproto

import (
	"encoding/json"
	"fmt"

	"github.com/riftlab/rift/internal/model"
)

// Type is the frame discriminator carried in every frame's "type" field.
type Type string

const (
	TypeJoinRift         Type = "JoinRift"
	TypeLeaveRift        Type = "LeaveRift"
	TypeFileChanged      Type = "FileChanged"
	TypeRiftSnapshot     Type = "RiftSnapshot"
	TypeFileUpdate       Type = "FileUpdate"
	TypeCheckpointCreated Type = "CheckpointCreated"
	TypeUserJoined       Type = "UserJoined"
	TypeUserLeft         Type = "UserLeft"
	TypeConflictDetected Type = "ConflictDetected"
	TypeLagged           Type = "Lagged"
	TypeHeartbeat        Type = "Heartbeat"
	TypeError            Type = "Error"
)

// envelope is only used to sniff the "type" discriminator before decoding
// the full frame-specific payload.
type envelope struct {
	Type Type `json:"type"`
}

// JoinRift (C→S): subscribes the session to rift_id, triggering a snapshot.
type JoinRift struct {
	Type   Type   `json:"type"`
	RiftID string `json:"rift_id"`
}

// LeaveRift (C→S): idempotent unsubscribe.
type LeaveRift struct {
	Type   Type   `json:"type"`
	RiftID string `json:"rift_id"`
}

// FileChanged (C→S): one local edit, content inline.
type FileChanged struct {
	Type      Type   `json:"type"`
	RiftID    string `json:"rift_id"`
	Path      string `json:"path"`
	Content   []byte `json:"content"`
	ClientTS  int64  `json:"client_ts"`
	// MovedFrom is set when the Daemon's watcher observed a rename directly
	// (spec §9 open question: Moved may or may not be emitted by the
	// watcher; the wire format accepts both shapes).
	MovedFrom string `json:"moved_from,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// SnapshotFile is one entry of a RiftSnapshot.
type SnapshotFile struct {
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	// Content is populated inline for small rifts; above the inline
	// budget it is omitted (spec §9 open question). Omitted content can be
	// fetched by path from the Coordinator's checkpoint-blob HTTP endpoint
	// at the snapshot's LastCheckpointID; the Daemon does not fetch it and
	// leaves its local copy of such a path unchanged.
	Content []byte `json:"content,omitempty"`
}

// RiftSnapshot (S→C): emitted once per successful JoinRift.
type RiftSnapshot struct {
	Type              Type           `json:"type"`
	RiftID            string         `json:"rift_id"`
	LastCheckpointID  string         `json:"last_checkpoint_id,omitempty"`
	Files             []SnapshotFile `json:"files"`
}

// FileUpdate (S→C): fan-out of a committed change to other subscribers.
type FileUpdate struct {
	Type         Type   `json:"type"`
	RiftID       string `json:"rift_id"`
	Path         string `json:"path"`
	Content      []byte `json:"content"`
	Author       string `json:"author"`
	ServerTS     int64  `json:"server_ts"`
	CheckpointID string `json:"checkpoint_id"`
	Deleted      bool   `json:"deleted,omitempty"`
	MovedFrom    string `json:"moved_from,omitempty"`
}

// CheckpointCreated (S→C): emitted to the committing author only.
type CheckpointCreated struct {
	Type       Type              `json:"type"`
	Checkpoint model.Checkpoint `json:"checkpoint"`
}

// UserPresence (S→C): UserJoined / UserLeft.
type UserPresence struct {
	Type   Type   `json:"type"`
	RiftID string `json:"rift_id"`
	UserID string `json:"user_id"`
}

// ConflictDetected (S→C): advisory only, never auto-merged (spec §1 Non-goals).
type ConflictDetected struct {
	Type       Type   `json:"type"`
	RiftID     string `json:"rift_id"`
	Path       string `json:"path"`
	LocalHash  string `json:"local_hash"`
	RemoteHash string `json:"remote_hash"`
}

// Lagged (S→C): subscriber dropped for queue overflow; must rejoin.
type Lagged struct {
	Type   Type   `json:"type"`
	RiftID string `json:"rift_id"`
}

// Heartbeat (both directions): empty keepalive frame.
type Heartbeat struct {
	Type Type `json:"type"`
}

// ErrorFrame (S→C): non-fatal; session remains open.
type ErrorFrame struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Parse sniffs the "type" field of data and decodes it into the matching
// concrete frame type, returning it as an any for the caller to type-switch
// on. Mirrors attn's protocol.ParseMessage dispatch-by-discriminator shape.
func Parse(data []byte) (Type, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("wireproto: decoding envelope: %w", err)
	}

	var v any
	switch env.Type {
	case TypeJoinRift:
		v = &JoinRift{}
	case TypeLeaveRift:
		v = &LeaveRift{}
	case TypeFileChanged:
		v = &FileChanged{}
	case TypeRiftSnapshot:
		v = &RiftSnapshot{}
	case TypeFileUpdate:
		v = &FileUpdate{}
	case TypeCheckpointCreated:
		v = &CheckpointCreated{}
	case TypeUserJoined, TypeUserLeft:
		v = &UserPresence{}
	case TypeConflictDetected:
		v = &ConflictDetected{}
	case TypeLagged:
		v = &Lagged{}
	case TypeHeartbeat:
		v = &Heartbeat{}
	case TypeError:
		v = &ErrorFrame{}
	default:
		return env.Type, nil, fmt.Errorf("wireproto: unknown frame type %q", env.Type)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return env.Type, nil, fmt.Errorf("wireproto: decoding %s frame: %w", env.Type, err)
	}
	return env.Type, v, nil
}

// Encode marshals a frame to its wire JSON form.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
