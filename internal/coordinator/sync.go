package coordinator

import (
	"context"
	"fmt"

	"github.com/riftlab/rift/internal/rifterr"
	"github.com/riftlab/rift/internal/wireproto"
)

// inlineSnapshotByteBudget resolves the §9 open question ("whether
// RiftSnapshot includes file contents inline or only hashes with a
// follow-up fetch") in favor of inlining small rifts and falling back to
// by-reference above this total-bytes budget, fetched via
// GET /checkpoints/{id}/blob/{path}.
const inlineSnapshotByteBudget = 4 * 1024 * 1024 // 4 MiB

// handleFrame dispatches one decoded inbound frame for sess. Mirrors
// victorarias/attn's handleClientMessage cmd-switch shape.
func (s *Server) handleFrame(ctx context.Context, sess *Session, data []byte) {
	typ, frame, err := wireproto.Parse(data)
	if err != nil {
		s.sendError(sess, fmt.Errorf("%w: %v", rifterr.ErrProtocol, err))
		return
	}

	switch typ {
	case wireproto.TypeJoinRift:
		s.handleJoinRift(ctx, sess, frame.(*wireproto.JoinRift))
	case wireproto.TypeLeaveRift:
		s.handleLeaveRift(sess, frame.(*wireproto.LeaveRift))
	case wireproto.TypeFileChanged:
		s.handleFileChanged(ctx, sess, frame.(*wireproto.FileChanged))
	case wireproto.TypeHeartbeat:
		// no-op: the ping/pong machinery already answers liveness checks.
	default:
		s.sendError(sess, fmt.Errorf("%w: unexpected frame type %q from client", rifterr.ErrProtocol, typ))
	}
}

func (s *Server) sendError(sess *Session, err error) {
	wire := rifterr.ToWire(err)
	data, _ := wireproto.Encode(&wireproto.ErrorFrame{Type: wireproto.TypeError, Code: string(wire.Code), Message: wire.Message})
	sess.TrySend(data)
}

// handleJoinRift implements §4.1 "State replay on JoinRift": snapshot
// capture and subscription activation happen inside one critical section
// (the rift's write lock) so no frame committed before the snapshot is
// missing from it, and no frame committed after is duplicated (P2).
func (s *Server) handleJoinRift(ctx context.Context, sess *Session, f *wireproto.JoinRift) {
	rift, err := s.store.GetRift(ctx, f.RiftID)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	member, err := s.store.IsMember(ctx, rift.ProjectID, sess.userID)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	if !member {
		s.sendError(sess, rifterr.ErrPermissionDenied)
		return
	}

	h := s.hubs.Get(f.RiftID)

	var snapshot wireproto.RiftSnapshot
	err = s.store.WithRiftLock(ctx, f.RiftID, func(ctx context.Context) error {
		snap, err := s.captureSnapshot(ctx, f.RiftID)
		if err != nil {
			return err
		}
		snapshot = snap
		h.Join(sess) // subscription activation inside the same critical section
		return nil
	})
	if err != nil {
		s.sendError(sess, err)
		return
	}

	sess.markSubscribed(f.RiftID)

	data, _ := wireproto.Encode(&snapshot)
	sess.TrySend(data)

	_ = s.store.SwitchRift(ctx, sess.userID, rift.ProjectID, f.RiftID)

	joined, _ := wireproto.Encode(&wireproto.UserPresence{Type: wireproto.TypeUserJoined, RiftID: f.RiftID, UserID: sess.userID})
	h.Publish(joined, sess.id)
}

func (s *Server) handleLeaveRift(sess *Session, f *wireproto.LeaveRift) {
	h := s.hubs.Get(f.RiftID)
	h.Leave(sess.id)
	sess.markUnsubscribed(f.RiftID)

	left, _ := wireproto.Encode(&wireproto.UserPresence{Type: wireproto.TypeUserLeft, RiftID: f.RiftID, UserID: sess.userID})
	h.Publish(left, sess.id)
}

// handleFileChanged batches the frame with any other FileChanged frames
// that arrive within the debounce window for the same (session, rift),
// then runs the commit algorithm once the batch window closes (§4.1
// Batching). See batch.go.
func (s *Server) handleFileChanged(ctx context.Context, sess *Session, f *wireproto.FileChanged) {
	if !sess.isSubscribed(f.RiftID) {
		s.sendError(sess, rifterr.ErrPermissionDenied)
		return
	}
	s.enqueueForBatch(ctx, sess, f)
}

// captureSnapshot reads the current RiftFile set and last checkpoint id for
// riftID. Must be called with the rift's write lock held by the caller
// (state-replay) or with an implicit read-lock semantics acceptable for a
// plain GET /rifts/{id}/state request (snapshot staleness there is bounded
// by eventual re-fetch, unlike the JoinRift critical section).
func (s *Server) captureSnapshot(ctx context.Context, riftID string) (wireproto.RiftSnapshot, error) {
	files, err := s.store.GetRiftFiles(ctx, riftID)
	if err != nil {
		return wireproto.RiftSnapshot{}, err
	}
	lastCP, _, err := s.store.LastCheckpointID(ctx, riftID)
	if err != nil {
		return wireproto.RiftSnapshot{}, err
	}

	var totalBytes int
	out := make([]wireproto.SnapshotFile, 0, len(files))
	for _, f := range files {
		sf := wireproto.SnapshotFile{Path: f.Path, Hash: f.ContentHash}
		out = append(out, sf)
	}
	// Inline content only while the running total stays under budget; once
	// exceeded the remaining files carry hash-only entries (§9).
	for i := range out {
		if totalBytes >= inlineSnapshotByteBudget {
			break
		}
		content, err := s.blobs.Get(out[i].Hash)
		if err != nil {
			continue // blob missing is a storage anomaly, not fatal to snapshot delivery
		}
		out[i].Content = content
		totalBytes += len(content)
	}

	return wireproto.RiftSnapshot{
		Type:             wireproto.TypeRiftSnapshot,
		RiftID:           riftID,
		LastCheckpointID: lastCP,
		Files:            out,
	}, nil
}

