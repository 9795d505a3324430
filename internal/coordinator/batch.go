package coordinator

import (
	"context"
	"time"

	"github.com/riftlab/rift/internal/wireproto"
)

// batcher coalesces FileChanged frames from one (session, rift) pair that
// arrive within the debounce window into a single Checkpoint (spec §4.1
// "Batching": "rapid successive edits to the same file within the debounce
// window are merged into a single checkpoint rather than one per edit").
// Grounded on the teacher's engine.go debounce-before-act loop, generalized
// from a single-file timer to a per-key timer registry.
type batcher struct {
	window time.Duration
	timer  *time.Timer
	frames []*wireproto.FileChanged
}

func batchKey(sessionID, riftID string) string { return sessionID + "/" + riftID }

// enqueueForBatch appends f to the batch for (sess, riftID), (re)starting the
// debounce timer. The batch flushes — committing every accumulated frame as
// one Checkpoint — once window elapses with no further arrivals.
func (s *Server) enqueueForBatch(ctx context.Context, sess *Session, f *wireproto.FileChanged) {
	window := time.Duration(s.cfg.DebounceWindowMS) * time.Millisecond
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	key := batchKey(sess.id, f.RiftID)

	s.batchMu.Lock()
	b, ok := s.batchers[key]
	if !ok {
		b = &batcher{window: window}
		s.batchers[key] = b
	}
	b.frames = append(b.frames, f)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(window, func() {
		s.flushBatch(context.Background(), sess, f.RiftID, key)
	})
	s.batchMu.Unlock()
}

func (s *Server) flushBatch(ctx context.Context, sess *Session, riftID, key string) {
	s.batchMu.Lock()
	b, ok := s.batchers[key]
	if !ok {
		s.batchMu.Unlock()
		return
	}
	frames := b.frames
	delete(s.batchers, key)
	s.batchMu.Unlock()

	if len(frames) == 0 {
		return
	}
	if err := s.commitBatch(ctx, sess, riftID, frames); err != nil {
		s.sendError(sess, err)
	}
}
