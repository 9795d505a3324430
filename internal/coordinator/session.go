package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/riftlab/rift/internal/hub"
	"github.com/riftlab/rift/internal/wireproto"
)

// sendQueueCapacity bounds each session's outbound frame queue. A session
// whose queue fills is dropped by its Hub (spec §4.1 backpressure policy).
const sendQueueCapacity = 1024

// heartbeatInterval and heartbeatMisses implement "heartbeat every 30s,
// disconnect after two missed" (spec §5).
const (
	heartbeatInterval = 30 * time.Second
	heartbeatMisses   = 2
)

// Session is one authenticated WebSocket connection (spec §3: in-memory,
// Coordinator-only, lifetime = WebSocket lifetime). Grounded on
// victorarias/attn's wsClient (send/recv channel pair, read pump / write
// pump / ping loop trio) and rybkr/gitvista's per-connection write mutex.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn
	log    zerolog.Logger

	send chan []byte   // outbound queue, drained by writePump
	recv chan []byte   // inbound queue, drained by msgPump (FIFO processing)
	done chan struct{} // closed once, signals writePump/pingLoop to stop

	mu               sync.Mutex
	subscribedRifts  map[string]bool
	closed           bool
	missedHeartbeats int
}

func newSession(id, userID string, conn *websocket.Conn, log zerolog.Logger) *Session {
	return &Session{
		id:              id,
		userID:          userID,
		conn:            conn,
		log:             log,
		send:            make(chan []byte, sendQueueCapacity),
		recv:            make(chan []byte, sendQueueCapacity),
		done:            make(chan struct{}),
		subscribedRifts: make(map[string]bool),
	}
}

// ID implements hub.Subscriber.
func (s *Session) ID() string { return s.id }

// TrySend implements hub.Subscriber: a non-blocking enqueue. Guarded by mu
// rather than a closed-channel select: Publish (internal/hub) snapshots its
// subscribers outside any per-session lock, so a session that closes mid-
// broadcast must not let TrySend race a close of s.send (send on closed
// channel panics and would crash the Coordinator on otherwise valid input).
func (s *Session) TrySend(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// OnLagged implements hub.Subscriber: the hub dropped this session for queue
// overflow on riftID. The client must re-JoinRift to resync (spec §4.1).
func (s *Session) OnLagged(riftID string) {
	s.markUnsubscribed(riftID)
	data, err := wireproto.Encode(&wireproto.Lagged{Type: wireproto.TypeLagged, RiftID: riftID})
	if err != nil {
		return
	}
	s.TrySend(data)
}

func (s *Session) markSubscribed(riftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribedRifts[riftID] = true
}

func (s *Session) markUnsubscribed(riftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribedRifts, riftID)
}

func (s *Session) isSubscribed(riftID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribedRifts[riftID]
}

func (s *Session) subscribedRiftIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subscribedRifts))
	for id := range s.subscribedRifts {
		ids = append(ids, id)
	}
	return ids
}

// writePump owns the socket's write side exclusively (spec §9 "WebSocket
// task pairs... the writer owns the socket-write side exclusively,
// preventing interleaved frames").
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case msg := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("session write failed")
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readPump is the sole reader of the socket, enqueueing frames for ordered
// processing by msgPump (mirrors attn's wsReadPump/wsMsgPump split).
func (s *Session) readPump(ctx context.Context, onClose func()) {
	defer func() {
		close(s.recv)
		onClose()
	}()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		select {
		case s.recv <- data:
		default:
			s.log.Warn().Msg("session recv buffer full, dropping inbound frame")
		}
	}
}

func (s *Session) msgPump(ctx context.Context, handle func(ctx context.Context, s *Session, data []byte)) {
	for data := range s.recv {
		handle(ctx, s, data)
	}
}

// pingLoop implements the heartbeat/disconnect-after-two-missed policy.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.missedHeartbeats++
				s.log.Debug().Int("missed", s.missedHeartbeats).Msg("heartbeat missed")
				if s.missedHeartbeats >= heartbeatMisses {
					s.closeWithStatus(websocket.StatusGoingAway, "heartbeat timeout")
					return
				}
				continue
			}
			s.missedHeartbeats = 0
		}
	}
}

// closeOnce marks the session closed (so TrySend starts returning false),
// signals the write/ping loops to stop via done, and closes the socket.
// Never closes s.send — Publish's snapshot-then-TrySend pattern in
// internal/hub means some other goroutine may still be holding a reference
// to this session when it closes, and a closed send channel would panic.
func (s *Session) closeOnce() {
	s.closeWithStatus(websocket.StatusNormalClosure, "")
}

func (s *Session) closeWithStatus(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.conn.Close(code, reason)
}

var _ hub.Subscriber = (*Session)(nil)
