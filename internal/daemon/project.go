package daemon

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/riftlab/rift/internal/config"
)

// TrackedProject is one project the Daemon is syncing (spec §4.2: "One
// logical watcher per local_root"). Fields are grouped the way the
// teacher's engine.LogManager kept one *os.File per concern — here one
// watcher/connection/suppression set per project.
type TrackedProject struct {
	ID        string
	Name      string
	LocalRoot string
	RiftID    string

	cfg *config.DaemonConfig
	log zerolog.Logger

	ignore *matcher

	mu       sync.Mutex
	lastHash map[string]string // path -> last hash this daemon emitted or applied

	// suppress holds paths this daemon itself just wrote, with a bounded
	// per-entry expiry (spec §4.2 "Echo suppression" / §9 "time-indexed
	// concurrent map with periodic eviction"). Grounded on the DOMAIN STACK
	// choice of hashicorp/golang-lru's expirable.LRU for exactly this shape.
	suppress *lru.LRU[string, struct{}]

	conn   *websocket.Conn
	connMu sync.Mutex

	outbound chan []byte // FileChanged frames awaiting send over the active connection

	cancel context.CancelFunc
	done   chan struct{}
}

// outboundQueueCapacity bounds how many unsent local edits a project can
// accumulate while reconnecting; once it is full, emit drops further frames
// instead of blocking the watcher pipeline.
const outboundQueueCapacity = 256

func newTrackedProject(id, name, localRoot, riftID string, cfg *config.DaemonConfig, log zerolog.Logger) *TrackedProject {
	window := time.Duration(cfg.SuppressionWindowMS) * time.Millisecond
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &TrackedProject{
		ID:        id,
		Name:      name,
		LocalRoot: localRoot,
		RiftID:    riftID,
		cfg:       cfg,
		log:       log.With().Str("project", name).Logger(),
		ignore:    newMatcher(cfg.IgnorePatterns),
		lastHash:  make(map[string]string),
		suppress:  lru.NewLRU[string, struct{}](4096, nil, window),
		outbound:  make(chan []byte, outboundQueueCapacity),
		done:      make(chan struct{}),
	}
}

// markSuppressed records that the next watcher event for path is our own
// write, must be called before the write lands on disk (spec §4.2: "inserts
// (path, expires_at) into its suppression map before the write").
func (p *TrackedProject) markSuppressed(path string) {
	p.suppress.Add(path, struct{}{})
}

func (p *TrackedProject) isSuppressed(path string) bool {
	_, ok := p.suppress.Get(path)
	return ok
}

func (p *TrackedProject) getLastHash(path string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.lastHash[path]
	return h, ok
}

func (p *TrackedProject) setLastHash(path, hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastHash[path] = hash
}

func (p *TrackedProject) forgetHash(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastHash, path)
}

func (p *TrackedProject) setConn(conn *websocket.Conn) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	p.conn = conn
}

func (p *TrackedProject) getConn() *websocket.Conn {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.conn
}
