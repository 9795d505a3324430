package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"nhooyr.io/websocket"

	"github.com/riftlab/rift/internal/retry"
	"github.com/riftlab/rift/internal/wireproto"
)

// reconnectSchedule is spec §4.2's "exponential backoff (1s, 2s, 5s, 10s,
// 30s max)", expressed with internal/retry.Schedule the same way
// internal/retry's doc comment earmarks it for this exact use.
var reconnectSchedule = retry.Schedule(
	1*time.Second, 2*time.Second, 5*time.Second, 10*time.Second, 30*time.Second,
)

// runSync owns p's WebSocket connection to the Coordinator for its
// lifetime: dial, JoinRift, drain outbound, read inbound, and reconnect
// with backoff on failure (spec §4.2 "Reconnect"). Runs until ctx is
// cancelled.
func (d *Daemon) runSync(ctx context.Context, p *TrackedProject) {
	defer close(p.done)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := d.syncOnce(ctx, p)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("rift connection lost, reconnecting")
		}

		delay := reconnectSchedule.Next(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// syncOnce dials, joins the rift, and pumps frames until the connection
// fails or ctx is cancelled. Returns nil only when ctx is cancelled.
func (d *Daemon) syncOnce(ctx context.Context, p *TrackedProject) error {
	header := http.Header{}
	if tok := d.credential(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, _, err := websocket.Dial(ctx, d.syncURL(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dialing coordinator: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	p.setConn(conn)
	defer p.setConn(nil)

	join, _ := wireproto.Encode(&wireproto.JoinRift{Type: wireproto.TypeJoinRift, RiftID: p.RiftID})
	if err := conn.Write(ctx, websocket.MessageText, join); err != nil {
		return fmt.Errorf("sending JoinRift: %w", err)
	}

	errCh := make(chan error, 2)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() { errCh <- d.pumpOutbound(connCtx, p, conn) }()
	go func() { errCh <- d.pumpInbound(connCtx, p, conn) }()

	return <-errCh
}

func (d *Daemon) pumpOutbound(ctx context.Context, p *TrackedProject, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-p.outbound:
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				// Put the frame back so it isn't silently lost across reconnects.
				select {
				case p.outbound <- frame:
				default:
				}
				return fmt.Errorf("writing frame: %w", err)
			}
		}
	}
}

func (d *Daemon) pumpInbound(ctx context.Context, p *TrackedProject, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		typ, frame, err := wireproto.Parse(data)
		if err != nil {
			p.log.Warn().Err(err).Msg("dropping malformed inbound frame")
			continue
		}
		switch typ {
		case wireproto.TypeRiftSnapshot:
			d.applySnapshot(p, frame.(*wireproto.RiftSnapshot))
		case wireproto.TypeFileUpdate:
			d.applyFileUpdate(p, frame.(*wireproto.FileUpdate))
		case wireproto.TypeConflictDetected:
			cd := frame.(*wireproto.ConflictDetected)
			p.log.Warn().Str("path", cd.Path).Str("local", cd.LocalHash).Str("remote", cd.RemoteHash).
				Msg("conflict detected; no automatic merge")
		case wireproto.TypeLagged:
			p.log.Warn().Msg("dropped by coordinator for lag, rejoining")
			rejoin, _ := wireproto.Encode(&wireproto.JoinRift{Type: wireproto.TypeJoinRift, RiftID: p.RiftID})
			select {
			case p.outbound <- rejoin:
			default:
			}
		case wireproto.TypeError:
			ef := frame.(*wireproto.ErrorFrame)
			p.log.Warn().Str("code", ef.Code).Str("message", ef.Message).Msg("coordinator reported an error")
		case wireproto.TypeHeartbeat:
		}
	}
}

// applySnapshot diffs the just-joined snapshot against local state
// path-by-path (spec §4.2 "Reconnect": writes down remote changes,
// re-emits local paths whose hash differs).
func (d *Daemon) applySnapshot(p *TrackedProject, snap *wireproto.RiftSnapshot) {
	for _, f := range snap.Files {
		localHash, tracked := p.getLastHash(f.Path)
		if tracked && localHash == f.Hash {
			continue
		}
		if len(f.Content) > 0 {
			d.writeInbound(p, f.Path, f.Content)
			continue
		}
		// Hash-only entry above the inline budget: trust the remote version
		// is authoritative post-reconnect and leave the local copy; a normal
		// FileUpdate will arrive for subsequent edits.
	}
}

func (d *Daemon) applyFileUpdate(p *TrackedProject, upd *wireproto.FileUpdate) {
	if upd.Deleted {
		p.markSuppressed(upd.Path)
		_ = os.Remove(filepath.Join(p.LocalRoot, upd.Path))
		p.forgetHash(upd.Path)
		return
	}
	if upd.MovedFrom != "" {
		p.markSuppressed(upd.MovedFrom)
		_ = os.Remove(filepath.Join(p.LocalRoot, upd.MovedFrom))
		p.forgetHash(upd.MovedFrom)
	}
	d.writeInbound(p, upd.Path, upd.Content)
}

// writeInbound implements spec §4.2 "Apply inbound FileUpdate": suppress
// before write, write atomically (temp + rename), record the new hash.
func (d *Daemon) writeInbound(p *TrackedProject, relPath string, content []byte) {
	p.markSuppressed(relPath)

	full := filepath.Join(p.LocalRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		p.log.Warn().Err(err).Str("path", relPath).Msg("creating parent dir for inbound write")
		return
	}
	tmp := full + ".rift-tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		p.log.Warn().Err(err).Str("path", relPath).Msg("writing inbound content")
		return
	}
	if err := os.Rename(tmp, full); err != nil {
		p.log.Warn().Err(err).Str("path", relPath).Msg("finalizing inbound write")
		return
	}
	p.setLastHash(relPath, sha256Hex(content))
}

// emit enqueues a local edit for send on p's active connection. Non-
// blocking: if the outbound queue is full the frame is dropped (a future
// reconnect snapshot diff will recover it, per §4.2's reconnect recovery).
func (d *Daemon) emit(p *TrackedProject, f *wireproto.FileChanged) {
	data, err := wireproto.Encode(f)
	if err != nil {
		return
	}
	select {
	case p.outbound <- data:
	default:
		p.log.Warn().Str("path", f.Path).Msg("outbound queue full, dropping emit")
	}
}

func (d *Daemon) syncURL() string {
	return d.cfg.CoordinatorURL + "/sync"
}
