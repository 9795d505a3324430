package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/riftlab/rift/internal/wireproto"
)

// pendingEdit coalesces bursts of filesystem events for one path within the
// debounce window (spec §4.2 step 1: "only the last event is processed").
type pendingEdit struct {
	timer *time.Timer
}

// watchProject runs the dedicated watcher goroutine for p until ctx is
// cancelled. Grounded on kylesnowschwartz/tail-claude's watcher.go: one
// fsnotify.Watcher, one owning goroutine, a debounce timer per path.
func (d *Daemon) watchProject(ctx context.Context, p *TrackedProject) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addRecursive(w, p.LocalRoot); err != nil {
		return err
	}

	debounce := time.Duration(p.cfg.DebounceWindowMS) * time.Millisecond
	if debounce <= 0 {
		debounce = 150 * time.Millisecond
	}

	pending := make(map[string]*pendingEdit)
	fired := make(chan string, 64) // debounce timers hand expired paths back to this goroutine

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-fired:
			delete(pending, path)
			d.processWatchEvent(ctx, p, path)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(w, ev.Name)
				}
			}
			if pe, ok := pending[ev.Name]; ok {
				pe.timer.Reset(debounce)
				continue
			}
			path := ev.Name
			pending[path] = &pendingEdit{timer: time.AfterFunc(debounce, func() {
				select {
				case fired <- path:
				case <-ctx.Done():
				}
			})}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// addRecursive registers root and every directory beneath it, mirroring
// fsnotify's lack of native recursive watches.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best effort; a removed directory mid-walk isn't fatal
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// processWatchEvent runs the hash/emit pipeline for one debounced path
// (spec §4.2 steps 2-4).
func (d *Daemon) processWatchEvent(ctx context.Context, p *TrackedProject, path string) {
	relPath, err := filepath.Rel(p.LocalRoot, path)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if p.ignore.ignoresPath(relPath) || isVCSMetadata(relPath) {
		return
	}

	info, statErr := os.Stat(path)
	deleted := statErr != nil
	if !deleted && info.IsDir() {
		return
	}

	if deleted {
		d.handleLocalDelete(ctx, p, relPath)
		return
	}

	if p.cfg.MaxFileSizeBytes > 0 && info.Size() > p.cfg.MaxFileSizeBytes {
		p.log.Debug().Str("path", relPath).Int64("size", info.Size()).Msg("file exceeds max size, ignoring")
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		p.log.Warn().Err(err).Str("path", relPath).Msg("reading changed file")
		return
	}
	hash := sha256Hex(content)

	if p.isSuppressed(relPath) {
		// Our own inbound write landing; update last-known hash but do not
		// re-emit (spec §4.2 "Echo suppression").
		p.setLastHash(relPath, hash)
		return
	}

	if last, ok := p.getLastHash(relPath); ok && last == hash {
		return // identical content; common when tools rewrite unchanged bytes
	}
	p.setLastHash(relPath, hash)

	d.emit(p, &wireproto.FileChanged{
		Type:     wireproto.TypeFileChanged,
		RiftID:   p.RiftID,
		Path:     relPath,
		Content:  content,
		ClientTS: time.Now().UnixMilli(),
	})
}

func (d *Daemon) handleLocalDelete(ctx context.Context, p *TrackedProject, relPath string) {
	if p.isSuppressed(relPath) {
		p.forgetHash(relPath)
		return
	}
	if _, ok := p.getLastHash(relPath); !ok {
		return // never tracked; nothing to delete remotely
	}
	p.forgetHash(relPath)
	d.emit(p, &wireproto.FileChanged{
		Type:     wireproto.TypeFileChanged,
		RiftID:   p.RiftID,
		Path:     relPath,
		ClientTS: time.Now().UnixMilli(),
		Deleted:  true,
	})
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func isVCSMetadata(relPath string) bool {
	return strings.HasPrefix(relPath, ".git/") || relPath == ".git"
}
