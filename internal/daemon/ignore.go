// Package daemon implements the per-workstation sync Daemon (spec §4.2):
// file watching, the hash/emit pipeline, echo suppression, the WebSocket
// connection to a Coordinator rift, and the loopback IPC surface the
// Client drives. Grounded on kylesnowschwartz/tail-claude's watcher.go
// (debounced fsnotify loop) and the teacher's internal/engine lifecycle
// patterns (PID file, per-concern logs, self-retiring loop), now keyed
// per tracked project instead of per concern.
package daemon

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// matcher decides whether a path matches the configured ignore glob
// patterns (spec §4.2 ignore set). It does not look at file size; the size
// ceiling is checked separately in processWatchEvent (watcher.go). Grounded on the teacher's ignore_test.go, which
// already exercises go-gitignore directly; promoted here to a direct
// dependency backing real runtime behavior instead of only a test.
type matcher struct {
	patterns *gitignore.GitIgnore
}

func newMatcher(patterns []string) *matcher {
	return &matcher{patterns: gitignore.CompileIgnoreLines(patterns...)}
}

// ignoresPath reports whether path (relative to local_root) matches the
// configured ignore set.
func (m *matcher) ignoresPath(relPath string) bool {
	if m == nil || m.patterns == nil {
		return false
	}
	return m.patterns.MatchesPath(relPath)
}
