package daemon

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/riftlab/rift/internal/fileutil"
)

// writePIDFile records the running daemon's PID, the way the teacher's
// engine.WritePID does for its runner loop.
func writePIDFile(stateDir string) error {
	if err := fileutil.EnsureDir(stateDir); err != nil {
		return err
	}
	return os.WriteFile(fileutil.PIDPath(stateDir), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func removePIDFile(stateDir string) {
	_ = os.Remove(fileutil.PIDPath(stateDir))
}

// IsDaemonAlive reports whether a riftd process is already running for
// stateDir, checked by the Client before spawning a new one (spec §4.3).
func IsDaemonAlive(stateDir string) bool {
	data, err := os.ReadFile(fileutil.PIDPath(stateDir))
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	return fileutil.IsProcessAlive(pid)
}

// persistedProject is the on-disk record of one TrackedProject, surviving a
// daemon restart (spec SUPPLEMENTED FEATURES: stale-state recovery mirrors
// the teacher's ResetActiveStatuses, adapted from per-concern station state
// to per-project daemon state).
type persistedProject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LocalRoot string `json:"local_root"`
	RiftID    string `json:"rift_id"`
}

func (d *Daemon) saveProjectState(p *TrackedProject) error {
	if err := fileutil.EnsureDir(fileutil.RiftSubdir(d.cfg.StateDir, "projects")); err != nil {
		return err
	}
	data, err := json.Marshal(persistedProject{ID: p.ID, Name: p.Name, LocalRoot: p.LocalRoot, RiftID: p.RiftID})
	if err != nil {
		return err
	}
	return os.WriteFile(fileutil.ProjectStatePath(d.cfg.StateDir, p.ID), data, 0o644)
}

func (d *Daemon) removeProjectState(projectID string) {
	_ = os.Remove(fileutil.ProjectStatePath(d.cfg.StateDir, projectID))
}

// resumePersistedProjects reloads every project state file and resumes its
// watcher and sync loop directly (no Coordinator round trip needed — the
// persisted record already carries project_id and rift_id). A daemon
// restart (`daemon restart`) relies on this to come back up tracking the
// same projects it had before.
func (d *Daemon) resumePersistedProjects(ctx context.Context) {
	dir := fileutil.RiftSubdir(d.cfg.StateDir, "projects")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // nothing persisted yet; not an error on first run
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			continue
		}
		var pp persistedProject
		if err := json.Unmarshal(data, &pp); err != nil {
			d.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable project state")
			continue
		}
		if _, err := os.Stat(pp.LocalRoot); err != nil {
			d.log.Warn().Str("project", pp.Name).Str("local_root", pp.LocalRoot).
				Msg("local_root missing on resume, dropping stale project state")
			d.removeProjectState(pp.ID)
			continue
		}

		p := newTrackedProject(pp.ID, pp.Name, pp.LocalRoot, pp.RiftID, d.cfg, d.log)
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel

		d.mu.Lock()
		d.projects[p.ID] = p
		d.mu.Unlock()

		go func(p *TrackedProject) {
			if err := d.watchProject(runCtx, p); err != nil {
				p.log.Warn().Err(err).Msg("watcher stopped")
			}
		}(p)
		go d.runSync(runCtx, p)

		d.log.Info().Str("project", p.Name).Msg("resumed tracked project from persisted state")
	}
}
