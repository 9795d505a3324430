package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/rifterr"
	"github.com/riftlab/rift/internal/wireproto"
)

// Daemon is the single long-lived per-workstation process (spec §4.2): it
// owns every TrackedProject's watcher and WebSocket connection, and serves
// the loopback IPC surface the Client drives. One Daemon per process,
// mirroring the teacher's single-RunnerLoop-per-repo ownership model but
// generalized to many concurrently tracked projects.
type Daemon struct {
	cfg  *config.DaemonConfig
	log  zerolog.Logger
	http *http.Client

	startedAt time.Time

	mu       sync.RWMutex
	projects map[string]*TrackedProject // keyed by project id
	token    string                     // held in memory only, per spec §4.3

	cancel context.CancelFunc
}

// New constructs a Daemon ready to Run.
func New(cfg *config.DaemonConfig, log zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:      cfg,
		log:      log,
		http:     &http.Client{Timeout: 15 * time.Second},
		projects: make(map[string]*TrackedProject),
	}
}

func (d *Daemon) credential() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.token
}

// SetCredential stores the auth token the Client passed on beam (spec §4.3:
// "passes them to the Daemon on beam, which holds them in memory").
func (d *Daemon) SetCredential(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = token
}

// Run starts the IPC server and blocks until ctx is cancelled or /shutdown
// is called. Persisted project state from a prior run is resumed first
// (spec SUPPLEMENTED FEATURES: restart resumes tracked projects).
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.startedAt = time.Now()

	if err := writePIDFile(d.cfg.StateDir); err != nil {
		d.log.Warn().Err(err).Msg("writing pid file")
	}
	defer removePIDFile(d.cfg.StateDir)

	d.resumePersistedProjects(ctx)

	return d.serveIPC(ctx)
}

// httpBaseURL derives the Coordinator's HTTP base from its ws(s):// sync URL.
func (d *Daemon) httpBaseURL() string {
	u := d.cfg.CoordinatorURL
	u = strings.Replace(u, "wss://", "https://", 1)
	u = strings.Replace(u, "ws://", "http://", 1)
	return u
}

// resolveProject looks the project up on the Coordinator by name, returning
// its id and the id of its main rift (spec §4.2 "resolves project via
// Coordinator").
func (d *Daemon) resolveProject(ctx context.Context, name string) (projectID, riftID string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.httpBaseURL()+"/projects", nil)
	if err != nil {
		return "", "", err
	}
	d.authorize(req)

	resp, err := d.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", rifterr.ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: coordinator returned %d listing projects", rifterr.ErrStorage, resp.StatusCode)
	}

	var projects []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return "", "", fmt.Errorf("%w: decoding projects: %v", rifterr.ErrProtocol, err)
	}
	for _, p := range projects {
		if p.Name == name {
			projectID = p.ID
			break
		}
	}
	if projectID == "" {
		return "", "", fmt.Errorf("%w: project %q", rifterr.ErrNotFound, name)
	}

	riftID, err = d.resolveMainRift(ctx, projectID)
	return projectID, riftID, err
}

func (d *Daemon) resolveMainRift(ctx context.Context, projectID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.httpBaseURL()+"/projects/"+projectID+"/rifts", nil)
	if err != nil {
		return "", err
	}
	d.authorize(req)

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rifterr.ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: coordinator returned %d listing rifts", rifterr.ErrStorage, resp.StatusCode)
	}

	var rifts []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rifts); err != nil {
		return "", fmt.Errorf("%w: decoding rifts: %v", rifterr.ErrProtocol, err)
	}
	for _, r := range rifts {
		if r.Name == "main" {
			return r.ID, nil
		}
	}
	if len(rifts) > 0 {
		return rifts[0].ID, nil
	}
	return "", fmt.Errorf("%w: project %s has no rifts", rifterr.ErrNotFound, projectID)
}

func (d *Daemon) authorize(req *http.Request) {
	if tok := d.credential(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// Beam registers (or returns the existing registration for) a project,
// starting its watcher and sync loop (spec §4.2 POST /beam). Idempotent on
// an already-tracked local_dir.
func (d *Daemon) Beam(ctx context.Context, projectName, localDir string) (*TrackedProject, error) {
	d.mu.RLock()
	for _, p := range d.projects {
		if p.LocalRoot == localDir {
			d.mu.RUnlock()
			return p, nil
		}
	}
	d.mu.RUnlock()

	projectID, riftID, err := d.resolveProject(ctx, projectName)
	if err != nil {
		return nil, err
	}

	p := newTrackedProject(uuid.NewString(), projectName, localDir, riftID, d.cfg, d.log)
	p.ID = projectID

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	d.mu.Lock()
	d.projects[p.ID] = p
	d.mu.Unlock()

	if err := d.saveProjectState(p); err != nil {
		p.log.Warn().Err(err).Msg("persisting project state")
	}

	go func() {
		if err := d.watchProject(runCtx, p); err != nil {
			p.log.Warn().Err(err).Msg("watcher stopped")
		}
	}()
	go d.runSync(runCtx, p)

	return p, nil
}

// Disconnect stops tracking a project by id or name, or — with both empty —
// auto-detects by containment of cwd under a tracked local_root (spec §4.2
// POST /disconnect).
func (d *Daemon) Disconnect(projectID, projectName, cwd string) error {
	d.mu.Lock()
	var target *TrackedProject
	for id, p := range d.projects {
		switch {
		case projectID != "" && id == projectID:
			target = p
		case projectName != "" && p.Name == projectName:
			target = p
		case projectID == "" && projectName == "" && cwd != "" && strings.HasPrefix(cwd, p.LocalRoot):
			target = p
		}
		if target != nil {
			break
		}
	}
	if target != nil {
		delete(d.projects, target.ID)
	}
	d.mu.Unlock()

	if target == nil {
		return fmt.Errorf("%w: no tracked project matched", rifterr.ErrNotFound)
	}
	d.removeProjectState(target.ID)

	// Spec §5 cancellation sequence: send LeaveRift before tearing down the
	// connection, rather than letting the Coordinator infer departure from
	// the socket close alone. Routed through the outbound queue — the sole
	// writer is pumpOutbound (sync.go) — and given a moment to flush before
	// cancel tears the connection down under it.
	if target.getConn() != nil {
		leave, err := wireproto.Encode(&wireproto.LeaveRift{Type: wireproto.TypeLeaveRift, RiftID: target.RiftID})
		if err == nil {
			select {
			case target.outbound <- leave:
				time.Sleep(50 * time.Millisecond)
			default:
			}
		}
	}

	target.cancel()
	select {
	case <-target.done:
	case <-time.After(2 * time.Second): // best-effort flush window, spec §5
	}
	return nil
}

// Shutdown implements POST /shutdown: cancel every project, wait briefly,
// then stop the IPC server via d.cancel.
func (d *Daemon) Shutdown() {
	d.mu.RLock()
	projects := make([]*TrackedProject, 0, len(d.projects))
	for _, p := range d.projects {
		projects = append(projects, p)
	}
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range projects {
		wg.Add(1)
		go func(p *TrackedProject) {
			defer wg.Done()
			p.cancel()
			<-p.done
		}(p)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second): // hard-kill grace window, spec §5
	}

	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) listProjects() []*TrackedProject {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*TrackedProject, 0, len(d.projects))
	for _, p := range d.projects {
		out = append(out, p)
	}
	return out
}
