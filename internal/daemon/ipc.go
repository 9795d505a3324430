package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/riftlab/rift/internal/rifterr"
)

// Version is set at build time via ldflags, the same pattern the teacher's
// internal/cli.Version uses.
var Version = "dev"

// serveIPC binds the loopback-only IPC listener (spec §4.2: "all on
// loopback only") and serves until ctx is cancelled or /shutdown fires.
func (d *Daemon) serveIPC(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", d.handleHealth)
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.HandleFunc("GET /projects", d.handleProjects)
	mux.HandleFunc("POST /beam", d.handleBeam)
	mux.HandleFunc("POST /disconnect", d.handleDisconnect)
	mux.HandleFunc("POST /shutdown", d.handleShutdown)

	addr := fmt.Sprintf("127.0.0.1:%d", d.cfg.IPCPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding ipc listener on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

type projectSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LocalRoot string `json:"local_root"`
	RiftID    string `json:"rift_id"`
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	projects := d.listProjects()
	out := make([]projectSummary, 0, len(projects))
	sessions := 0
	for _, p := range projects {
		out = append(out, projectSummary{ID: p.ID, Name: p.Name, LocalRoot: p.LocalRoot, RiftID: p.RiftID})
		if p.getConn() != nil {
			sessions++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects":        out,
		"uptime_s":        int(time.Since(d.startedAt).Seconds()),
		"active_sessions": sessions,
	})
}

func (d *Daemon) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects := d.listProjects()
	out := make([]projectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectSummary{ID: p.ID, Name: p.Name, LocalRoot: p.LocalRoot, RiftID: p.RiftID})
	}
	writeJSON(w, http.StatusOK, out)
}

type beamRequest struct {
	ProjectName string `json:"project_name"`
	LocalDir    string `json:"local_dir"`
	Token       string `json:"token"`
}

func (d *Daemon) handleBeam(w http.ResponseWriter, r *http.Request) {
	var req beamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rifterr.ToWire(fmt.Errorf("%w: %v", rifterr.ErrProtocol, err)))
		return
	}
	if req.ProjectName == "" {
		writeJSON(w, http.StatusBadRequest, rifterr.ToWire(fmt.Errorf("%w: project_name is required", rifterr.ErrProtocol)))
		return
	}
	if req.Token != "" {
		d.SetCredential(req.Token)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second) // spec §5 "beam IPC: 15s"
	defer cancel()

	p, err := d.Beam(ctx, req.ProjectName, req.LocalDir)
	if err != nil {
		writeJSON(w, statusForIPC(err), rifterr.ToWire(err))
		return
	}
	writeJSON(w, http.StatusOK, projectSummary{ID: p.ID, Name: p.Name, LocalRoot: p.LocalRoot, RiftID: p.RiftID})
}

type disconnectRequest struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

func (d *Daemon) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // empty body is valid: auto-detect by cwd

	cwd, _ := workingDirOf(r)
	if err := d.Disconnect(req.ProjectID, req.ProjectName, cwd); err != nil {
		writeJSON(w, statusForIPC(err), rifterr.ToWire(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
	go d.Shutdown()
}

func statusForIPC(err error) int {
	switch {
	case isWireErr(err, rifterr.ErrNotFound):
		return http.StatusNotFound
	case isWireErr(err, rifterr.ErrDaemonUnreachable), isWireErr(err, rifterr.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func isWireErr(err, target error) bool {
	for e := err; e != nil; {
		if e == target {
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// workingDirOf reads an optional X-Rift-Cwd header the Client sends so
// /disconnect with no body can auto-detect its target (spec §4.2: "matched
// by containment under a tracked local_root").
func workingDirOf(r *http.Request) (string, bool) {
	v := r.Header.Get("X-Rift-Cwd")
	return v, v != ""
}
