// Package client implements the stateless Client driver (spec §4.3): health
// check + spawn-if-unreachable, a single IPC call per invocation, exit-code
// conventions. Grounded on the teacher's internal/cli/trigger.go detached-
// spawn pattern (os.Executable, Setsid, stripped env, Process.Release) and
// internal/engine's PID/health-poll idioms, aimed here at the Daemon's IPC
// surface instead of a self-retiring runner process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/daemon"
	"github.com/riftlab/rift/internal/rifterr"
)

// ExitCode values per spec §4.3.
const (
	ExitSuccess            = 0
	ExitUserError          = 1
	ExitDaemonUnreachable  = 2
	ExitCoordinatorError   = 3
)

// Client drives one Daemon over its loopback IPC surface.
type Client struct {
	cfg  *config.DaemonConfig
	http *http.Client
}

// New constructs a Client against the Daemon described by cfg (only
// IPCPort and StateDir are consulted).
func New(cfg *config.DaemonConfig) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.cfg.IPCPort)
}

// EnsureDaemon checks Daemon health and, if unreachable, spawns it detached
// and polls /health for up to 10s (spec §4.3 step 1). If a riftd process is
// already running per its PID file but merely slow to open its IPC listener
// (e.g. still replaying persisted projects), EnsureDaemon waits on the
// existing process instead of racing a second spawn.
func (c *Client) EnsureDaemon(ctx context.Context) error {
	if c.healthy(ctx) {
		return nil
	}
	if !daemon.IsDaemonAlive(c.cfg.StateDir) {
		if err := c.spawnDetached(); err != nil {
			return fmt.Errorf("%w: spawning daemon: %v", rifterr.ErrDaemonUnreachable, err)
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if c.healthy(ctx) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("%w: daemon did not become healthy within 10s", rifterr.ErrDaemonUnreachable)
}

func (c *Client) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// spawnDetached launches `riftd` as a detached background process, the way
// the teacher's trigger.go spawns a detached runner.
func (c *Client) spawnDetached() error {
	bin, err := exec.LookPath("riftd")
	if err != nil {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving riftd: %w", err)
		}
		bin = self
	}

	cmd := exec.Command(bin)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "CLAUDECODE=") {
			cmd.Env = append(cmd.Env, e)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting riftd: %w", err)
	}
	return cmd.Process.Release()
}

// Beam calls POST /beam.
func (c *Client) Beam(ctx context.Context, projectName, localDir, token string) (map[string]any, error) {
	body, _ := json.Marshal(map[string]string{"project_name": projectName, "local_dir": localDir, "token": token})
	return c.postJSON(ctx, "/beam", body)
}

// Disconnect calls POST /disconnect.
func (c *Client) Disconnect(ctx context.Context, projectID, projectName, cwd string) error {
	body, _ := json.Marshal(map[string]string{"project_id": projectID, "project_name": projectName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/disconnect", bytes.NewReader(body))
	if err != nil {
		return err
	}
	if cwd != "" {
		req.Header.Set("X-Rift-Cwd", cwd)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", rifterr.ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeWireError(resp)
	}
	return nil
}

// Status calls GET /status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rifterr.ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeWireError(resp)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", rifterr.ErrProtocol, err)
	}
	return out, nil
}

// Stop calls POST /shutdown.
func (c *Client) Stop(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", rifterr.ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	return nil
}

// Restart implements `daemon restart` = shutdown, then spawn (spec §4.2).
func (c *Client) Restart(ctx context.Context) error {
	_ = c.Stop(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && c.healthy(ctx) {
		time.Sleep(100 * time.Millisecond)
	}
	return c.EnsureDaemon(ctx)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rifterr.ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeWireError(resp)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", rifterr.ErrProtocol, err)
	}
	return out, nil
}

func decodeWireError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var wire rifterr.Wire
	if err := json.Unmarshal(data, &wire); err == nil && wire.Message != "" {
		return fmt.Errorf("%s: %s", wire.Code, wire.Message)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}

// ExitCodeFor maps an error from a Client call to the exit code convention
// in spec §4.3. Errors returned directly by this package wrap a rifterr
// sentinel (checked via errors.Is); errors decoded off the wire instead
// carry the Coordinator/Daemon's Code as a string prefix (decodeWireError),
// so both are consulted.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, rifterr.ErrDaemonUnreachable) {
		return ExitDaemonUnreachable
	}
	if errors.Is(err, rifterr.ErrStorage) || errors.Is(err, rifterr.ErrNotFound) ||
		errors.Is(err, rifterr.ErrNameConflict) || errors.Is(err, rifterr.ErrPermissionDenied) {
		return ExitCoordinatorError
	}

	s := err.Error()
	switch {
	case strings.Contains(s, string(rifterr.CodeDaemonUnreachable)):
		return ExitDaemonUnreachable
	case strings.Contains(s, string(rifterr.CodeStorage)), strings.Contains(s, string(rifterr.CodeNotFound)),
		strings.Contains(s, string(rifterr.CodeNameConflict)), strings.Contains(s, string(rifterr.CodePermissionDenied)):
		return ExitCoordinatorError
	default:
		return ExitUserError
	}
}
