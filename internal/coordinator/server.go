// Package coordinator implements the authoritative Coordinator server
// (spec §4.1): HTTP + WebSocket API, broadcast fan-out, and checkpoint
// commit algorithm. Grounded on the teacher's request-scoped handler style
// (internal/cli commands load+validate+act) and on victorarias/attn's
// daemon WebSocket hub for the sync transport.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/riftlab/rift/internal/blob"
	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/hub"
	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/retry"
	"github.com/riftlab/rift/internal/rifterr"
	"github.com/riftlab/rift/internal/store"
	"github.com/riftlab/rift/internal/wireproto"
)

// Server is the Coordinator's top-level ownership root (spec §9:
// "Express as a single ownership root passed explicitly to handlers, not
// as ambient global state"). One Server per process.
type Server struct {
	cfg   *config.CoordinatorConfig
	store store.Store
	blobs blob.Store
	hubs  *hub.Registry
	auth  CredentialChecker
	log   zerolog.Logger

	blobRetry retry.Policy

	mu       sync.RWMutex
	sessions map[string]*Session // session registry keyed by session_id: one map under mu, not striped

	batchMu    sync.Mutex
	batchers   map[string]*batcher // key: sessionID+"/"+riftID

	mux *http.ServeMux
}

// New constructs a Server ready to ListenAndServe.
func New(cfg *config.CoordinatorConfig, st store.Store, blobs blob.Store, auth CredentialChecker, log zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		blobs:     blobs,
		hubs:      hub.NewRegistry(cfg.BroadcastQueueCapacity),
		auth:      auth,
		log:       log,
		blobRetry: retry.Fixed(3, 100*time.Millisecond),
		sessions:  make(map[string]*Session),
		batchers:  make(map[string]*batcher),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /auth/verify", s.handleAuthVerify)
	s.mux.HandleFunc("GET /projects", s.withAuth(s.handleListProjects))
	s.mux.HandleFunc("POST /projects", s.withAuth(s.handleCreateProject))
	s.mux.HandleFunc("GET /projects/{id}/rifts", s.withAuth(s.handleListRifts))
	s.mux.HandleFunc("POST /rifts/{id}/switch", s.withAuth(s.handleSwitchRift))
	s.mux.HandleFunc("GET /rifts/{id}/state", s.withAuth(s.handleRiftState))
	s.mux.HandleFunc("GET /rifts/{id}/history", s.withAuth(s.handleRiftHistory))
	s.mux.HandleFunc("GET /checkpoints/{id}/blob/{path...}", s.withAuth(s.handleCheckpointBlob))
	s.mux.HandleFunc("GET /sync", s.withAuth(s.handleSync))
}

// ctxKey is the request context key type; userIDKey carries the verified
// user id.
type ctxKey string

const userIDKey ctxKey = "rift-user-id"

// withAuth resolves a bearer credential into a user id, the way every
// Coordinator HTTP endpoint except /auth/verify requires (spec §4.1).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, err := s.auth.Verify(r.Context(), Credential{Token: token})
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func userIDFrom(r *http.Request) string {
	v, _ := r.Context().Value(userIDKey).(string)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, rifterr.ToWire(err))
}

func statusFor(err error) int {
	switch {
	case isErr(err, rifterr.ErrAuth):
		return http.StatusUnauthorized
	case isErr(err, rifterr.ErrPermissionDenied), isErr(err, store.ErrNotMember):
		return http.StatusForbidden
	case isErr(err, rifterr.ErrNotFound), isErr(err, store.ErrNotFound):
		return http.StatusNotFound
	case isErr(err, rifterr.ErrNameConflict), isErr(err, store.ErrNameConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isErr(err, target error) bool {
	for e := err; e != nil; e = unwrap(e) {
		if e == target {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// --- HTTP handlers ---

func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var cred Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", rifterr.ErrProtocol, err))
		return
	}
	userID, err := s.auth.Verify(r.Context(), cred)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	u, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, SessionHandle{UserID: u.ID, Username: u.Username, Role: u.Role})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjectsForUser(r.Context(), userIDFrom(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", rifterr.ErrProtocol, err))
		return
	}
	project, _, err := s.store.CreateProject(r.Context(), userIDFrom(r), body.Name, body.Description)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// riftsResponse augments each rift with its aggregated collaborators (§4.1
// "including collaborators aggregated from a join table").
type riftsResponse struct {
	model.Rift
	Collaborators []string `json:"collaborators"`
}

func (s *Server) handleListRifts(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	member, err := s.store.IsMember(r.Context(), projectID, userIDFrom(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, store.ErrNotMember)
		return
	}
	rifts, err := s.store.ListRifts(r.Context(), projectID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make([]riftsResponse, 0, len(rifts))
	for _, rf := range rifts {
		collabs, err := s.store.ListCollaborators(r.Context(), rf.ID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		out = append(out, riftsResponse{Rift: rf, Collaborators: collabs})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSwitchRift(w http.ResponseWriter, r *http.Request) {
	riftID := r.PathValue("id")
	rift, err := s.store.GetRift(r.Context(), riftID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := s.store.SwitchRift(r.Context(), userIDFrom(r), rift.ProjectID, riftID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRiftState(w http.ResponseWriter, r *http.Request) {
	riftID := r.PathValue("id")
	snapshot, err := s.captureSnapshot(r.Context(), riftID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRiftHistory(w http.ResponseWriter, r *http.Request) {
	riftID := r.PathValue("id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	history, err := s.store.History(r.Context(), riftID, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleCheckpointBlob(w http.ResponseWriter, r *http.Request) {
	cpID := r.PathValue("id")
	path := r.PathValue("path")

	cp, err := s.store.GetCheckpoint(r.Context(), cpID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	// Walk back along the parent chain to the newest checkpoint that touched
	// path, so the content served is path's state as of checkpoint cpID.
	for cp.ParentCheckpointID != nil && !slices.ContainsFunc(cp.Changes, func(ch model.FileChange) bool {
		return ch.Path == path || (ch.ChangeType == model.ChangeMoved && ch.MovedFrom == path)
	}) {
		if cp, err = s.store.GetCheckpoint(r.Context(), *cp.ParentCheckpointID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	for _, ch := range cp.Changes {
		if ch.Path != path || ch.ChangeType == model.ChangeDeleted {
			continue
		}
		content, err := s.blobs.Get(ch.NewContentHash)
		if err != nil {
			writeError(w, statusFor(fmt.Errorf("%w: %v", rifterr.ErrNotFound, err)), err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
		return
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s not present at checkpoint %s", rifterr.ErrNotFound, path, cpID))
}

// handleSync upgrades to WebSocket and runs the per-session reader/writer/
// ping task trio (spec §5, §9 "WebSocket task pairs").
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	userID := userIDFrom(r)
	sessionID := uuid.NewString()
	sess := newSession(sessionID, userID, conn, s.log.With().Str("session_id", sessionID).Logger())

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	ctx := r.Context()
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); sess.pingLoop(ctx) }()
	go func() { defer wg.Done(); sess.writePump(ctx) }()
	go func() {
		defer wg.Done()
		sess.msgPump(ctx, s.handleFrame)
	}()

	sess.readPump(ctx, func() { s.onSessionClosed(sess) })
	wg.Wait()
}

func (s *Server) onSessionClosed(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	for _, riftID := range sess.subscribedRiftIDs() {
		s.hubs.Get(riftID).Leave(sess.id)
	}
	sess.closeOnce()
}
