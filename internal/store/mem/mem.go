// Package mem is a concurrent in-memory Store, the default backend for
// local/dev/test runs. It mirrors the teacher's own preference for simple
// file/memory-backed state (internal/engine/state.go) over a heavyweight
// database for a single-node deployment.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/store"
)

// Store is a concurrent, in-memory implementation of store.Store.
// Each rift gets its own sync.Mutex (the "per-rift write lock" of §5);
// everything else is guarded by a single top-level mutex, which is safe
// because top-level maps are small and operations on them are brief.
type Store struct {
	mu sync.RWMutex

	users    map[string]model.User
	byName   map[string]string // username -> user id
	projects map[string]model.Project
	// projectNames scopes NameConflict to "caller's visible scope" (§4.1);
	// here approximated as global uniqueness, matching the spec's example
	// ("Fails NameConflict if name already used by caller's visible scope").
	projectNames map[string]string // name -> project id
	rifts        map[string]model.Rift
	riftsByProj  map[string][]string // project id -> rift ids, creation order
	riftNames    map[string]string   // project id + "/" + name -> rift id

	riftFiles map[string]map[string]model.RiftFile // rift id -> path -> file
	checkpoints map[string]model.Checkpoint
	chain       map[string][]string // rift id -> checkpoint ids, chain order
	lastCP      map[string]string   // rift id -> last checkpoint id

	userRiftState map[string]model.UserRiftState // userID+"/"+projectID -> state
	collaborators map[string]map[string]bool     // rift id -> set of user ids

	riftLocks map[string]*sync.Mutex
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		users:         make(map[string]model.User),
		byName:        make(map[string]string),
		projects:      make(map[string]model.Project),
		projectNames:  make(map[string]string),
		rifts:         make(map[string]model.Rift),
		riftsByProj:   make(map[string][]string),
		riftNames:     make(map[string]string),
		riftFiles:     make(map[string]map[string]model.RiftFile),
		checkpoints:   make(map[string]model.Checkpoint),
		chain:         make(map[string][]string),
		lastCP:        make(map[string]string),
		userRiftState: make(map[string]model.UserRiftState),
		collaborators: make(map[string]map[string]bool),
		riftLocks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) CreateProject(_ context.Context, callerUserID, name, description string) (model.Project, model.Rift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projectNames[name]; exists {
		return model.Project{}, model.Rift{}, store.ErrNameConflict
	}

	p := model.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Members:     []string{callerUserID},
	}
	s.projects[p.ID] = p
	s.projectNames[name] = p.ID

	r := model.Rift{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Name:      model.MainRiftName,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	s.rifts[r.ID] = r
	s.riftsByProj[p.ID] = append(s.riftsByProj[p.ID], r.ID)
	s.riftNames[p.ID+"/"+r.Name] = r.ID
	s.riftFiles[r.ID] = make(map[string]model.RiftFile)
	s.collaborators[r.ID] = map[string]bool{callerUserID: true}

	return p, r, nil
}

func (s *Store) ListProjectsForUser(_ context.Context, userID string) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Project
	for _, p := range s.projects {
		for _, m := range p.Members {
			if m == userID {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetProject(_ context.Context, id string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) IsMember(_ context.Context, projectID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return false, store.ErrNotFound
	}
	for _, m := range p.Members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListRifts(_ context.Context, projectID string) ([]model.Rift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.riftsByProj[projectID]
	out := make([]model.Rift, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.rifts[id])
	}
	return out, nil
}

func (s *Store) GetRift(_ context.Context, id string) (model.Rift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rifts[id]
	if !ok {
		return model.Rift{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListCollaborators(_ context.Context, riftID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.collaborators[riftID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SwitchRift(_ context.Context, userID, projectID, riftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return store.ErrNotFound
	}
	member := false
	for _, m := range p.Members {
		if m == userID {
			member = true
			break
		}
	}
	if !member {
		return store.ErrNotMember
	}

	s.userRiftState[userID+"/"+projectID] = model.UserRiftState{
		UserID: userID, ProjectID: projectID, CurrentRiftID: riftID,
	}
	if s.collaborators[riftID] == nil {
		s.collaborators[riftID] = make(map[string]bool)
	}
	s.collaborators[riftID][userID] = true
	return nil
}

func (s *Store) CurrentRift(_ context.Context, userID, projectID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.userRiftState[userID+"/"+projectID]
	if !ok {
		return "", store.ErrNotFound
	}
	return st.CurrentRiftID, nil
}

func (s *Store) GetRiftFiles(_ context.Context, riftID string) ([]model.RiftFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := s.riftFiles[riftID]
	out := make([]model.RiftFile, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) GetRiftFile(_ context.Context, riftID, path string) (model.RiftFile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.riftFiles[riftID][path]
	return f, ok, nil
}

// ApplyChange mutates RiftFile rows to match change, per invariant I3:
// Created/Modified sets the hash, Deleted removes the row, Moved deletes
// the old path and writes the new one. Callers must already hold the
// rift's write lock (via WithRiftLock).
func (s *Store) ApplyChange(_ context.Context, riftID string, change model.FileChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.riftFiles[riftID]
	if files == nil {
		files = make(map[string]model.RiftFile)
		s.riftFiles[riftID] = files
	}

	switch change.ChangeType {
	case model.ChangeDeleted:
		delete(files, change.Path)
	case model.ChangeMoved:
		delete(files, change.MovedFrom)
		files[change.Path] = model.RiftFile{RiftID: riftID, Path: change.Path, ContentHash: change.NewContentHash}
	default: // Created, Modified
		files[change.Path] = model.RiftFile{RiftID: riftID, Path: change.Path, ContentHash: change.NewContentHash}
	}
	return nil
}

func (s *Store) LastCheckpointID(_ context.Context, riftID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.lastCP[riftID]
	return id, ok, nil
}

func (s *Store) CreateCheckpoint(_ context.Context, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.checkpoints[cp.ID] = cp
	s.chain[cp.RiftID] = append(s.chain[cp.RiftID], cp.ID)
	s.lastCP[cp.RiftID] = cp.ID
	return nil
}

func (s *Store) GetCheckpoint(_ context.Context, id string) (model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return model.Checkpoint{}, store.ErrNotFound
	}
	return cp, nil
}

func (s *Store) History(_ context.Context, riftID string, limit int) ([]model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.chain[riftID]
	out := make([]model.Checkpoint, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.checkpoints[ids[i]])
	}
	return out, nil
}

func (s *Store) WithRiftLock(ctx context.Context, riftID string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	l, ok := s.riftLocks[riftID]
	if !ok {
		l = &sync.Mutex{}
		s.riftLocks[riftID] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

var _ store.Store = (*Store)(nil)
