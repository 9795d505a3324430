package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/riftlab/rift/internal/blob"
	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/store/mem"
)

func newTestServer(t *testing.T) (*Server, model.User) {
	t.Helper()
	st := mem.New()
	user, err := st.CreateUser(context.Background(), model.User{Username: "alice"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	cfg := &config.CoordinatorConfig{BroadcastQueueCapacity: 64, DebounceWindowMS: 50}
	return New(cfg, st, blob.NewMemStore(), &StaticChecker{Store: st}, zerolog.Nop()), user
}

func TestHandleAuthVerifyUnknownCredentialIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(Credential{Token: "nobody"})
	req := httptest.NewRequest(http.MethodPost, "/auth/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleAuthVerifyKnownCredentialReturnsSessionHandle(t *testing.T) {
	srv, user := newTestServer(t)
	body, _ := json.Marshal(Credential{Token: user.Username})
	req := httptest.NewRequest(http.MethodPost, "/auth/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var handle SessionHandle
	if err := json.Unmarshal(rec.Body.Bytes(), &handle); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if handle.UserID != user.ID {
		t.Fatalf("expected user id %s, got %s", user.ID, handle.UserID)
	}
}

func TestProjectRoutesRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestCreateProjectThenListProjects(t *testing.T) {
	srv, user := newTestServer(t)

	createBody, _ := json.Marshal(map[string]string{"name": "widgets"})
	createReq := httptest.NewRequest(http.MethodPost, "/projects", bytes.NewReader(createBody))
	createReq.Header.Set("Authorization", "Bearer "+user.Username)
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)

	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", createRec.Code, createRec.Body.String())
	}
	var project model.Project
	if err := json.Unmarshal(createRec.Body.Bytes(), &project); err != nil {
		t.Fatalf("decoding created project: %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/projects", nil)
	listReq.Header.Set("Authorization", "Bearer "+user.Username)
	listRec := httptest.NewRecorder()
	srv.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	var projects []model.Project
	if err := json.Unmarshal(listRec.Body.Bytes(), &projects); err != nil {
		t.Fatalf("decoding project list: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != project.ID {
		t.Fatalf("expected the created project to be listed, got %+v", projects)
	}
}

func TestHandleCheckpointBlobUnknownCheckpointIsNotFound(t *testing.T) {
	srv, user := newTestServer(t)

	createBody, _ := json.Marshal(map[string]string{"name": "widgets"})
	createReq := httptest.NewRequest(http.MethodPost, "/projects", bytes.NewReader(createBody))
	createReq.Header.Set("Authorization", "Bearer "+user.Username)
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)

	req := httptest.NewRequest(http.MethodGet, "/checkpoints/missing-checkpoint/blob/main.go", nil)
	req.Header.Set("Authorization", "Bearer "+user.Username)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown checkpoint, got %d", rec.Code)
	}
}
