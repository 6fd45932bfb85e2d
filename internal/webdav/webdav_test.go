package webdav

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/identity"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
)

type testServer struct {
	srv    *httptest.Server
	db     *store.DB
	email  string
	apiKey string
	vault  *store.Vault
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u := &store.User{Email: "user@example.com", Role: store.RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &store.Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	full, prefix, hash, err := identity.GenerateApiKey()
	if err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}
	key := &store.ApiKey{UserID: u.ID, Name: "test", KeyPrefix: prefix, KeyHash: hash,
		Scopes: []string{store.ScopeRead, store.ScopeWrite}, IsActive: true}
	if err := db.CreateApiKey(key); err != nil {
		t.Fatalf("CreateApiKey: %v", err)
	}

	dataDir := t.TempDir()
	coord := sync.New(time.Second, 10*time.Millisecond)
	engine := docengine.New(db, dataDir, coord)

	h := &Handler{DB: db, Engine: engine, Coord: coord, DataDir: dataDir, Log: zerolog.Nop()}
	r := chi.NewRouter()
	h.Mount(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, db: db, email: u.Email, apiKey: full, vault: v}
}

func (ts *testServer) request(t *testing.T, method, path string, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.SetBasicAuth(ts.email, ts.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func TestPutThenGetRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPut, "/webdav/notes/a.md", "hello world", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.request(t, http.MethodGet, "/webdav/notes/a.md", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("expected ETag header on GET")
	}
}

func TestPutOverExistingReturns204(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPut, "/webdav/notes/a.md", "v1", nil).Body.Close()
	resp := ts.request(t, http.MethodPut, "/webdav/notes/a.md", "v2", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestMoveWithoutOverwriteConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPut, "/webdav/notes/a.md", "a", nil).Body.Close()
	ts.request(t, http.MethodPut, "/webdav/notes/b.md", "b", nil).Body.Close()

	resp := ts.request(t, methodMove, "/webdav/notes/a.md", "", map[string]string{
		"Destination": "/webdav/notes/b.md",
		"Overwrite":   "F",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", resp.StatusCode)
	}
}

func TestMkcolThenDelete(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.request(t, methodMkcol, "/webdav/notes/folder", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("MKCOL status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.request(t, http.MethodDelete, "/webdav/notes/folder", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}
}

func TestPropfindReturnsMultistatus(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPut, "/webdav/notes/a.md", "content", nil).Body.Close()

	resp := ts.request(t, methodPropfind, "/webdav/notes/", "", map[string]string{"Depth": "1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("PROPFIND status = %d, want 207", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/webdav/notes/a.md", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
