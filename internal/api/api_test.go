package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	srv   *httptest.Server
	db    *store.DB
	user  *store.User
	vault *store.Vault
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hash, err := identity.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &store.User{Email: "user@example.com", Role: store.RoleAdmin, PasswordHash: hash, IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &store.Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	dataDir := t.TempDir()
	coord := sync.New(time.Second, 10*time.Millisecond)
	engine := docengine.New(db, dataDir, coord)

	h := &Handler{
		DB:                db,
		Engine:            engine,
		Coord:             coord,
		JWTSecret:         []byte("test-secret"),
		RefreshCookieName: "docstore_refresh",
		Log:               zerolog.Nop(),
	}
	r := chi.NewRouter()
	h.Mount(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, db: db, user: u, vault: v}
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func (ts *testServer) token(t *testing.T) string {
	t.Helper()
	tok, err := identity.IssueToken([]byte("test-secret"), ts.user.ID, ts.user.Email, ts.user.Role)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func TestRegisterWithoutInvitationRejectedOnceUserExists(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    "second@example.com",
		"password": "correct horse battery staple",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (an invitation is required once a user already exists)", resp.StatusCode)
	}
}

func TestLoginWithValidCredentialsIssuesAccessToken(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    ts.user.Email,
		"password": "correct horse battery staple",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}
	var sawRefreshCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == "docstore_refresh" {
			sawRefreshCookie = true
		}
	}
	if !sawRefreshCookie {
		t.Fatal("expected the refresh cookie to be set")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    ts.user.Email,
		"password": "wrong password entirely",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp2 := ts.do(t, http.MethodGet, "/api/v1/users/me", ts.token(t), nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
	var u userView
	if err := json.NewDecoder(resp2.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Email != ts.user.Email {
		t.Fatalf("email = %q, want %q", u.Email, ts.user.Email)
	}
}

func TestCreateAndFetchVault(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/vaults", tok, map[string]any{"name": "Journal"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var v vaultView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Slug != "journal" {
		t.Fatalf("slug = %q, want journal", v.Slug)
	}

	resp2 := ts.do(t, http.MethodGet, "/api/v1/vaults/"+v.ID, tok, nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
}

func TestPutGetAndVersionDocument(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t)

	req, _ := http.NewRequest(http.MethodPut, ts.srv.URL+"/api/v1/vaults/"+ts.vault.ID+"/documents/a.md",
		bytes.NewReader([]byte("# Hello\n\nbody")))
	req.Header.Set("Authorization", "Bearer "+tok)
	putResp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", putResp.StatusCode)
	}

	getResp := ts.do(t, http.MethodGet, "/api/v1/vaults/"+ts.vault.ID+"/documents/a.md?raw=true", tok, nil)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getResp.StatusCode)
	}

	versionsResp := ts.do(t, http.MethodGet, "/api/v1/vaults/"+ts.vault.ID+"/documents/a.md/versions", tok, nil)
	defer versionsResp.Body.Close()
	if versionsResp.StatusCode != http.StatusOK {
		t.Fatalf("versions status = %d, want 200", versionsResp.StatusCode)
	}
	var versions []documentVersionView
	if err := json.NewDecoder(versionsResp.Body).Decode(&versions); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(versions) != 1 || versions[0].VersionNum != 1 {
		t.Fatalf("versions = %+v, want one version numbered 1", versions)
	}
}

func TestSearchRequiresVaultAndQuery(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t)
	resp := ts.do(t, http.MethodGet, "/api/v1/search", tok, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateAndRevokeApiKey(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/api-keys", tok, map[string]any{
		"name":   "ci",
		"scopes": []string{store.ScopeRead},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var view apiKeyView
	if err := json.Unmarshal(created["apiKey"], &view); err != nil {
		t.Fatalf("unmarshal apiKey: %v", err)
	}

	delResp := ts.do(t, http.MethodDelete, "/api/v1/api-keys/"+view.ID, tok, nil)
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", delResp.StatusCode)
	}
}
