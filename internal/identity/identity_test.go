package identity

import (
	"testing"
	"time"

	"github.com/derezo/docstore/internal/store"
)

type fakeLookup struct {
	keys   []*store.ApiKey
	touched []string
}

func (f *fakeLookup) ListApiKeysByPrefix(prefix string) ([]*store.ApiKey, error) {
	var out []*store.ApiKey
	for _, k := range f.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeLookup) TouchApiKeyLastUsed(id string) error {
	f.touched = append(f.touched, id)
	return nil
}

func TestGenerateAndVerifyApiKey(t *testing.T) {
	full, prefix, hash, err := GenerateApiKey()
	if err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}
	if len(full) != len(ApiKeyPrefix)+apiKeyBodyLength {
		t.Fatalf("full key length = %d", len(full))
	}

	lookup := &fakeLookup{keys: []*store.ApiKey{
		{ID: "k1", UserID: "u1", KeyPrefix: prefix, KeyHash: hash, Scopes: []string{store.ScopeRead}, IsActive: true},
	}}

	id, err := VerifyApiKey(lookup, full)
	if err != nil {
		t.Fatalf("VerifyApiKey: %v", err)
	}
	if id.UserID != "u1" || !id.HasScope(store.ScopeRead) {
		t.Fatalf("identity = %+v", id)
	}
}

func TestVerifyApiKeyRejectsMalformed(t *testing.T) {
	lookup := &fakeLookup{}
	if _, err := VerifyApiKey(lookup, "not-a-key"); err == nil {
		t.Fatal("expected malformed key to be rejected")
	}
}

func TestVerifyApiKeyRejectsExpired(t *testing.T) {
	full, prefix, hash, err := GenerateApiKey()
	if err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	lookup := &fakeLookup{keys: []*store.ApiKey{
		{ID: "k1", UserID: "u1", KeyPrefix: prefix, KeyHash: hash, ExpiresAt: &past, IsActive: true},
	}}
	if _, err := VerifyApiKey(lookup, full); err == nil {
		t.Fatal("expected expired key to be rejected")
	}
}

func TestIssueAndVerifyToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "u1", "u1@example.com", store.RoleUser)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	id, err := VerifyToken(secret, token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", id.UserID)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-a"), "u1", "u1@example.com", store.RoleUser)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := VerifyToken([]byte("secret-b"), token); err == nil {
		t.Fatal("expected token signed with a different secret to fail verification")
	}
}

func TestIssueAndVerifyRefreshToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueRefreshToken(secret, "u1", "u1@example.com", store.RoleUser)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	id, err := VerifyRefreshToken(secret, token)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if id.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", id.UserID)
	}
}

func TestVerifyTokenRejectsRefreshToken(t *testing.T) {
	secret := []byte("test-secret")
	refresh, err := IssueRefreshToken(secret, "u1", "u1@example.com", store.RoleUser)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, err := VerifyToken(secret, refresh); err == nil {
		t.Fatal("expected refresh token to be rejected as an access token")
	}
}

func TestVerifyRefreshTokenRejectsAccessToken(t *testing.T) {
	secret := []byte("test-secret")
	access, err := IssueToken(secret, "u1", "u1@example.com", store.RoleUser)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := VerifyRefreshToken(secret, access); err == nil {
		t.Fatal("expected access token to be rejected as a refresh token")
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword match = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Fatalf("VerifyPassword mismatch = %v, %v", ok, err)
	}
}
