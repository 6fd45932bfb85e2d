// Package identity verifies caller credentials — bearer JWTs and API keys
// — and resolves them to a {userId, scopes, vaultId?} identity (§4.K). It
// is the only package that touches password/key hashing and token signing;
// every other component receives an already-verified Identity.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/store"
)

// ApiKeyPrefix is the fixed literal prefix every issued API key carries.
const ApiKeyPrefix = "ds_k_"

// apiKeyBodyLength is the length of the random alphanumeric body following
// ApiKeyPrefix (§3: "ds_k_" + 40 random alphanumerics).
const apiKeyBodyLength = 40

// keyIndexPrefixLength is how many characters of the body are stored as
// ApiKey.KeyPrefix for indexed lookup (§3, §4.K step 2).
const keyIndexPrefixLength = 8

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Identity is the resolved caller, independent of which credential type
// produced it.
type Identity struct {
	UserID  string
	Scopes  []string
	VaultID *string
}

// HasScope reports whether the identity carries the given scope.
func (id Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// GenerateApiKey returns a full key of the form "ds_k_" + 40 random
// alphanumerics, plus its index prefix and argon2id hash. The full key is
// returned exactly once, at issuance (§3).
func GenerateApiKey() (full, prefix, hash string, err error) {
	body, err := randomAlphanumeric(apiKeyBodyLength)
	if err != nil {
		return "", "", "", err
	}
	full = ApiKeyPrefix + body
	prefix = body[:keyIndexPrefixLength]
	hash, err = argon2id.CreateHash(full, argon2id.DefaultParams)
	if err != nil {
		return "", "", "", dberr.Wrap(dberr.Upstream, "hash api key", err)
	}
	return full, prefix, hash, nil
}

func randomAlphanumeric(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphanumeric[idx.Int64()])
	}
	return b.String(), nil
}

// KeyLookup is the subset of store.DB that VerifyApiKey depends on, so
// tests can fake it without a real database.
type KeyLookup interface {
	ListApiKeysByPrefix(prefix string) ([]*store.ApiKey, error)
	TouchApiKeyLastUsed(id string) error
}

// VerifyApiKey implements the five-step verification in §4.K: prefix
// check, indexed candidate lookup, constant-time hash compare per
// candidate, expiry check, and a fire-and-forget lastUsedAt touch.
func VerifyApiKey(lookup KeyLookup, fullKey string) (Identity, error) {
	if !strings.HasPrefix(fullKey, ApiKeyPrefix) || len(fullKey) != len(ApiKeyPrefix)+apiKeyBodyLength {
		return Identity{}, dberr.New(dberr.Unauthenticated, "malformed api key")
	}
	body := fullKey[len(ApiKeyPrefix):]
	prefix := body[:keyIndexPrefixLength]

	candidates, err := lookup.ListApiKeysByPrefix(prefix)
	if err != nil {
		return Identity{}, dberr.Wrap(dberr.Upstream, "lookup api key candidates", err)
	}

	for _, k := range candidates {
		match, err := argon2id.ComparePasswordAndHash(fullKey, k.KeyHash)
		if err != nil || !match {
			continue
		}
		if k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt) {
			return Identity{}, dberr.New(dberr.Unauthenticated, "api key expired")
		}
		go lookup.TouchApiKeyLastUsed(k.ID)
		return Identity{UserID: k.UserID, Scopes: k.Scopes, VaultID: k.VaultID}, nil
	}

	return Identity{}, dberr.New(dberr.Unauthenticated, "api key not recognized")
}

// HashPassword argon2id-hashes a plaintext password for storage on User.
func HashPassword(plaintext string) (string, error) {
	hash, err := argon2id.CreateHash(plaintext, argon2id.DefaultParams)
	if err != nil {
		return "", dberr.Wrap(dberr.Upstream, "hash password", err)
	}
	return hash, nil
}

// VerifyPassword reports whether plaintext matches the stored argon2id hash.
func VerifyPassword(plaintext, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(plaintext, hash)
	if err != nil {
		return false, dberr.Wrap(dberr.Upstream, "compare password hash", err)
	}
	return match, nil
}

// Issuer identifies the token issuer claim on every JWT this service signs.
const Issuer = "docstore"

// DefaultTokenTTL is how long an issued bearer token remains valid.
const DefaultTokenTTL = 15 * time.Minute

// Claims is the JWT payload this service signs and verifies.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ,omitempty"` // "" for access tokens, "refresh" for refresh tokens
}

// RefreshTokenTTL is how long a refresh token remains valid (§6's refresh cookie).
const RefreshTokenTTL = 7 * 24 * time.Hour

// IssueToken signs an HS256 JWT for userID valid for DefaultTokenTTL.
func IssueToken(secret []byte, userID, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DefaultTokenTTL)),
		},
		Email: email,
		Role:  role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", dberr.Wrap(dberr.Upstream, "sign token", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a long-lived HS256 JWT carrying TokenType
// "refresh", for storage in the opaque HttpOnly refresh cookie (§6).
func IssueRefreshToken(secret []byte, userID, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTokenTTL)),
		},
		Email:     email,
		Role:      role,
		TokenType: "refresh",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", dberr.Wrap(dberr.Upstream, "sign refresh token", err)
	}
	return signed, nil
}

// VerifyRefreshToken parses and validates a refresh token, rejecting access
// tokens presented in its place.
func VerifyRefreshToken(secret []byte, raw string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil || !token.Valid {
		return Identity{}, dberr.Wrap(dberr.Unauthenticated, "invalid or expired refresh token", err)
	}
	if claims.TokenType != "refresh" {
		return Identity{}, dberr.New(dberr.Unauthenticated, "not a refresh token")
	}
	return Identity{UserID: claims.Subject, Scopes: []string{store.ScopeRead, store.ScopeWrite}}, nil
}

// VerifyToken parses and validates a bearer token, returning the caller's
// identity with full scopes (JWT-authenticated sessions are never
// vault-scoped, unlike API keys).
func VerifyToken(secret []byte, raw string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil || !token.Valid {
		return Identity{}, dberr.Wrap(dberr.Unauthenticated, "invalid or expired token", err)
	}
	if claims.TokenType == "refresh" {
		return Identity{}, dberr.New(dberr.Unauthenticated, "refresh token presented as access token")
	}
	return Identity{UserID: claims.Subject, Scopes: []string{store.ScopeRead, store.ScopeWrite}}, nil
}

// EncodeRandomToken returns a URL-safe random token, used for invitation
// tokens and similar one-shot secrets.
func EncodeRandomToken(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
