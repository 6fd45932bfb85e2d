package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/derezo/docstore/internal/identity"
	"github.com/derezo/docstore/internal/store"
)

type ctxKey int

const identityCtxKey ctxKey = 0

// authMiddleware verifies the Authorization bearer credential — a JWT
// access token or a "ds_k_"-prefixed API key — and attaches the resolved
// identity.Identity to the request context (§4.K).
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}
		raw := strings.TrimPrefix(auth, prefix)

		var id identity.Identity
		var err error
		if strings.HasPrefix(raw, identity.ApiKeyPrefix) {
			id, err = identity.VerifyApiKey(h.DB, raw)
		} else {
			id, err = identity.VerifyToken(h.JWTSecret, raw)
		}
		if err != nil {
			writeDberr(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(r *http.Request) identity.Identity {
	id, _ := r.Context().Value(identityCtxKey).(identity.Identity)
	return id
}

// requireWriteScope reports whether the caller's identity permits writes.
// API-key identities carry explicit scopes; JWT session identities always
// carry both (see identity.VerifyToken).
func requireWriteScope(id identity.Identity) bool {
	return id.HasScope(store.ScopeWrite)
}

// requireVaultScope reports whether id is permitted to act on vaultID — an
// API key scoped to a single vault may only touch that vault.
func requireVaultScope(id identity.Identity, vaultID string) bool {
	return id.VaultID == nil || *id.VaultID == vaultID
}

func (h *Handler) currentUser(r *http.Request) (*store.User, error) {
	id := identityFromContext(r)
	return h.DB.GetUserByID(id.UserID)
}
