package webdav

import (
	"net/http"
	"strings"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/identity"
	"github.com/derezo/docstore/internal/store"
)

// authedRequest is the outcome of authenticating and resolving a WebDAV
// request's target vault (§4.I: every method but OPTIONS requires Basic
// auth carrying email:apiKey).
type authedRequest struct {
	user  *store.User
	vault *store.Vault
}

// authenticate implements the auth step of the Received → Authed →
// PathValidated → Dispatched → Responded state machine.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, vaultSlug string) (*authedRequest, bool) {
	email, apiKey, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="webdav"`)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}

	id, err := identity.VerifyApiKey(h.DB, apiKey)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="webdav"`)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return nil, false
	}

	u, err := h.DB.GetUserByID(id.UserID)
	if err != nil || !strings.EqualFold(u.Email, email) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return nil, false
	}

	if id.VaultID != nil {
		v, err := h.DB.GetVaultByID(*id.VaultID)
		if err != nil || v.Slug != vaultSlug {
			http.Error(w, "key is not scoped to this vault", http.StatusForbidden)
			return nil, false
		}
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != methodPropfind {
		if !id.HasScope(store.ScopeWrite) {
			http.Error(w, "key lacks write scope", http.StatusForbidden)
			return nil, false
		}
	}

	v, err := h.DB.GetVaultBySlug(u.ID, vaultSlug)
	if err != nil {
		if dberr.KindOf(err) == dberr.NotFound {
			http.Error(w, "vault not found", http.StatusNotFound)
		} else {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return nil, false
	}

	return &authedRequest{user: u, vault: v}, true
}
