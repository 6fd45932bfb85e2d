package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/identity"
	"github.com/derezo/docstore/internal/store"
)

type apiKeyView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	KeyPrefix  string  `json:"keyPrefix"`
	Scopes     []string `json:"scopes"`
	VaultID    *string `json:"vaultId,omitempty"`
	ExpiresAt  *string `json:"expiresAt,omitempty"`
	LastUsedAt *string `json:"lastUsedAt,omitempty"`
	IsActive   bool    `json:"isActive"`
	CreatedAt  string  `json:"createdAt"`
}

func formatTimePtrRFC3339(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toApiKeyView(k *store.ApiKey) apiKeyView {
	return apiKeyView{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Scopes:     k.Scopes,
		VaultID:    k.VaultID,
		ExpiresAt:  formatTimePtrRFC3339(k.ExpiresAt),
		LastUsedAt: formatTimePtrRFC3339(k.LastUsedAt),
		IsActive:   k.IsActive,
		CreatedAt:  k.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleListApiKeys(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	keys, err := h.DB.ListApiKeysByUser(id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	views := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, toApiKeyView(k))
	}
	writeJSON(w, http.StatusOK, views)
}

type createApiKeyRequest struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	VaultID   *string  `json:"vaultId"`
	ExpiresAt *string  `json:"expiresAt"`
}

func (h *Handler) handleCreateApiKey(w http.ResponseWriter, r *http.Request) {
	callerID := identityFromContext(r)
	var req createApiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, s := range req.Scopes {
		if s != store.ScopeRead && s != store.ScopeWrite {
			writeError(w, http.StatusBadRequest, "unrecognized scope: "+s)
			return
		}
	}
	if req.VaultID != nil {
		v, err := h.DB.GetVaultByID(*req.VaultID)
		if err != nil {
			writeDberr(w, err)
			return
		}
		if v.UserID != callerID.UserID {
			writeError(w, http.StatusNotFound, "vault not found")
			return
		}
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expiresAt must be RFC3339")
			return
		}
		expiresAt = &t
	}

	full, prefix, hash, err := identity.GenerateApiKey()
	if err != nil {
		writeDberr(w, err)
		return
	}
	k := &store.ApiKey{
		UserID:    callerID.UserID,
		Name:      req.Name,
		KeyPrefix: prefix,
		KeyHash:   hash,
		Scopes:    req.Scopes,
		VaultID:   req.VaultID,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := h.DB.CreateApiKey(k); err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"apiKey": toApiKeyView(k),
		"key":    full,
	})
}

// resolveApiKey loads an API key by its {id} route param, confirming the
// caller owns it.
func (h *Handler) resolveApiKey(r *http.Request) (*store.ApiKey, error) {
	callerID := identityFromContext(r)
	k, err := h.DB.GetApiKeyByID(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if k.UserID != callerID.UserID {
		return nil, dberr.New(dberr.NotFound, "api key not found")
	}
	return k, nil
}

type updateApiKeyRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"isActive"`
}

func (h *Handler) handleUpdateApiKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.resolveApiKey(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	var req updateApiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		if err := h.DB.UpdateApiKeyName(k.ID, name); err != nil {
			writeDberr(w, err)
			return
		}
		k.Name = name
	}
	if req.IsActive != nil && !*req.IsActive {
		if err := h.DB.RevokeApiKey(k.ID); err != nil {
			writeDberr(w, err)
			return
		}
		k.IsActive = false
	}
	writeJSON(w, http.StatusOK, toApiKeyView(k))
}

func (h *Handler) handleDeleteApiKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.resolveApiKey(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if err := h.DB.RevokeApiKey(k.ID); err != nil {
		writeDberr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
