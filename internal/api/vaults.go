package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/store"
)

type vaultView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toVaultView(v *store.Vault) vaultView {
	return vaultView{
		ID:          v.ID,
		Name:        v.Name,
		Slug:        v.Slug,
		Description: v.Description,
		CreatedAt:   v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   v.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleListVaults(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	vaults, err := h.DB.ListVaultsByUser(id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	views := make([]vaultView, 0, len(vaults))
	for _, v := range vaults {
		views = append(views, toVaultView(v))
	}
	writeJSON(w, http.StatusOK, views)
}

type createVaultRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	if !requireWriteScope(id) {
		writeError(w, http.StatusForbidden, "write scope required")
		return
	}
	var req createVaultRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxVaultNameLen {
		writeError(w, http.StatusBadRequest, "vault name must be 1-100 characters")
		return
	}
	if len(req.Description) > maxVaultDescLen {
		writeError(w, http.StatusBadRequest, "vault description must be at most 1000 characters")
		return
	}
	v, err := h.Engine.CreateVault(id.UserID, req.Name, req.Description)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVaultView(v))
}

// resolveVault loads the vault named by the {vaultID} route param, confirming
// the caller's identity may act on it (ownership, and vault-scoped API keys).
func (h *Handler) resolveVault(r *http.Request) (*store.Vault, error) {
	id := identityFromContext(r)
	vaultID := chi.URLParam(r, "vaultID")
	if !requireVaultScope(id, vaultID) {
		return nil, dberr.New(dberr.Unauthorized, "api key is not scoped to this vault")
	}
	v, err := h.DB.GetVaultByID(vaultID)
	if err != nil {
		return nil, err
	}
	if v.UserID != id.UserID {
		return nil, dberr.New(dberr.NotFound, "vault not found")
	}
	return v, nil
}

func (h *Handler) handleGetVault(w http.ResponseWriter, r *http.Request) {
	v, err := h.resolveVault(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVaultView(v))
}

type updateVaultRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) handleUpdateVault(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	if !requireWriteScope(id) {
		writeError(w, http.StatusForbidden, "write scope required")
		return
	}
	v, err := h.resolveVault(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	var req updateVaultRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := v.Name
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" || len(name) > maxVaultNameLen {
			writeError(w, http.StatusBadRequest, "vault name must be 1-100 characters")
			return
		}
	}
	desc := v.Description
	if req.Description != nil {
		desc = *req.Description
		if len(desc) > maxVaultDescLen {
			writeError(w, http.StatusBadRequest, "vault description must be at most 1000 characters")
			return
		}
	}
	updated, err := h.Engine.RenameVault(id.UserID, v.ID, name, desc)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVaultView(updated))
}

func (h *Handler) handleDeleteVault(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	if !requireWriteScope(id) {
		writeError(w, http.StatusForbidden, "write scope required")
		return
	}
	v, err := h.resolveVault(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if err := h.Engine.DeleteVault(id.UserID, v.ID); err != nil {
		writeDberr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVaultTree(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	v, err := h.resolveVault(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	tree, err := h.Engine.Tree(id.UserID, v.ID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type documentView struct {
	ID             string         `json:"id"`
	VaultID        string         `json:"vaultId"`
	Path           string         `json:"path"`
	Title          string         `json:"title,omitempty"`
	ContentHash    string         `json:"contentHash"`
	SizeBytes      int64          `json:"sizeBytes"`
	Frontmatter    map[string]any `json:"frontmatter,omitempty"`
	Tags           []string       `json:"tags"`
	FileCreatedAt  string         `json:"fileCreatedAt"`
	FileModifiedAt string         `json:"fileModifiedAt"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
}

func toDocumentView(d *store.Document) documentView {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return documentView{
		ID:             d.ID,
		VaultID:        d.VaultID,
		Path:           d.Path,
		Title:          d.Title,
		ContentHash:    d.ContentHash,
		SizeBytes:      d.SizeBytes,
		Frontmatter:    d.Frontmatter,
		Tags:           tags,
		FileCreatedAt:  d.FileCreatedAt.Format(time.RFC3339),
		FileModifiedAt: d.FileModifiedAt.Format(time.RFC3339),
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	v, err := h.resolveVault(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	dirPath := r.URL.Query().Get("path")
	docs, err := h.Engine.List(id.UserID, v.ID, dirPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, toDocumentView(d))
	}
	writeJSON(w, http.StatusOK, views)
}
