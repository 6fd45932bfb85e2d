package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/derezo/docstore/internal/store"
)

const versionsSuffix = "/versions"

type documentVersionView struct {
	VersionNum   int    `json:"versionNum"`
	ContentHash  string `json:"contentHash"`
	SizeBytes    int64  `json:"sizeBytes"`
	ChangeSource string `json:"changeSource"`
	ChangedBy    string `json:"changedBy"`
	CreatedAt    string `json:"createdAt"`
}

func toVersionView(v *store.DocumentVersion) documentVersionView {
	return documentVersionView{
		VersionNum:   v.VersionNum,
		ContentHash:  v.ContentHash,
		SizeBytes:    v.SizeBytes,
		ChangeSource: v.ChangeSource,
		ChangedBy:    v.ChangedBy,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
}

// handleGetDocument serves both "GET .../documents/{path}" (document
// metadata + body) and "GET .../documents/{path}/versions" (version
// history), since chi cannot express a literal route segment following a
// wildcard capture.
func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	v, err := h.resolveVault(r)
	if err != nil {
		writeDberr(w, err)
		return
	}

	rawPath := chi.URLParam(r, "*")
	if strings.HasSuffix(rawPath, versionsSuffix) {
		docPath := strings.TrimSuffix(rawPath, versionsSuffix)
		versions, err := h.Engine.GetVersions(id.UserID, v.ID, docPath)
		if err != nil {
			writeDberr(w, err)
			return
		}
		views := make([]documentVersionView, 0, len(versions))
		for _, ver := range versions {
			views = append(views, toVersionView(ver))
		}
		writeJSON(w, http.StatusOK, views)
		return
	}

	if len(rawPath) > maxPathLen {
		writeError(w, http.StatusBadRequest, "path too long")
		return
	}
	doc, err := h.DB.GetDocument(v.ID, rawPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	content, err := h.Engine.Read(id.UserID, v.ID, rawPath)
	if err != nil {
		writeDberr(w, err)
		return
	}

	if r.URL.Query().Get("raw") == "true" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("ETag", doc.ContentHash)
		w.Write(content)
		return
	}
	view := toDocumentView(doc)
	writeJSON(w, http.StatusOK, map[string]any{"document": view, "content": string(content)})
}

func (h *Handler) handlePutDocument(w http.ResponseWriter, r *http.Request) {
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
	relPath := chi.URLParam(r, "*")
	if len(relPath) > maxPathLen {
		writeError(w, http.StatusBadRequest, "path too long")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "body exceeds the 10 MiB document limit or could not be read")
		return
	}

	doc, _, err := h.Engine.Put(id.UserID, v.ID, relPath, content, store.SourceAPI, id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentView(doc))
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
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
	relPath := chi.URLParam(r, "*")
	if err := h.Engine.Remove(id.UserID, v.ID, relPath); err != nil {
		writeDberr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
