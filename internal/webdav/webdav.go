// Package webdav implements the WebDAV protocol engine (§4.I): method
// dispatch, multistatus XML, Destination/Overwrite handling, and the
// asynchronous notification back into the document engine that keeps the
// database in step with whatever a WebDAV client just wrote to disk.
package webdav

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/fsstore"
	"github.com/derezo/docstore/internal/pathsafe"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
)

// methodPropfind is not one of net/http's predefined method constants.
const methodPropfind = "PROPFIND"

const (
	methodMkcol  = "MKCOL"
	methodMove   = "MOVE"
	methodCopy   = "COPY"
	methodLock   = "LOCK"
	methodUnlock = "UNLOCK"
)

// Handler serves /webdav/{vaultSlug}/{relPath*} per §4.I.
type Handler struct {
	DB      *store.DB
	Engine  *docengine.Engine
	Coord   *sync.Coordinator
	DataDir string
	Log     zerolog.Logger
}

// Mount registers the handler's routes on r under "/webdav".
func (h *Handler) Mount(r chi.Router) {
	r.HandleFunc("/webdav/{vaultSlug}/*", h.ServeHTTP)
	r.HandleFunc("/webdav/{vaultSlug}", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vaultSlug := chi.URLParam(r, "vaultSlug")

	if r.Method == http.MethodOptions {
		w.Header().Set("DAV", "1, 2")
		w.Header().Set("Allow", "OPTIONS, PROPFIND, GET, HEAD, PUT, DELETE, MKCOL, MOVE, COPY, LOCK, UNLOCK")
		w.WriteHeader(http.StatusOK)
		return
	}

	auth, ok := h.authenticate(w, r, vaultSlug)
	if !ok {
		return
	}

	relPath := pathsafe.Normalize(chi.URLParam(r, "*"))
	if relPath != "" {
		if err := pathsafe.ValidateRelPath(relPath); err != nil {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
	}

	switch r.Method {
	case methodPropfind:
		h.handlePropfind(w, r, auth, relPath)
	case http.MethodGet, http.MethodHead:
		h.handleGet(w, r, auth, relPath)
	case http.MethodPut:
		h.handlePut(w, r, auth, relPath)
	case http.MethodDelete:
		h.handleDelete(w, r, auth, relPath)
	case methodMkcol:
		h.handleMkcol(w, r, auth, relPath)
	case methodMove:
		h.handleMoveOrCopy(w, r, auth, relPath, false)
	case methodCopy:
		h.handleMoveOrCopy(w, r, auth, relPath, true)
	case methodLock:
		h.handleLock(w, r)
	case methodUnlock:
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) vaultRoot(auth *authedRequest) string {
	return fsstore.VaultRoot(h.DataDir, auth.user.ID, auth.vault.Slug)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, auth *authedRequest, relPath string) {
	root := h.vaultRoot(auth)
	kind, err := fsstore.PathExists(root, relPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if kind == fsstore.None {
		http.NotFound(w, r)
		return
	}
	if kind == fsstore.Directory {
		http.Error(w, "cannot GET a directory", http.StatusMethodNotAllowed)
		return
	}

	info, err := fsstore.Stat(root, relPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	w.Header().Set("ETag", etagFor(info.Size(), info.ModTime()))
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	content, err := fsstore.ReadFile(root, relPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	w.Write(content)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request, auth *authedRequest, relPath string) {
	root := h.vaultRoot(auth)
	existedBefore, err := fsstore.PathExists(root, relPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if existedBefore == fsstore.Directory {
		http.Error(w, "cannot PUT over a directory", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPutBytes+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxPutBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := fsstore.WriteFile(root, relPath, body); err != nil {
		writeDberr(w, err)
		return
	}
	h.Coord.MarkRecentlyWritten(fsstore.AbsPath(root, relPath))

	if strings.HasSuffix(relPath, ".md") && !isObsidianPath(relPath) {
		go h.notifyPut(auth, relPath, body)
	}

	if existedBefore == fsstore.None {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

// maxPutBytes bounds request bodies per §4.J's document size limit (10 MiB).
const maxPutBytes = 10 << 20

func (h *Handler) notifyPut(auth *authedRequest, relPath string, content []byte) {
	if _, _, err := h.Engine.Put(auth.user.ID, auth.vault.ID, relPath, content, store.SourceWebDAV, auth.user.ID); err != nil {
		h.Log.Warn().Err(err).Str("path", relPath).Msg("webdav put notification to engine failed")
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, auth *authedRequest, relPath string) {
	root := h.vaultRoot(auth)
	kind, err := fsstore.PathExists(root, relPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if kind == fsstore.None {
		http.NotFound(w, r)
		return
	}

	if kind == fsstore.File {
		if err := fsstore.DeleteFile(root, relPath); err != nil {
			writeDberr(w, err)
			return
		}
	} else {
		if err := fsstore.DeleteDir(root, relPath); err != nil {
			writeDberr(w, err)
			return
		}
	}
	h.Coord.MarkRecentlyWritten(fsstore.AbsPath(root, relPath))
	go h.notifyRemove(auth, relPath)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) notifyRemove(auth *authedRequest, relPath string) {
	if err := h.Engine.Remove(auth.user.ID, auth.vault.ID, relPath); err != nil && dberr.KindOf(err) != dberr.NotFound {
		h.Log.Warn().Err(err).Str("path", relPath).Msg("webdav delete notification to engine failed")
	}
}

func (h *Handler) handleMkcol(w http.ResponseWriter, r *http.Request, auth *authedRequest, relPath string) {
	root := h.vaultRoot(auth)
	kind, err := fsstore.PathExists(root, relPath)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if kind != fsstore.None {
		http.Error(w, "already exists", http.StatusMethodNotAllowed)
		return
	}
	parent := path.Dir(relPath)
	if parent != "." {
		parentKind, err := fsstore.PathExists(root, parent)
		if err != nil {
			writeDberr(w, err)
			return
		}
		if parentKind != fsstore.Directory {
			http.Error(w, "parent does not exist", http.StatusConflict)
			return
		}
	}
	if err := fsstore.Mkdir(root, relPath); err != nil {
		writeDberr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleMoveOrCopy(w http.ResponseWriter, r *http.Request, auth *authedRequest, src string, isCopy bool) {
	dst, ok := h.parseDestination(w, r, auth.vault.Slug)
	if !ok {
		return
	}
	if err := pathsafe.ValidateRelPath(dst); err != nil {
		http.Error(w, "invalid destination path", http.StatusBadRequest)
		return
	}

	overwrite := strings.ToUpper(r.Header.Get("Overwrite"))
	if overwrite == "" {
		overwrite = "T"
	}
	if overwrite != "T" && overwrite != "F" {
		http.Error(w, "invalid Overwrite header", http.StatusBadRequest)
		return
	}

	root := h.vaultRoot(auth)
	dstKind, err := fsstore.PathExists(root, dst)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if dstKind != fsstore.None && overwrite == "F" {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	successCode := http.StatusCreated
	if dstKind != fsstore.None {
		successCode = http.StatusNoContent
	}

	if isCopy {
		if err := h.Engine.Copy(auth.user.ID, auth.vault.ID, src, dst, store.SourceWebDAV, auth.user.ID); err != nil {
			writeDberr(w, err)
			return
		}
	} else {
		if err := h.Engine.Move(auth.user.ID, auth.vault.ID, src, dst, overwrite == "T"); err != nil {
			writeDberr(w, err)
			return
		}
	}
	w.WriteHeader(successCode)
}

// parseDestination implements §4.I's Destination header rules: accept an
// absolute URL or absolute path, percent-decode once, strip the
// "/webdav/{vaultSlug}" prefix, and reject cross-vault targets.
func (h *Handler) parseDestination(w http.ResponseWriter, r *http.Request, vaultSlug string) (string, bool) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		http.Error(w, "missing Destination header", http.StatusBadRequest)
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		http.Error(w, "invalid Destination header", http.StatusBadRequest)
		return "", false
	}
	decoded, err := url.PathUnescape(u.Path)
	if err != nil {
		http.Error(w, "invalid Destination header", http.StatusBadRequest)
		return "", false
	}

	wantPrefix := "/webdav/" + vaultSlug
	if !strings.HasPrefix(decoded, wantPrefix+"/") && decoded != wantPrefix {
		http.Error(w, "move/copy across vaults is not supported", http.StatusBadRequest)
		return "", false
	}
	rel := strings.TrimPrefix(decoded, wantPrefix)
	return pathsafe.Normalize(rel), true
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(lockResponseXML()))
}

func isObsidianPath(relPath string) bool {
	return strings.HasPrefix(relPath, ".obsidian/")
}

func writeDberr(w http.ResponseWriter, err error) {
	switch dberr.KindOf(err) {
	case dberr.NotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case dberr.Conflict:
		http.Error(w, err.Error(), http.StatusConflict)
	case dberr.Validation, dberr.PathTraversal:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case dberr.Unauthorized:
		http.Error(w, err.Error(), http.StatusForbidden)
	case dberr.Unauthenticated:
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
