package api

import (
	"encoding/json"
	"net/http"

	"github.com/derezo/docstore/internal/dberr"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDberr maps the engine's tagged error kinds onto HTTP status codes
// (§7's propagation rule: the engine never knows about HTTP, only this
// adapter layer does).
func writeDberr(w http.ResponseWriter, err error) {
	switch dberr.KindOf(err) {
	case dberr.NotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case dberr.Conflict:
		writeError(w, http.StatusConflict, err.Error())
	case dberr.Validation:
		writeError(w, http.StatusBadRequest, err.Error())
	case dberr.PathTraversal:
		writeError(w, http.StatusBadRequest, err.Error())
	case dberr.Unauthorized:
		writeError(w, http.StatusForbidden, err.Error())
	case dberr.Unauthenticated:
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
