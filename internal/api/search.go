package api

import (
	"net/http"
	"strconv"
	"strings"
)

type searchResultView struct {
	Document documentView `json:"document"`
	Score    float64      `json:"score"`
}

// handleSearch implements `GET /search?q=&vault=&tags=&limit=&offset=`
// (§6): store.DB.Search ranks matches by bm25; the tag filter and
// offset/limit pagination are this adapter's responsibility.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	vaultID := q.Get("vault")
	if query == "" || vaultID == "" {
		writeError(w, http.StatusBadRequest, "q and vault are required")
		return
	}
	if !requireVaultScope(id, vaultID) {
		writeError(w, http.StatusForbidden, "api key is not scoped to this vault")
		return
	}
	v, err := h.DB.GetVaultByID(vaultID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if v.UserID != id.UserID {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}

	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	var wantTags []string
	if raw := q.Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
				wantTags = append(wantTags, t)
			}
		}
	}

	results, err := h.DB.Search(vaultID, query, limit+offset)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if len(wantTags) > 0 {
		filtered := results[:0]
		for _, res := range results {
			if hasAllTags(res.Document.Tags, wantTags) {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	if offset >= len(results) {
		writeJSON(w, http.StatusOK, []searchResultView{})
		return
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}

	views := make([]searchResultView, 0, len(results))
	for _, res := range results {
		views = append(views, searchResultView{Document: toDocumentView(res.Document), Score: res.Score})
	}
	writeJSON(w, http.StatusOK, views)
}

func hasAllTags(docTags, want []string) bool {
	have := make(map[string]bool, len(docTags))
	for _, t := range docTags {
		have[strings.ToLower(t)] = true
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}
