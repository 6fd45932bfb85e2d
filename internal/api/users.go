package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/derezo/docstore/internal/identity"
	"github.com/derezo/docstore/internal/store"
)

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

type storageView struct {
	TotalBytes int64 `json:"totalBytes"`
	DocCount   int   `json:"docCount"`
}

func (h *Handler) handleMyStorage(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	total, count, err := h.DB.UserStorageUsage(id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, storageView{TotalBytes: total, DocCount: count})
}

type inviteRequest struct {
	Email string `json:"email"`
}

type invitationView struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Token     string  `json:"token,omitempty"`
	ExpiresAt string  `json:"expiresAt"`
	Accepted  bool    `json:"accepted"`
	CreatedAt string  `json:"createdAt"`
}

func toInvitationView(inv *store.Invitation) invitationView {
	return invitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
		Accepted:  inv.AcceptedAt != nil,
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
}

// handleInviteUser is admin-only: it mints a random invitation token with a
// 7-day expiry (§4.J invitation flow, out of the engine's scope per spec.md
// §1, so it is implemented here at the adapter layer).
func (h *Handler) handleInviteUser(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	inviter, err := h.DB.GetUserByID(id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if inviter.Role != store.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	token, err := identity.EncodeRandomToken(24)
	if err != nil {
		writeDberr(w, err)
		return
	}
	inv := &store.Invitation{
		Email:     req.Email,
		Token:     token,
		InviterID: inviter.ID,
		ExpiresAt: time.Now().Add(invitationTTL),
	}
	if err := h.DB.CreateInvitation(inv); err != nil {
		writeDberr(w, err)
		return
	}
	view := toInvitationView(inv)
	view.Token = token
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	invs, err := h.DB.ListInvitationsByInviter(id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	views := make([]invitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, toInvitationView(inv))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleDeleteInvitation(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r)
	invID := chi.URLParam(r, "id")

	inv, err := h.DB.GetInvitationByID(invID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if inv.InviterID != id.UserID {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}
	if err := h.DB.DeleteInvitation(invID); err != nil {
		writeDberr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
