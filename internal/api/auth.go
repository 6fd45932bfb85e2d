package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/derezo/docstore/internal/identity"
	"github.com/derezo/docstore/internal/store"
)

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	DisplayName     string `json:"displayName"`
	InvitationToken string `json:"invitationToken"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string    `json:"accessToken"`
	User        *userView `json:"user"`
}

type userView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func toUserView(u *store.User) *userView {
	return &userView{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// setRefreshCookie attaches the opaque, HttpOnly, SameSite-strict refresh
// cookie scoped to the refresh endpoint's own path (§6).
func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(identity.RefreshTokenTTL.Seconds()),
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func (h *Handler) issueSession(w http.ResponseWriter, u *store.User) error {
	access, err := identity.IssueToken(h.JWTSecret, u.ID, u.Email, u.Role)
	if err != nil {
		return err
	}
	refresh, err := identity.IssueRefreshToken(h.JWTSecret, u.ID, u.Email, u.Role)
	if err != nil {
		return err
	}
	h.setRefreshCookie(w, refresh)
	writeJSON(w, http.StatusOK, authResponse{AccessToken: access, User: toUserView(u)})
	return nil
}

// handleRegister creates a user account. A non-empty invitationToken is
// required unless this is the very first account on the instance.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "email and a password of at least 8 characters are required")
		return
	}

	role := store.RoleUser
	if req.InvitationToken != "" {
		inv, err := h.DB.ConsumeInvitation(req.InvitationToken, time.Now())
		if err != nil {
			writeDberr(w, err)
			return
		}
		if !strings.EqualFold(inv.Email, req.Email) {
			writeError(w, http.StatusBadRequest, "invitation was issued to a different email address")
			return
		}
	} else {
		users, err := h.DB.ListAllUsers()
		if err != nil {
			writeDberr(w, err)
			return
		}
		if len(users) > 0 {
			writeError(w, http.StatusForbidden, "an invitation is required to register")
			return
		}
		role = store.RoleAdmin
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		writeDberr(w, err)
		return
	}
	u := &store.User{
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.DB.CreateUser(u); err != nil {
		writeDberr(w, err)
		return
	}
	if err := h.issueSession(w, u); err != nil {
		writeDberr(w, err)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	u, err := h.DB.GetUserByEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	ok, err := identity.VerifyPassword(req.Password, u.PasswordHash)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if !ok || !u.IsActive {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := h.issueSession(w, u); err != nil {
		writeDberr(w, err)
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.RefreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing refresh cookie")
		return
	}
	id, err := identity.VerifyRefreshToken(h.JWTSecret, cookie.Value)
	if err != nil {
		writeDberr(w, err)
		return
	}
	u, err := h.DB.GetUserByID(id.UserID)
	if err != nil {
		writeDberr(w, err)
		return
	}
	if !u.IsActive {
		writeError(w, http.StatusUnauthorized, "account is deactivated")
		return
	}
	if err := h.issueSession(w, u); err != nil {
		writeDberr(w, err)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
