// Package api implements the HTTP JSON surface (§4.J, §6): a thin adapter
// that verifies caller identity, schema-validates request bodies, and
// dispatches into the document engine with source="api". No request is
// recorded with source="web".
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
)

// maxBodyBytes bounds every non-document request body.
const maxBodyBytes = 1 << 20

// Schema bounds from §4.J.
const (
	maxDocumentBytes  = 10 << 20
	maxVaultNameLen   = 100
	maxVaultDescLen   = 1000
	maxPathLen        = 512
	invitationTTL     = 7 * 24 * time.Hour
	refreshCookiePath = "/api/v1/auth/refresh"
)

// Handler serves /api/v1/... per §6.
type Handler struct {
	DB                *store.DB
	Engine            *docengine.Engine
	Coord             *sync.Coordinator
	JWTSecret         []byte
	RefreshCookieName string
	AllowedOrigins    []string
	Log               zerolog.Logger
}

// Mount registers every route under /api/v1 on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   h.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
		}).Handler)

		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/refresh", h.handleRefresh)
		r.Post("/auth/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Get("/users/me", h.handleMe)
			r.Get("/users/me/storage", h.handleMyStorage)
			r.Post("/users/invite", h.handleInviteUser)
			r.Get("/users/invitations", h.handleListInvitations)
			r.Delete("/users/invitations/{id}", h.handleDeleteInvitation)

			r.Get("/vaults", h.handleListVaults)
			r.Post("/vaults", h.handleCreateVault)
			r.Get("/vaults/{vaultID}", h.handleGetVault)
			r.Patch("/vaults/{vaultID}", h.handleUpdateVault)
			r.Delete("/vaults/{vaultID}", h.handleDeleteVault)
			r.Get("/vaults/{vaultID}/tree", h.handleVaultTree)
			r.Get("/vaults/{vaultID}/documents", h.handleListDocuments)

			// handleGetDocument also serves the nested ".../versions" route,
			// since chi wildcards can't express a literal suffix after "*".
			r.Get("/vaults/{vaultID}/documents/*", h.handleGetDocument)
			r.Put("/vaults/{vaultID}/documents/*", h.handlePutDocument)
			r.Delete("/vaults/{vaultID}/documents/*", h.handleDeleteDocument)

			r.Get("/search", h.handleSearch)

			r.Get("/api-keys", h.handleListApiKeys)
			r.Post("/api-keys", h.handleCreateApiKey)
			r.Patch("/api-keys/{id}", h.handleUpdateApiKey)
			r.Delete("/api-keys/{id}", h.handleDeleteApiKey)
		})
	})
}
