// Package reconcile runs the periodic and startup full scan that aligns
// the database with whatever actually sits on disk (§4.G). It is the
// component that owns the "disk and DB eventually agree" invariant; the
// document engine's hash short-circuit is what makes a full rescan cheap.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/fsstore"
	"github.com/derezo/docstore/internal/store"
)

// DefaultInterval is how often a full reconcile pass runs in the background.
const DefaultInterval = 6 * time.Hour

// Reconciler periodically diffs every vault's on-disk subtree against its
// document rows.
type Reconciler struct {
	dataDir  string
	db       *store.DB
	engine   *docengine.Engine
	interval time.Duration
	log      zerolog.Logger
}

// New builds a Reconciler. interval <= 0 uses DefaultInterval.
func New(dataDir string, db *store.DB, engine *docengine.Engine, interval time.Duration, log zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{dataDir: dataDir, db: db, engine: engine, interval: interval, log: log}
}

// Run performs an immediate pass, then repeats every interval until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.RunOnce(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce walks every user's every vault exactly once, reconciling disk
// against the database.
func (r *Reconciler) RunOnce(ctx context.Context) {
	start := time.Now()
	users, err := r.listUsers()
	if err != nil {
		r.log.Error().Err(err).Msg("reconciler could not list users")
		return
	}

	var totalSynced, totalRemoved int
	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		vaults, err := r.db.ListVaultsByUser(u.ID)
		if err != nil {
			r.log.Error().Err(err).Str("user_id", u.ID).Msg("reconciler could not list vaults")
			continue
		}
		for _, v := range vaults {
			if ctx.Err() != nil {
				return
			}
			synced, removed, err := r.reconcileVault(u, v)
			if err != nil {
				r.log.Error().Err(err).Str("vault_id", v.ID).Msg("reconcile failed for vault")
				continue
			}
			totalSynced += synced
			totalRemoved += removed
		}
	}

	if r.db.FTSAvailable() {
		if err := r.db.RebuildFTS(); err != nil {
			r.log.Warn().Err(err).Msg("reconciler could not rebuild fts index")
		}
	}

	r.log.Info().
		Int("synced", totalSynced).
		Int("removed", totalRemoved).
		Dur("elapsed", time.Since(start)).
		Msg("reconcile pass complete")
}

func (r *Reconciler) reconcileVault(u *store.User, v *store.Vault) (synced, removed int, err error) {
	root := fsstore.VaultRoot(r.dataDir, u.ID, v.Slug)

	diskPaths, err := fsstore.WalkMarkdown(root, map[string]bool{".obsidian": true})
	if err != nil {
		return 0, 0, err
	}
	diskSet := make(map[string]bool, len(diskPaths))
	for _, p := range diskPaths {
		diskSet[p] = true
	}

	dbDocs, err := r.db.ListDocuments(v.ID, "")
	if err != nil {
		return 0, 0, err
	}

	for _, p := range diskPaths {
		content, err := fsstore.ReadFile(root, p)
		if err != nil {
			r.log.Warn().Err(err).Str("path", p).Msg("reconciler could not read file")
			continue
		}
		_, changed, err := r.engine.Put(u.ID, v.ID, p, content, store.SourceWebDAV, u.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("path", p).Msg("reconciler put failed")
			continue
		}
		if changed {
			synced++
		}
	}

	for _, d := range dbDocs {
		if diskSet[d.Path] {
			continue
		}
		if err := r.db.DeleteDocument(v.ID, d.Path); err != nil && dberr.KindOf(err) != dberr.NotFound {
			r.log.Warn().Err(err).Str("path", d.Path).Msg("reconciler could not remove orphan row")
			continue
		}
		removed++
	}

	return synced, removed, nil
}

func (r *Reconciler) listUsers() ([]*store.User, error) {
	return r.db.ListAllUsers()
}
