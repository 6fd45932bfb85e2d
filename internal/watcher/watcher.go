// Package watcher observes DATA_DIR for external filesystem changes (§4.F)
// and feeds them back into the document engine, filtering out the engine's
// own writes via the sync coordinator.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/fsstore"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
)

// skipDirNames are directories the watcher never descends into, beyond the
// generic dotfile rule (§4.F names ".obsidian/" as an explicit exception
// the protocol engine grants its clients, not the watcher, so it stays
// excluded here too).
var skipDirNames = map[string]bool{
	".git": true,
}

// Watcher watches dataDir recursively. Add/change events are applied to
// the document engine once they've been quiescent for the coordinator's
// debounce window; unlink and rename events delete the document row at
// once, without debouncing.
type Watcher struct {
	dataDir string
	db      *store.DB
	engine  *docengine.Engine
	coord   *sync.Coordinator
	log     zerolog.Logger

	fsw *fsnotify.Watcher
}

// New builds a Watcher. coord should be the same Coordinator instance
// passed to the Engine, since recently-written markers must be visible
// across both.
func New(dataDir string, db *store.DB, engine *docengine.Engine, coord *sync.Coordinator, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "create fsnotify watcher", err)
	}
	return &Watcher{dataDir: dataDir, db: db, engine: engine, coord: coord, log: log, fsw: fsw}, nil
}

// Run adds dataDir's existing directory tree to the watch list and
// processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	dirs, err := walkDirs(w.dataDir)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := w.fsw.Add(d); err != nil {
			w.log.Warn().Err(err).Str("dir", d).Msg("could not watch directory")
		}
	}
	w.log.Info().Int("dirs", len(dirs)).Str("data_dir", w.dataDir).Msg("watcher started")

	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.coord.Stop()
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	if event.Has(fsnotify.Create) {
		if isDir, _ := isDirectory(event.Name); isDir && !ignoredDirName(name) {
			if err := w.fsw.Add(event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("could not watch new directory")
			}
			return
		}
	}

	if !shouldTrackFile(name) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.handleUnlink(event.Name)
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		path := event.Name
		w.coord.Debounce(path, func() { w.handleStableEvent(path) })
	}
}

func (w *Watcher) handleStableEvent(absPath string) {
	if w.coord.ConsumeRecentlyWritten(absPath) {
		return
	}

	userID, vaultSlug, docPath, ok := w.splitPath(absPath)
	if !ok {
		return
	}

	v, err := w.db.GetVaultBySlug(userID, vaultSlug)
	if err != nil {
		return
	}

	content, err := fsstore.ReadFile(fsstore.VaultRoot(w.dataDir, userID, vaultSlug), docPath)
	if err != nil {
		return
	}

	if _, _, err := w.engine.Put(userID, v.ID, docPath, content, store.SourceWebDAV, userID); err != nil {
		w.log.Warn().Err(err).Str("path", absPath).Msg("watcher-triggered put failed")
	}
}

func (w *Watcher) handleUnlink(absPath string) {
	if w.coord.ConsumeRecentlyWritten(absPath) {
		return
	}
	userID, vaultSlug, docPath, ok := w.splitPath(absPath)
	if !ok {
		return
	}
	v, err := w.db.GetVaultBySlug(userID, vaultSlug)
	if err != nil {
		return
	}
	if err := w.db.DeleteDocument(v.ID, docPath); err != nil && dberr.KindOf(err) != dberr.NotFound {
		w.log.Warn().Err(err).Str("path", absPath).Msg("watcher-triggered delete failed")
	}
}

// splitPath parses DATA_DIR/{userId}/{vaultSlug}/{docPath...} out of an
// absolute path produced by fsnotify.
func (w *Watcher) splitPath(absPath string) (userID, vaultSlug, docPath string, ok bool) {
	rel, err := filepath.Rel(w.dataDir, absPath)
	if err != nil {
		return "", "", "", false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.SplitN(rel, "/", 3)
	if len(parts) < 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func shouldTrackFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if fsstore.IsTempFile(name) {
		return false
	}
	return strings.HasSuffix(name, ".md")
}

func ignoredDirName(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirNames[name]
}

func isDirectory(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// walkDirs returns dataDir and every descendant directory, skipping
// dotfile directories and skipDirNames.
func walkDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignoredDirName(d.Name()) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "walk data dir", err)
	}
	return dirs, nil
}
