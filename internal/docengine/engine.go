// Package docengine implements the dual-surface document engine (§4.D):
// the upsert/delete/list/move/copy/tree/versions operations over (vault,
// path) that keep the on-disk hierarchy and the relational store in sync.
package docengine

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/fsstore"
	"github.com/derezo/docstore/internal/mdparse"
	"github.com/derezo/docstore/internal/pathsafe"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
	"github.com/rs/zerolog/log"
)

// Engine owns the single code path every write — API, WebDAV, watcher, or
// reconciler — must go through so that disk and database never diverge in
// a way nothing ever notices.
type Engine struct {
	db       *store.DB
	dataDir  string
	coord    *sync.Coordinator
}

// New builds an Engine rooted at dataDir, using coord to publish
// recently-written markers before any write that could otherwise be
// re-observed by the watcher.
func New(db *store.DB, dataDir string, coord *sync.Coordinator) *Engine {
	return &Engine{db: db, dataDir: dataDir, coord: coord}
}

func (e *Engine) vaultRoot(userID, vaultSlug string) string {
	return fsstore.VaultRoot(e.dataDir, userID, vaultSlug)
}

// authorizeVault loads the vault and confirms it belongs to userID. Every
// engine entry point starts here (§4.D step 1).
func (e *Engine) authorizeVault(userID, vaultID string) (*store.Vault, error) {
	v, err := e.db.GetVaultByID(vaultID)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, dberr.New(dberr.NotFound, "vault not found")
	}
	return v, nil
}

// Put implements the nine-step upsert described in §4.D. content is the raw
// UTF-8 document body; source identifies which surface originated the call
// (store.SourceWeb/SourceAPI/SourceWebDAV). changed reports whether this
// call actually wrote anything — false means content matched the existing
// row's hash and the call was a no-op, which callers doing a bulk rescan
// (the reconciler, in particular) use to avoid over-counting.
func (e *Engine) Put(userID, vaultID, relPath string, content []byte, source, changedBy string) (doc *store.Document, changed bool, err error) {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return nil, false, err
	}
	if err := pathsafe.ValidateRelPath(relPath); err != nil {
		return nil, false, err
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	existing, err := e.db.GetDocument(vaultID, relPath)
	if err != nil && dberr.KindOf(err) != dberr.NotFound {
		return nil, false, err
	}
	if existing != nil && existing.ContentHash == hash {
		return existing, false, nil
	}

	root := e.vaultRoot(v.UserID, v.Slug)
	if err := fsstore.WriteFile(root, relPath, content); err != nil {
		return nil, false, err
	}

	absPath := fsstore.AbsPath(root, relPath)
	e.coord.MarkRecentlyWritten(absPath)

	extracted := mdparse.Parse(string(content))

	now := time.Now().UTC()
	doc = &store.Document{
		VaultID:         vaultID,
		Path:            relPath,
		Title:           extracted.Title,
		ContentHash:     hash,
		SizeBytes:       int64(len(content)),
		Frontmatter:     extracted.Frontmatter,
		Tags:            extracted.Tags,
		StrippedContent: extracted.StrippedContent,
		FileModifiedAt:  now,
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.FileCreatedAt = existing.FileCreatedAt
	} else {
		doc.FileCreatedAt = now
	}

	id, _, err := e.db.UpsertDocument(doc)
	if err != nil {
		log.Error().Err(err).Str("vault_id", vaultID).Str("path", relPath).
			Msg("document write landed on disk but database upsert failed; reconciler will repair")
		return nil, false, err
	}
	doc.ID = id

	version := &store.DocumentVersion{
		DocumentID:   id,
		ContentHash:  hash,
		SizeBytes:    doc.SizeBytes,
		ChangeSource: source,
		ChangedBy:    changedBy,
	}
	if err := e.db.AppendVersion(version); err != nil {
		return nil, false, err
	}

	return doc, true, nil
}

// Read returns the on-disk content bytes for a document (the API surface's
// document-get response includes both the row and the body, §4.J).
func (e *Engine) Read(userID, vaultID, relPath string) ([]byte, error) {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return nil, err
	}
	if err := pathsafe.ValidateRelPath(relPath); err != nil {
		return nil, err
	}
	return fsstore.ReadFile(e.vaultRoot(v.UserID, v.Slug), relPath)
}

// Remove implements §4.D's remove: a document delete, or a recursive
// directory delete when relPath names no document.
func (e *Engine) Remove(userID, vaultID, relPath string) error {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return err
	}
	if err := pathsafe.ValidateRelPath(relPath); err != nil {
		return err
	}

	root := e.vaultRoot(v.UserID, v.Slug)

	if _, err := e.db.GetDocument(vaultID, relPath); err == nil {
		if err := fsstore.DeleteFile(root, relPath); err != nil {
			return err
		}
		e.coord.MarkRecentlyWritten(fsstore.AbsPath(root, relPath))
		return e.db.DeleteDocument(vaultID, relPath)
	} else if dberr.KindOf(err) != dberr.NotFound {
		return err
	}

	kind, err := fsstore.PathExists(root, relPath)
	if err != nil {
		return err
	}
	if kind != fsstore.Directory {
		return dberr.New(dberr.NotFound, "path not found")
	}

	docs, err := e.db.ListDocuments(vaultID, relPath+"/")
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := e.db.DeleteDocument(vaultID, d.Path); err != nil {
			return err
		}
	}
	if err := fsstore.DeleteDir(root, relPath); err != nil {
		return err
	}
	e.coord.MarkRecentlyWritten(fsstore.AbsPath(root, relPath))
	return nil
}

// Move implements §4.D's move for both files and directories.
func (e *Engine) Move(userID, vaultID, src, dst string, overwrite bool) error {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return err
	}
	if err := pathsafe.ValidateRelPath(src); err != nil {
		return err
	}
	if err := pathsafe.ValidateRelPath(dst); err != nil {
		return err
	}

	root := e.vaultRoot(v.UserID, v.Slug)
	srcKind, err := fsstore.PathExists(root, src)
	if err != nil {
		return err
	}
	if srcKind == fsstore.None {
		return dberr.New(dberr.NotFound, "source not found")
	}
	dstKind, err := fsstore.PathExists(root, dst)
	if err != nil {
		return err
	}
	if dstKind != fsstore.None && !overwrite {
		return dberr.New(dberr.Conflict, "destination already exists")
	}

	if srcKind == fsstore.File {
		if err := fsstore.MoveFile(root, src, dst); err != nil {
			return err
		}
	} else {
		if err := fsstore.MoveDir(root, src, dst); err != nil {
			return err
		}
	}

	e.coord.MarkRecentlyWritten(fsstore.AbsPath(root, src))
	e.coord.MarkRecentlyWritten(fsstore.AbsPath(root, dst))

	_, err = e.db.RewriteDocumentPaths(vaultID, src, dst)
	return err
}

// Copy implements §4.D's copy: files re-enter Put (fresh version chain),
// directories are copied on disk then walked to re-register each file.
func (e *Engine) Copy(userID, vaultID, src, dst, source, changedBy string) error {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return err
	}
	if err := pathsafe.ValidateRelPath(src); err != nil {
		return err
	}
	if err := pathsafe.ValidateRelPath(dst); err != nil {
		return err
	}

	root := e.vaultRoot(v.UserID, v.Slug)
	srcKind, err := fsstore.PathExists(root, src)
	if err != nil {
		return err
	}

	if srcKind == fsstore.File {
		content, err := fsstore.ReadFile(root, src)
		if err != nil {
			return err
		}
		_, _, err = e.Put(userID, vaultID, dst, content, source, changedBy)
		return err
	}
	if srcKind == fsstore.Directory {
		if err := fsstore.CopyDir(root, src, dst); err != nil {
			return err
		}
		rels, err := fsstore.WalkMarkdown(fsstore.AbsPath(root, dst), map[string]bool{".obsidian": true})
		if err != nil {
			return err
		}
		for _, rel := range rels {
			content, err := fsstore.ReadFile(fsstore.AbsPath(root, dst), rel)
			if err != nil {
				return err
			}
			if _, _, err := e.Put(userID, vaultID, path.Join(dst, rel), content, source, changedBy); err != nil {
				return err
			}
		}
		return nil
	}
	return dberr.New(dberr.NotFound, "source not found")
}

// CreateVault creates a new vault row and its on-disk directory. The slug
// is derived from name and disambiguated with a numeric suffix on collision.
func (e *Engine) CreateVault(userID, name, description string) (*store.Vault, error) {
	base := pathsafe.DeriveSlug(name)
	slug := base
	for i := 2; ; i++ {
		if _, err := e.db.GetVaultBySlug(userID, slug); dberr.KindOf(err) == dberr.NotFound {
			break
		} else if err != nil {
			return nil, err
		}
		slug = base + "-" + strconv.Itoa(i)
	}

	v := &store.Vault{UserID: userID, Name: name, Slug: slug, Description: description}
	if err := e.db.CreateVault(v); err != nil {
		return nil, err
	}
	if err := fsstore.EnsureVaultDir(e.vaultRoot(userID, slug)); err != nil {
		return nil, err
	}
	return v, nil
}

// RenameVault updates a vault's display name/description. The slug and its
// on-disk directory never change (§13).
func (e *Engine) RenameVault(userID, vaultID, name, description string) (*store.Vault, error) {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return nil, err
	}
	v.Name = name
	v.Description = description
	if err := e.db.UpdateVault(v); err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteVault removes a vault's database rows (cascading to documents and
// versions) and its on-disk directory tree.
func (e *Engine) DeleteVault(userID, vaultID string) error {
	v, err := e.authorizeVault(userID, vaultID)
	if err != nil {
		return err
	}
	if err := e.db.DeleteVault(vaultID); err != nil {
		return err
	}
	return fsstore.DeleteVaultDir(e.vaultRoot(v.UserID, v.Slug))
}

// List returns documents under dirPath, LIKE-escaping it per §4.D.
func (e *Engine) List(userID, vaultID, dirPath string) ([]*store.Document, error) {
	if _, err := e.authorizeVault(userID, vaultID); err != nil {
		return nil, err
	}
	prefix := dirPath
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return e.db.ListDocuments(vaultID, prefix)
}

// TreeNode is a hierarchical projection of a vault's documents (§4.D tree).
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Tree builds a hierarchical node tree from every document path in the
// vault, folding on insertion order of the sorted paths.
func (e *Engine) Tree(userID, vaultID string) (*TreeNode, error) {
	if _, err := e.authorizeVault(userID, vaultID); err != nil {
		return nil, err
	}
	docs, err := e.db.ListDocuments(vaultID, "")
	if err != nil {
		return nil, err
	}

	root := &TreeNode{Name: "", Path: "", Type: "directory"}
	dirIndex := map[string]*TreeNode{"": root}

	for _, d := range docs {
		segments := strings.Split(d.Path, "/")
		parent := root
		acc := ""
		for i, seg := range segments {
			if acc == "" {
				acc = seg
			} else {
				acc = acc + "/" + seg
			}
			isLeaf := i == len(segments)-1
			if isLeaf {
				parent.Children = append(parent.Children, &TreeNode{Name: seg, Path: acc, Type: "file"})
				continue
			}
			node, ok := dirIndex[acc]
			if !ok {
				node = &TreeNode{Name: seg, Path: acc, Type: "directory"}
				dirIndex[acc] = node
				parent.Children = append(parent.Children, node)
			}
			parent = node
		}
	}
	return root, nil
}

// GetVersions returns the version history of a document, newest first.
func (e *Engine) GetVersions(userID, vaultID, relPath string) ([]*store.DocumentVersion, error) {
	if _, err := e.authorizeVault(userID, vaultID); err != nil {
		return nil, err
	}
	doc, err := e.db.GetDocument(vaultID, relPath)
	if err != nil {
		return nil, err
	}
	return e.db.ListVersions(doc.ID)
}
