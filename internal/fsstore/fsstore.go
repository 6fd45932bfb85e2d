// Package fsstore implements the scoped, atomic filesystem layer that
// backs every vault's on-disk directory (§4.B). Every operation takes a
// vault root and a vault-relative path, validates the path, and refuses to
// touch anything outside the root.
package fsstore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/pathsafe"
)

// EntryKind describes what PathExists found at a location.
type EntryKind int

const (
	// None means nothing exists at the path.
	None EntryKind = iota
	// File means a regular file exists at the path.
	File
	// Directory means a directory exists at the path.
	Directory
)

// resolve validates rel and returns the absolute path under root, failing
// PathTraversal if the joined path would escape root.
func resolve(root, rel string) (string, error) {
	if err := pathsafe.ValidateRelPath(rel); err != nil {
		return "", err
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	root = filepath.Clean(root)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", dberr.Newf(dberr.PathTraversal, "resolved path escapes vault root")
	}
	return abs, nil
}

// ReadFile reads the full content of the document at rel under root.
func ReadFile(root, rel string) ([]byte, error) {
	abs, err := resolve(root, rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dberr.Wrapf(dberr.NotFound, err, "document %q not found", rel)
		}
		return nil, dberr.Wrapf(dberr.Upstream, err, "read %q", rel)
	}
	return b, nil
}

// WriteFile atomically writes content to rel under root: it writes to a
// sibling temp file named ".tmp-<rand>" in the same directory, then
// renames it into place. On any failure the temp file is unlinked. Parent
// directories are created as needed.
func WriteFile(root, rel string, content []byte) error {
	abs, err := resolve(root, rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "create parent dir for %q", rel)
	}

	tmp, err := tempFilePath(dir)
	if err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "allocate temp file for %q", rel)
	}

	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		os.Remove(tmp)
		return dberr.Wrapf(dberr.Upstream, err, "write temp file for %q", rel)
	}

	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return dberr.Wrapf(dberr.Upstream, err, "rename into place %q", rel)
	}
	return nil
}

func tempFilePath(dir string) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return filepath.Join(dir, ".tmp-"+hex.EncodeToString(buf[:])), nil
}

// IsTempFile reports whether name (a base filename) is one of this
// package's own atomic-write temp files, so watchers can ignore them.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".tmp-")
}

// DeleteFile removes the file at rel under root, then best-effort prunes
// any now-empty parent directories up to but not including root.
func DeleteFile(root, rel string) error {
	abs, err := resolve(root, rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dberr.Wrapf(dberr.NotFound, err, "document %q not found", rel)
		}
		return dberr.Wrapf(dberr.Upstream, err, "delete %q", rel)
	}
	pruneEmptyParents(root, filepath.Dir(abs))
	return nil
}

// pruneEmptyParents removes dir and its ancestors, stopping at root or the
// first non-empty directory. Failures are ignored — pruning is best-effort.
func pruneEmptyParents(root, dir string) {
	root = filepath.Clean(root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// DeleteDir recursively removes the directory at rel under root, then
// prunes empty parents.
func DeleteDir(root, rel string) error {
	abs, err := resolve(root, rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "delete directory %q", rel)
	}
	pruneEmptyParents(root, filepath.Dir(abs))
	return nil
}

// PathExists reports what kind of entry, if any, exists at rel under root.
func PathExists(root, rel string) (EntryKind, error) {
	abs, err := resolve(root, rel)
	if err != nil {
		return None, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return None, nil
		}
		return None, dberr.Wrapf(dberr.Upstream, err, "stat %q", rel)
	}
	if info.IsDir() {
		return Directory, nil
	}
	return File, nil
}

// Stat returns os.FileInfo for rel under root.
func Stat(root, rel string) (os.FileInfo, error) {
	abs, err := resolve(root, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dberr.Wrapf(dberr.NotFound, err, "%q not found", rel)
		}
		return nil, dberr.Wrapf(dberr.Upstream, err, "stat %q", rel)
	}
	return info, nil
}

// MoveFile renames src to dst under root. It tries a same-device rename
// first and falls back to copy+delete across devices.
func MoveFile(root, srcRel, dstRel string) error {
	src, err := resolve(root, srcRel)
	if err != nil {
		return err
	}
	dst, err := resolve(root, dstRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "create parent dir for %q", dstRel)
	}
	if err := os.Rename(src, dst); err != nil {
		if isCrossDevice(err) {
			if err := copyFile(src, dst); err != nil {
				return dberr.Wrapf(dberr.Upstream, err, "copy %q to %q", srcRel, dstRel)
			}
			if err := os.Remove(src); err != nil {
				return dberr.Wrapf(dberr.Upstream, err, "remove source %q after copy", srcRel)
			}
			return nil
		}
		return dberr.Wrapf(dberr.Upstream, err, "rename %q to %q", srcRel, dstRel)
	}
	pruneEmptyParents(root, filepath.Dir(src))
	return nil
}

// MoveDir renames the directory src to dst under root, falling back to
// recursive copy+delete across devices.
func MoveDir(root, srcRel, dstRel string) error {
	src, err := resolve(root, srcRel)
	if err != nil {
		return err
	}
	dst, err := resolve(root, dstRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "create parent dir for %q", dstRel)
	}
	if err := os.Rename(src, dst); err != nil {
		if isCrossDevice(err) {
			if err := copyDirAbs(src, dst); err != nil {
				return dberr.Wrapf(dberr.Upstream, err, "copy dir %q to %q", srcRel, dstRel)
			}
			if err := os.RemoveAll(src); err != nil {
				return dberr.Wrapf(dberr.Upstream, err, "remove source dir %q after copy", srcRel)
			}
			return nil
		}
		return dberr.Wrapf(dberr.Upstream, err, "rename dir %q to %q", srcRel, dstRel)
	}
	pruneEmptyParents(root, filepath.Dir(src))
	return nil
}

func isCrossDevice(err error) bool {
	return strings.Contains(err.Error(), "cross-device") || strings.Contains(err.Error(), "invalid cross-device link")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, info.Mode()); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// CopyDir recursively copies the directory at srcRel to dstRel under root.
func CopyDir(root, srcRel, dstRel string) error {
	src, err := resolve(root, srcRel)
	if err != nil {
		return err
	}
	dst, err := resolve(root, dstRel)
	if err != nil {
		return err
	}
	if err := copyDirAbs(src, dst); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "copy dir %q to %q", srcRel, dstRel)
	}
	return nil
}

func copyDirAbs(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// Mkdir creates an empty directory at rel under root (WebDAV MKCOL, §4.I).
func Mkdir(root, rel string) error {
	abs, err := resolve(root, rel)
	if err != nil {
		return err
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "mkdir %q", rel)
	}
	return nil
}

// EnsureVaultDir creates the vault's root directory if it does not exist.
func EnsureVaultDir(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "create vault dir %q", root)
	}
	return nil
}

// DeleteVaultDir removes a vault's entire on-disk directory.
func DeleteVaultDir(root string) error {
	if err := os.RemoveAll(root); err != nil {
		return dberr.Wrapf(dberr.Upstream, err, "delete vault dir %q", root)
	}
	return nil
}

// WalkMarkdown returns every ".md" file path (vault-relative, forward
// slash separated) under root, skipping dot-directories and dot-files
// except where allowDotDirs explicitly permits a name (e.g. ".obsidian").
func WalkMarkdown(root string, allowDotDirs map[string]bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && !allowDotDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || IsTempFile(name) {
			return nil
		}
		if !strings.HasSuffix(name, ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, dberr.Wrapf(dberr.Upstream, err, "walk vault %q", root)
	}
	return out, nil
}

// VaultRoot joins dataDir, userID and vaultSlug into the on-disk vault
// directory per §6: DATA_DIR/{userId}/{vaultSlug}/.
func VaultRoot(dataDir, userID, vaultSlug string) string {
	return filepath.Join(dataDir, userID, vaultSlug)
}

// AbsPath resolves rel to its absolute path under root, for callers (the
// sync coordinator, the watcher) that need the same absolute path key this
// package itself operates on. rel must already have passed ValidateRelPath;
// for an invalid rel it returns a plain filepath.Join(root, rel) without
// the confinement check.
func AbsPath(root, rel string) string {
	abs, err := resolve(root, rel)
	if err != nil {
		return filepath.Join(root, rel)
	}
	return abs
}
