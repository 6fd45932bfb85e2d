// Package pathsafe validates vault-relative document paths and derives
// vault slugs. Every path that crosses a component boundary in this
// repository — API, WebDAV, watcher, reconciler — passes through here
// before it ever touches disk or the database.
package pathsafe

import (
	"strings"
	"unicode/utf8"

	"github.com/derezo/docstore/internal/dberr"
)

// MaxSegmentLength bounds a single path segment to a conservative value
// that is safe across common filesystems (255 bytes on most).
const MaxSegmentLength = 255

// ValidateRelPath checks that rel is a safe, vault-root-relative document
// path: UTF-8, forward-slash separated, no leading/trailing slash, no "."
// or ".." segment, no NUL byte, no backslash, and no segment longer than
// MaxSegmentLength. It returns dberr.PathTraversal for traversal attempts
// and dberr.Validation for other malformed input.
func ValidateRelPath(rel string) error {
	if rel == "" {
		return dberr.Newf(dberr.Validation, "path must not be empty")
	}
	if !utf8.ValidString(rel) {
		return dberr.Newf(dberr.Validation, "path is not valid UTF-8")
	}
	if strings.ContainsRune(rel, 0) {
		return dberr.Newf(dberr.PathTraversal, "path contains a NUL byte")
	}
	if strings.ContainsRune(rel, '\\') {
		return dberr.Newf(dberr.PathTraversal, "path contains a backslash")
	}
	if strings.HasPrefix(rel, "/") || strings.HasSuffix(rel, "/") {
		return dberr.Newf(dberr.Validation, "path must not have a leading or trailing slash")
	}
	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return dberr.Newf(dberr.Validation, "path must not contain an empty segment")
		case ".", "..":
			return dberr.Newf(dberr.PathTraversal, "path must not contain a %q segment", seg)
		}
		if len(seg) > MaxSegmentLength {
			return dberr.Newf(dberr.Validation, "path segment %q exceeds %d bytes", seg, MaxSegmentLength)
		}
	}
	return nil
}

// Normalize converts backslashes to forward slashes and trims a leading
// slash. It does not validate — callers must call ValidateRelPath on the
// result before using it.
func Normalize(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	return strings.TrimPrefix(rel, "/")
}

// DeriveSlug turns a vault display name into a URL- and filesystem-safe
// slug: lowercase, non [a-z0-9-] runs replaced with a hyphen, repeated
// hyphens collapsed, and leading/trailing hyphens trimmed.
func DeriveSlug(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	prevHyphen := false
	for _, r := range lower {
		isAllowed := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		switch {
		case isAllowed:
			b.WriteRune(r)
			prevHyphen = false
		case prevHyphen:
			// collapse consecutive separators into one hyphen
		default:
			b.WriteByte('-')
			prevHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// JoinPrefix rewrites a child path from one directory prefix to another,
// as used by move/copy of a directory: "dst" + "/" + substring(path, len(src)+1).
func JoinPrefix(src, dst, childPath string) string {
	suffix := childPath[len(src)+1:]
	return dst + "/" + suffix
}

// EscapeLike escapes '%', '_' and the escape character itself for use as
// a literal fragment in a SQL LIKE pattern with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
