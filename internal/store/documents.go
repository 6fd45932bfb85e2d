package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/derezo/docstore/internal/pathsafe"
	"github.com/google/uuid"
)

// GetDocument fetches a document by (vaultID, path).
func (db *DB) GetDocument(vaultID, path string) (*Document, error) {
	row := db.conn.QueryRow(
		`SELECT id, vault_id, path, title, content_hash, size_bytes, frontmatter, tags,
		        stripped_content, file_created_at, file_modified_at, created_at, updated_at
		 FROM documents WHERE vault_id = ? AND path = ?`, vaultID, path)
	return scanDocument(row)
}

// GetDocumentByID fetches a document by its UUID.
func (db *DB) GetDocumentByID(id string) (*Document, error) {
	row := db.conn.QueryRow(
		`SELECT id, vault_id, path, title, content_hash, size_bytes, frontmatter, tags,
		        stripped_content, file_created_at, file_modified_at, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns documents in vaultID whose path starts with prefix,
// ordered by path. An empty prefix lists the whole vault.
func (db *DB) ListDocuments(vaultID, prefix string) ([]*Document, error) {
	rows, err := db.conn.Query(
		`SELECT id, vault_id, path, title, content_hash, size_bytes, frontmatter, tags,
		        stripped_content, file_created_at, file_modified_at, created_at, updated_at
		 FROM documents WHERE vault_id = ? AND path LIKE ? ESCAPE '\' ORDER BY path`,
		vaultID, pathsafe.EscapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list documents", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDocument inserts a new document row or updates the existing one for
// (vaultID, path). Returns the document's id and whether a new row was
// created. The caller (internal/docengine) is responsible for the
// content-hash short-circuit — this always writes.
func (db *DB) UpsertDocument(d *Document) (id string, created bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	fmJSON, tagsJSON, err := marshalDocMeta(d)
	if err != nil {
		return "", false, dberr.Wrap(dberr.Validation, "marshal document metadata", err)
	}

	existing, lookErr := db.lookupDocumentID(d.VaultID, d.Path)
	if lookErr != nil && !errors.Is(lookErr, sql.ErrNoRows) {
		return "", false, dberr.Wrap(dberr.Upstream, "lookup document", lookErr)
	}

	ts := now()
	searchText := buildSearchText(d)

	if existing == "" {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		_, err = db.conn.Exec(
			`INSERT INTO documents (id, vault_id, path, title, content_hash, size_bytes, frontmatter,
			        tags, stripped_content, search_text, file_created_at, file_modified_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.VaultID, d.Path, d.Title, d.ContentHash, d.SizeBytes, fmJSON, tagsJSON,
			d.StrippedContent, searchText, formatTime(d.FileCreatedAt), formatTime(d.FileModifiedAt), ts, ts,
		)
		if err != nil {
			return "", false, dberr.Wrap(dberr.Upstream, "insert document", err)
		}
		return d.ID, true, nil
	}

	d.ID = existing
	_, err = db.conn.Exec(
		`UPDATE documents SET title = ?, content_hash = ?, size_bytes = ?, frontmatter = ?, tags = ?,
		        stripped_content = ?, search_text = ?, file_modified_at = ?, updated_at = ?
		 WHERE id = ?`,
		d.Title, d.ContentHash, d.SizeBytes, fmJSON, tagsJSON, d.StrippedContent, searchText,
		formatTime(d.FileModifiedAt), ts, d.ID,
	)
	if err != nil {
		return "", false, dberr.Wrap(dberr.Upstream, "update document", err)
	}
	return d.ID, false, nil
}

func (db *DB) lookupDocumentID(vaultID, path string) (string, error) {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM documents WHERE vault_id = ? AND path = ?`, vaultID, path).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteDocument removes a document (and cascades to its versions).
func (db *DB) DeleteDocument(vaultID, path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`DELETE FROM documents WHERE vault_id = ? AND path = ?`, vaultID, path)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "delete document", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dberr.New(dberr.NotFound, "document not found")
	}
	return nil
}

// RewriteDocumentPaths moves every document whose path is oldPrefix or
// starts with oldPrefix+"/" onto the equivalent path under newPrefix. Used by
// the Move operation (§4.D) after the filesystem side has moved.
func (db *DB) RewriteDocumentPaths(vaultID, oldPrefix, newPrefix string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, path FROM documents WHERE vault_id = ? AND (path = ? OR path LIKE ? ESCAPE '\')`,
		vaultID, oldPrefix, pathsafe.EscapeLike(oldPrefix)+"/%",
	)
	if err != nil {
		return 0, dberr.Wrap(dberr.Upstream, "find documents to rewrite", err)
	}
	type pair struct{ id, path string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.path); err != nil {
			rows.Close()
			return 0, dberr.Wrap(dberr.Upstream, "scan rewrite row", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()

	ts := now()
	for _, p := range pairs {
		newPath := newPrefix
		if p.path != oldPrefix {
			newPath = pathsafe.JoinPrefix(oldPrefix, newPrefix, p.path)
		}
		if _, err := db.conn.Exec(`UPDATE documents SET path = ?, updated_at = ? WHERE id = ?`, newPath, ts, p.id); err != nil {
			return 0, dberr.Wrap(dberr.Upstream, "rewrite document path", err)
		}
	}
	return len(pairs), nil
}

// UserStorageUsage sums document sizes and counts across every vault owned
// by userID, for the GET /users/me/storage endpoint.
func (db *DB) UserStorageUsage(userID string) (totalBytes int64, docCount int, err error) {
	row := db.conn.QueryRow(
		`SELECT COALESCE(SUM(d.size_bytes), 0), COUNT(*)
		 FROM documents d JOIN vaults v ON v.id = d.vault_id
		 WHERE v.user_id = ?`, userID)
	if err := row.Scan(&totalBytes, &docCount); err != nil {
		return 0, 0, dberr.Wrap(dberr.Upstream, "sum storage usage", err)
	}
	return totalBytes, docCount, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var fmJSON, tagsJSON, fileCreatedAt, fileModifiedAt, createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.VaultID, &d.Path, &d.Title, &d.ContentHash, &d.SizeBytes, &fmJSON, &tagsJSON,
		&d.StrippedContent, &fileCreatedAt, &fileModifiedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberr.New(dberr.NotFound, "document not found")
		}
		return nil, dberr.Wrap(dberr.Upstream, "scan document", err)
	}
	if err := unmarshalDocMeta(&d, fmJSON, tagsJSON); err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "unmarshal document metadata", err)
	}
	d.FileCreatedAt = parseTime(fileCreatedAt)
	d.FileModifiedAt = parseTime(fileModifiedAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func scanDocumentRows(rows *sql.Rows) (*Document, error) {
	var d Document
	var fmJSON, tagsJSON, fileCreatedAt, fileModifiedAt, createdAt, updatedAt string
	err := rows.Scan(&d.ID, &d.VaultID, &d.Path, &d.Title, &d.ContentHash, &d.SizeBytes, &fmJSON, &tagsJSON,
		&d.StrippedContent, &fileCreatedAt, &fileModifiedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "scan document row", err)
	}
	if err := unmarshalDocMeta(&d, fmJSON, tagsJSON); err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "unmarshal document metadata", err)
	}
	d.FileCreatedAt = parseTime(fileCreatedAt)
	d.FileModifiedAt = parseTime(fileModifiedAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func marshalDocMeta(d *Document) (fmJSON, tagsJSON string, err error) {
	fm := d.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	fb, err := json.Marshal(fm)
	if err != nil {
		return "", "", err
	}
	tb, err := json.Marshal(tags)
	if err != nil {
		return "", "", err
	}
	return string(fb), string(tb), nil
}

func unmarshalDocMeta(d *Document, fmJSON, tagsJSON string) error {
	if err := json.Unmarshal([]byte(fmJSON), &d.Frontmatter); err != nil {
		return err
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return err
	}
	d.Tags = tags
	return nil
}

// buildSearchText concatenates the fields indexed by documents_fts (§4.H):
// title, tags, and the stripped plain-text body.
func buildSearchText(d *Document) string {
	var b strings.Builder
	b.WriteString(d.Title)
	b.WriteString("\n")
	b.WriteString(strings.Join(d.Tags, " "))
	b.WriteString("\n")
	b.WriteString(d.StrippedContent)
	return b.String()
}
