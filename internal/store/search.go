package store

import (
	"strings"

	"github.com/derezo/docstore/internal/dberr"
)

// SearchResult pairs a matching document with a relevance score (lower is
// better, matching SQLite's bm25() convention) or a zero score when the
// LIKE fallback path is used.
type SearchResult struct {
	Document *Document
	Score    float64
}

// Search runs a full-text query scoped to vaultID, ranked by bm25. Falls
// back to a LIKE scan over title and stripped_content when the FTS5 module
// failed to load (§4.H), since not every SQLite build ships it.
func (db *DB) Search(vaultID, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, dberr.New(dberr.Validation, "search query must not be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	if db.ftsAvailable {
		return db.searchFTS(vaultID, query, limit)
	}
	return db.searchLike(vaultID, query, limit)
}

func (db *DB) searchFTS(vaultID, query string, limit int) ([]SearchResult, error) {
	rows, err := db.conn.Query(
		`SELECT d.id, d.vault_id, d.path, d.title, d.content_hash, d.size_bytes, d.frontmatter, d.tags,
		        d.stripped_content, d.file_created_at, d.file_modified_at, d.created_at, d.updated_at,
		        bm25(documents_fts) AS score
		 FROM documents_fts
		 JOIN documents d ON d.rowid = documents_fts.rowid
		 WHERE documents_fts MATCH ? AND d.vault_id = ?
		 ORDER BY score LIMIT ?`,
		ftsQuery(query), vaultID, limit,
	)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "fts search", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		d, score, err := scanSearchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, SearchResult{Document: d, Score: score})
	}
	return out, rows.Err()
}

func (db *DB) searchLike(vaultID, query string, limit int) ([]SearchResult, error) {
	like := "%" + escapeLikeLiteral(query) + "%"
	rows, err := db.conn.Query(
		`SELECT id, vault_id, path, title, content_hash, size_bytes, frontmatter, tags,
		        stripped_content, file_created_at, file_modified_at, created_at, updated_at
		 FROM documents
		 WHERE vault_id = ? AND (title LIKE ? ESCAPE '\' OR stripped_content LIKE ? ESCAPE '\')
		 ORDER BY path LIMIT ?`,
		vaultID, like, like, limit,
	)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "like search", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		d, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, SearchResult{Document: d, Score: 0})
	}
	return out, rows.Err()
}

func scanSearchRow(rows interface {
	Scan(dest ...any) error
}) (*Document, float64, error) {
	var d Document
	var fmJSON, tagsJSON, fileCreatedAt, fileModifiedAt, createdAt, updatedAt string
	var score float64
	err := rows.Scan(&d.ID, &d.VaultID, &d.Path, &d.Title, &d.ContentHash, &d.SizeBytes, &fmJSON, &tagsJSON,
		&d.StrippedContent, &fileCreatedAt, &fileModifiedAt, &createdAt, &updatedAt, &score)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.Upstream, "scan search row", err)
	}
	if err := unmarshalDocMeta(&d, fmJSON, tagsJSON); err != nil {
		return nil, 0, dberr.Wrap(dberr.Upstream, "unmarshal document metadata", err)
	}
	d.FileCreatedAt = parseTime(fileCreatedAt)
	d.FileModifiedAt = parseTime(fileModifiedAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, score, nil
}

// ftsQuery quotes each term so punctuation in the user's query doesn't
// collide with FTS5's own query syntax (column filters, NEAR, etc).
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func escapeLikeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}
