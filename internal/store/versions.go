package store

import (
	"database/sql"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/google/uuid"
)

// AppendVersion inserts the next version row for a document. versionNum is
// computed as max(existing)+1 under the same write lock that serializes all
// other mutations on db, which is sufficient to keep the version chain
// contiguous as long as every Put for a given document goes through this
// connection (§5: concurrency model relies on SQLite's single writer).
func (db *DB) AppendVersion(v *DocumentVersion) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var maxNum sql.NullInt64
	err := db.conn.QueryRow(`SELECT MAX(version_num) FROM document_versions WHERE document_id = ?`, v.DocumentID).Scan(&maxNum)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "read max version", err)
	}
	v.VersionNum = int(maxNum.Int64) + 1

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	_, err = db.conn.Exec(
		`INSERT INTO document_versions (id, document_id, version_num, content_hash, size_bytes, change_source, changed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DocumentID, v.VersionNum, v.ContentHash, v.SizeBytes, v.ChangeSource, v.ChangedBy, now(),
	)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "insert version", err)
	}
	return nil
}

// ListVersions returns every version of documentID, most recent first.
func (db *DB) ListVersions(documentID string) ([]*DocumentVersion, error) {
	rows, err := db.conn.Query(
		`SELECT id, document_id, version_num, content_hash, size_bytes, change_source, changed_by, created_at
		 FROM document_versions WHERE document_id = ? ORDER BY version_num DESC`, documentID)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list versions", err)
	}
	defer rows.Close()

	var out []*DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		var createdAt string
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.VersionNum, &v.ContentHash, &v.SizeBytes, &v.ChangeSource, &v.ChangedBy, &createdAt); err != nil {
			return nil, dberr.Wrap(dberr.Upstream, "scan version row", err)
		}
		v.CreatedAt = parseTime(createdAt)
		out = append(out, &v)
	}
	return out, rows.Err()
}
