// Package store provides the SQLite storage layer for users, vaults,
// documents, document versions, invitations, and API keys (§3), plus the
// FTS5-backed search index (§4.H).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite connection. Writes are serialized through mu, matching
// SQLite's single-writer model; reads pass straight through.
type DB struct {
	conn         *sql.DB
	mu           sync.Mutex
	ftsAvailable bool
}

// Open opens or creates the database at path, running migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests. A shared cache is used
// so multiple connections (if any) see the same data.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for call sites that need direct access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			email_lower TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users(email_lower)`,

		`CREATE TABLE IF NOT EXISTS vaults (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(user_id, slug)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vaults_user ON vaults(user_id)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT UNIQUE NOT NULL,
			vault_id TEXT NOT NULL REFERENCES vaults(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			frontmatter TEXT NOT NULL DEFAULT '{}',
			tags TEXT NOT NULL DEFAULT '[]',
			stripped_content TEXT NOT NULL DEFAULT '',
			search_text TEXT NOT NULL DEFAULT '',
			file_created_at TEXT NOT NULL,
			file_modified_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(vault_id, path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_vault_path ON documents(vault_id, path)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_vault ON documents(vault_id)`,

		`CREATE TABLE IF NOT EXISTS document_versions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			version_num INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			change_source TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(document_id, version_num)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_document ON document_versions(document_id)`,

		`CREATE TABLE IF NOT EXISTS invitations (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			inviter_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at TEXT NOT NULL,
			accepted_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			key_prefix TEXT NOT NULL,
			key_hash TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '[]',
			vault_id TEXT REFERENCES vaults(id) ON DELETE CASCADE,
			expires_at TEXT,
			last_used_at TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	currentVersion := db.SchemaVersion()
	versionedMigrations := []struct {
		version int
		fn      func() error
	}{
		{1, db.migrateV1}, // FTS5 full-text search over documents
	}
	for _, m := range versionedMigrations {
		if currentVersion < m.version {
			if err := m.fn(); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
			if err := db.SetMeta("schema_version", strconv.Itoa(m.version)); err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
			currentVersion = m.version
		}
	}

	// On a database migrated by an earlier Open, migrateV1 does not run
	// again, so detect the FTS table it left behind.
	if !db.ftsAvailable {
		var n int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'documents_fts'`).Scan(&n)
		db.ftsAvailable = err == nil && n > 0
	}

	return nil
}

// migrateV1 creates an FTS5 external-content index over documents. Content
// sync (content=documents) means the FTS table stores only tokens, not
// duplicated text. FTS5 may be unavailable on some SQLite builds; the
// migration is best-effort, matching the keyword-fallback design of §4.H.
//
// An external-content table isn't kept current automatically — SQLite only
// mirrors it on writes made through triggers we supply ourselves, so the
// index stays in sync with every UpsertDocument/DeleteDocument/
// RewriteDocumentPaths call without those call sites knowing documents_fts
// exists.
func (db *DB) migrateV1() error {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		path, title, search_text,
		content=documents, content_rowid=rowid
	)`)
	if err != nil {
		db.ftsAvailable = false
		return nil
	}
	db.ftsAvailable = true
	_, _ = db.conn.Exec(`INSERT INTO documents_fts(documents_fts) VALUES('rebuild')`)

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS documents_fts_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, path, title, search_text)
			VALUES (new.rowid, new.path, new.title, new.search_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS documents_fts_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, path, title, search_text)
			VALUES ('delete', old.rowid, old.path, old.title, old.search_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS documents_fts_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, path, title, search_text)
			VALUES ('delete', old.rowid, old.path, old.title, old.search_text);
			INSERT INTO documents_fts(rowid, path, title, search_text)
			VALUES (new.rowid, new.path, new.title, new.search_text);
		END`,
	}
	for _, t := range triggers {
		if _, err := db.conn.Exec(t); err != nil {
			return fmt.Errorf("create fts sync trigger: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the current schema version (0 if unset).
func (db *DB) SchemaVersion() int {
	v, ok := db.GetMeta("schema_version")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetMeta reads a value from schema_meta. Returns ("", false) if not found.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes a key-value pair to schema_meta.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// FTSAvailable reports whether the FTS5 module loaded successfully.
func (db *DB) FTSAvailable() bool {
	return db.ftsAvailable
}

// RebuildFTS rebuilds the FTS5 index from the documents table. No-op if
// FTS5 is unavailable.
func (db *DB) RebuildFTS() error {
	if !db.ftsAvailable {
		return nil
	}
	_, err := db.conn.Exec(`INSERT INTO documents_fts(documents_fts) VALUES('rebuild')`)
	return err
}

// now returns the current time formatted as RFC3339 for storage. Extracted
// so call sites read naturally as "now()" the way the teacher's codebase does.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
