package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/google/uuid"
)

// CreateApiKey inserts a new API key record. KeyHash must already be an
// argon2id hash of the full key (§4.K); the store never sees plaintext.
func (db *DB) CreateApiKey(k *ApiKey) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	scopesJSON, err := json.Marshal(k.Scopes)
	if err != nil {
		return dberr.Wrap(dberr.Validation, "marshal scopes", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO api_keys (id, user_id, name, key_prefix, key_hash, scopes, vault_id, expires_at, last_used_at, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.Name, k.KeyPrefix, k.KeyHash, string(scopesJSON), k.VaultID,
		formatTimePtr(k.ExpiresAt), formatTimePtr(k.LastUsedAt), boolToInt(k.IsActive), now(),
	)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "create api key", err)
	}
	return nil
}

// ListApiKeysByPrefix returns active keys whose prefix matches, for the
// caller to disambiguate with a constant-time hash comparison (§4.K).
// Prefix collisions are rare but possible; callers must check every
// candidate, not just the first.
func (db *DB) ListApiKeysByPrefix(prefix string) ([]*ApiKey, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, name, key_prefix, key_hash, scopes, vault_id, expires_at, last_used_at, is_active, created_at
		 FROM api_keys WHERE key_prefix = ? AND is_active = 1`, prefix)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list api keys by prefix", err)
	}
	defer rows.Close()

	var out []*ApiKey
	for rows.Next() {
		k, err := scanApiKeyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// GetApiKeyByID fetches a single key by id.
func (db *DB) GetApiKeyByID(id string) (*ApiKey, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, name, key_prefix, key_hash, scopes, vault_id, expires_at, last_used_at, is_active, created_at
		 FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "get api key", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, dberr.New(dberr.NotFound, "api key not found")
	}
	return scanApiKeyRows(rows)
}

// ListApiKeysByUser returns every key (active or not) owned by userID.
func (db *DB) ListApiKeysByUser(userID string) ([]*ApiKey, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, name, key_prefix, key_hash, scopes, vault_id, expires_at, last_used_at, is_active, created_at
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list api keys", err)
	}
	defer rows.Close()

	var out []*ApiKey
	for rows.Next() {
		k, err := scanApiKeyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// TouchApiKeyLastUsed updates last_used_at. Callers invoke this
// fire-and-forget after a successful verification (§4.K) so it never adds
// latency to the request path.
func (db *DB) TouchApiKeyLastUsed(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "touch api key", err)
	}
	return nil
}

// UpdateApiKeyName renames a key without touching its hash or scopes.
func (db *DB) UpdateApiKeyName(id, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`UPDATE api_keys SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "rename api key", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dberr.New(dberr.NotFound, "api key not found")
	}
	return nil
}

// RevokeApiKey deactivates a key; it remains in the table for audit purposes.
func (db *DB) RevokeApiKey(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`UPDATE api_keys SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "revoke api key", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dberr.New(dberr.NotFound, "api key not found")
	}
	return nil
}

func scanApiKeyRows(rows *sql.Rows) (*ApiKey, error) {
	var k ApiKey
	var scopesJSON string
	var vaultID sql.NullString
	var expiresAt, lastUsedAt sql.NullString
	var isActive int
	var createdAt string
	err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.KeyHash, &scopesJSON, &vaultID,
		&expiresAt, &lastUsedAt, &isActive, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberr.New(dberr.NotFound, "api key not found")
		}
		return nil, dberr.Wrap(dberr.Upstream, "scan api key row", err)
	}
	if err := json.Unmarshal([]byte(scopesJSON), &k.Scopes); err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "unmarshal scopes", err)
	}
	if vaultID.Valid {
		k.VaultID = &vaultID.String
	}
	if expiresAt.Valid {
		k.ExpiresAt = parseTimePtr(&expiresAt.String)
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = parseTimePtr(&lastUsedAt.String)
	}
	k.IsActive = isActive != 0
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}
