package store

import (
	"database/sql"
	"errors"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/google/uuid"
)

// CreateVault inserts a new vault. Slug uniqueness is scoped to the owning
// user (§3: Vault.slug unique per user, not globally).
func (db *DB) CreateVault(v *Vault) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	ts := now()
	_, err := db.conn.Exec(
		`INSERT INTO vaults (id, user_id, name, slug, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.Name, v.Slug, v.Description, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return dberr.Wrap(dberr.Conflict, "vault slug already exists for this user", err)
		}
		return dberr.Wrap(dberr.Upstream, "create vault", err)
	}
	return nil
}

// GetVaultByID fetches a vault by its ID.
func (db *DB) GetVaultByID(id string) (*Vault, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, name, slug, description, created_at, updated_at
		 FROM vaults WHERE id = ?`, id)
	return scanVault(row)
}

// GetVaultBySlug fetches a vault owned by userID with the given slug.
func (db *DB) GetVaultBySlug(userID, slug string) (*Vault, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, name, slug, description, created_at, updated_at
		 FROM vaults WHERE user_id = ? AND slug = ?`, userID, slug)
	return scanVault(row)
}

// ListVaultsByUser returns all vaults owned by userID, ordered by name.
func (db *DB) ListVaultsByUser(userID string) ([]*Vault, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, name, slug, description, created_at, updated_at
		 FROM vaults WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list vaults", err)
	}
	defer rows.Close()

	var out []*Vault
	for rows.Next() {
		v, err := scanVaultRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVault(row *sql.Row) (*Vault, error) {
	var v Vault
	var createdAt, updatedAt string
	err := row.Scan(&v.ID, &v.UserID, &v.Name, &v.Slug, &v.Description, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberr.New(dberr.NotFound, "vault not found")
		}
		return nil, dberr.Wrap(dberr.Upstream, "scan vault", err)
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func scanVaultRows(rows *sql.Rows) (*Vault, error) {
	var v Vault
	var createdAt, updatedAt string
	if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.Slug, &v.Description, &createdAt, &updatedAt); err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "scan vault row", err)
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

// UpdateVault persists mutable fields (name, description) and bumps updated_at.
// Renaming a vault never changes its slug or on-disk directory (§13).
func (db *DB) UpdateVault(v *Vault) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`UPDATE vaults SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		v.Name, v.Description, now(), v.ID,
	)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "update vault", err)
	}
	return nil
}

// DeleteVault removes a vault and cascades to its documents, versions, and
// scoped API keys via ON DELETE CASCADE foreign keys (§3).
func (db *DB) DeleteVault(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`DELETE FROM vaults WHERE id = ?`, id)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "delete vault", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dberr.New(dberr.NotFound, "vault not found")
	}
	return nil
}
