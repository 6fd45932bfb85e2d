package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/google/uuid"
)

// CreateUser inserts a new user. Email uniqueness is enforced
// case-insensitively via the email_lower column.
func (db *DB) CreateUser(u *User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	ts := now()
	_, err := db.conn.Exec(
		`INSERT INTO users (id, email, email_lower, display_name, role, password_hash, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, strings.ToLower(u.Email), u.DisplayName, u.Role, u.PasswordHash, boolToInt(u.IsActive), ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return dberr.Wrap(dberr.Conflict, "email already registered", err)
		}
		return dberr.Wrap(dberr.Upstream, "create user", err)
	}
	return nil
}

// GetUserByID fetches a user by ID.
func (db *DB) GetUserByID(id string) (*User, error) {
	row := db.conn.QueryRow(
		`SELECT id, email, display_name, role, password_hash, is_active, created_at, updated_at
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail fetches a user by case-insensitive email match.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	row := db.conn.QueryRow(
		`SELECT id, email, display_name, role, password_hash, is_active, created_at, updated_at
		 FROM users WHERE email_lower = ?`, strings.ToLower(email))
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt, updatedAt string
	var isActive int
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberr.New(dberr.NotFound, "user not found")
		}
		return nil, dberr.Wrap(dberr.Upstream, "scan user", err)
	}
	u.IsActive = isActive != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// UpdateUser persists mutable fields of u (display name, role, active flag,
// password hash) and bumps updated_at.
func (db *DB) UpdateUser(u *User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`UPDATE users SET display_name = ?, role = ?, password_hash = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		u.DisplayName, u.Role, u.PasswordHash, boolToInt(u.IsActive), now(), u.ID,
	)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "update user", err)
	}
	return nil
}

// ListAllUsers returns every user, active or not. Used by the reconciler to
// enumerate the DATA_DIR/{userId} directories it should walk.
func (db *DB) ListAllUsers() ([]*User, error) {
	rows, err := db.conn.Query(
		`SELECT id, email, display_name, role, password_hash, is_active, created_at, updated_at FROM users`)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list users", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		var createdAt, updatedAt string
		var isActive int
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &isActive, &createdAt, &updatedAt); err != nil {
			return nil, dberr.Wrap(dberr.Upstream, "scan user row", err)
		}
		u.IsActive = isActive != 0
		u.CreatedAt = parseTime(createdAt)
		u.UpdatedAt = parseTime(updatedAt)
		out = append(out, &u)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err looks like a SQLite UNIQUE constraint
// failure. go-sqlite3 does not export a typed sentinel usable without cgo
// build tags here, so call sites match on the driver's error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
