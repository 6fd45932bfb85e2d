package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/derezo/docstore/internal/dberr"
	"github.com/google/uuid"
)

// CreateInvitation inserts a pending invitation with a caller-supplied
// token (the caller generates an unguessable random token; see
// internal/identity for the generator used).
func (db *DB) CreateInvitation(inv *Invitation) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	_, err := db.conn.Exec(
		`INSERT INTO invitations (id, email, token, inviter_id, expires_at, accepted_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Email, inv.Token, inv.InviterID, formatTime(inv.ExpiresAt), formatTimePtr(inv.AcceptedAt), now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return dberr.Wrap(dberr.Conflict, "invitation token collision", err)
		}
		return dberr.Wrap(dberr.Upstream, "create invitation", err)
	}
	return nil
}

// GetInvitationByToken fetches a pending or consumed invitation by its token.
func (db *DB) GetInvitationByToken(token string) (*Invitation, error) {
	row := db.conn.QueryRow(
		`SELECT id, email, token, inviter_id, expires_at, accepted_at, created_at
		 FROM invitations WHERE token = ?`, token)
	return scanInvitation(row)
}

// ListInvitationsByInviter returns invitations created by inviterID, newest first.
func (db *DB) ListInvitationsByInviter(inviterID string) ([]*Invitation, error) {
	rows, err := db.conn.Query(
		`SELECT id, email, token, inviter_id, expires_at, accepted_at, created_at
		 FROM invitations WHERE inviter_id = ? ORDER BY created_at DESC`, inviterID)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "list invitations", err)
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		var inv Invitation
		var expiresAt, createdAt string
		var acceptedAt sql.NullString
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Token, &inv.InviterID, &expiresAt, &acceptedAt, &createdAt); err != nil {
			return nil, dberr.Wrap(dberr.Upstream, "scan invitation row", err)
		}
		inv.ExpiresAt = parseTime(expiresAt)
		inv.CreatedAt = parseTime(createdAt)
		if acceptedAt.Valid {
			inv.AcceptedAt = parseTimePtr(&acceptedAt.String)
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// ConsumeInvitation marks an invitation accepted at the given time. Fails
// with Conflict if already accepted or Validation if expired.
func (db *DB) ConsumeInvitation(token string, at time.Time) (*Invitation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRow(
		`SELECT id, email, token, inviter_id, expires_at, accepted_at, created_at
		 FROM invitations WHERE token = ?`, token)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, err
	}
	if inv.AcceptedAt != nil {
		return nil, dberr.New(dberr.Conflict, "invitation already accepted")
	}
	if at.After(inv.ExpiresAt) {
		return nil, dberr.New(dberr.Validation, "invitation expired")
	}
	_, err = db.conn.Exec(`UPDATE invitations SET accepted_at = ? WHERE id = ?`, formatTime(at), inv.ID)
	if err != nil {
		return nil, dberr.Wrap(dberr.Upstream, "consume invitation", err)
	}
	inv.AcceptedAt = &at
	return inv, nil
}

// GetInvitationByID fetches an invitation by its id.
func (db *DB) GetInvitationByID(id string) (*Invitation, error) {
	row := db.conn.QueryRow(
		`SELECT id, email, token, inviter_id, expires_at, accepted_at, created_at
		 FROM invitations WHERE id = ?`, id)
	return scanInvitation(row)
}

// DeleteInvitation revokes a pending invitation by id.
func (db *DB) DeleteInvitation(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`DELETE FROM invitations WHERE id = ?`, id)
	if err != nil {
		return dberr.Wrap(dberr.Upstream, "delete invitation", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dberr.New(dberr.NotFound, "invitation not found")
	}
	return nil
}

func scanInvitation(row *sql.Row) (*Invitation, error) {
	var inv Invitation
	var expiresAt, createdAt string
	var acceptedAt sql.NullString
	err := row.Scan(&inv.ID, &inv.Email, &inv.Token, &inv.InviterID, &expiresAt, &acceptedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberr.New(dberr.NotFound, "invitation not found")
		}
		return nil, dberr.Wrap(dberr.Upstream, "scan invitation", err)
	}
	inv.ExpiresAt = parseTime(expiresAt)
	inv.CreatedAt = parseTime(createdAt)
	if acceptedAt.Valid {
		inv.AcceptedAt = parseTimePtr(&acceptedAt.String)
	}
	return &inv, nil
}
