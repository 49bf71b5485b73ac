package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/cspmauth/internal/identity"
)

// IdentityRepository handles identity data access in the durable
// backend.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new identity repository.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// UpsertByEmail inserts or updates an identity keyed by normalized
// email. On conflict the mutable fields are replaced; the row's id and
// primary_admin flag are preserved, so the bootstrap invariant cannot
// be rewritten through the upsert path.
func (r *IdentityRepository) UpsertByEmail(id *identity.Identity) error {
	id.Email = identity.NormalizeEmail(id.Email)

	query := `
		INSERT INTO identities (id, email, name, role, status, totp_secret, primary_admin, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			status = excluded.status,
			totp_secret = excluded.totp_secret,
			last_login = excluded.last_login
	`

	_, err := r.db.Exec(query,
		id.ID,
		id.Email,
		id.DisplayName,
		string(id.Role),
		string(id.Status),
		nullable(id.TOTPSecret),
		boolToInt(id.PrimaryAdmin),
		nullable(formatTime(id.LastLoginAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}

	return nil
}

// GetByEmail retrieves an identity by normalized email.
func (r *IdentityRepository) GetByEmail(email string) (*identity.Identity, error) {
	query := `
		SELECT id, email, name, role, status, totp_secret, primary_admin, last_login
		FROM identities
		WHERE email = ?
	`

	row := r.db.QueryRow(query, identity.NormalizeEmail(email))
	id, err := scanIdentity(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return id, nil
}

// List returns all identities, oldest first so the bootstrap admin
// comes out ahead of later additions.
func (r *IdentityRepository) List() ([]identity.Identity, error) {
	query := `
		SELECT id, email, name, role, status, totp_secret, primary_admin, last_login
		FROM identities
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []identity.Identity
	for rows.Next() {
		id, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, *id)
	}

	return identities, rows.Err()
}

// Delete removes an identity by ID. Deleting an unknown ID is not an
// error; the operation is idempotent.
func (r *IdentityRepository) Delete(identityID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM identities WHERE id = ?`, identityID)
	if err != nil {
		return false, fmt.Errorf("failed to delete identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

func scanIdentity(scan func(dest ...any) error) (*identity.Identity, error) {
	var (
		id           identity.Identity
		role, status string
		secret       sql.NullString
		lastLogin    sql.NullString
		primaryAdmin int
	)

	err := scan(
		&id.ID,
		&id.Email,
		&id.DisplayName,
		&role,
		&status,
		&secret,
		&primaryAdmin,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}

	id.Role = identity.Role(role)
	id.Status = identity.AccountStatus(status)
	id.TOTPSecret = secret.String
	id.PrimaryAdmin = primaryAdmin == 1
	if lastLogin.Valid && lastLogin.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_login: %w", err)
		}
		id.LastLoginAt = t
	}

	return &id, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
