package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/cspmauth/internal/models"
)

// AuditRepository handles audit log data access.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit log entry.
func (r *AuditRepository) Create(entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (action, email, client_ip, user_agent, success, error_msg)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		entry.Action,
		entry.Email,
		entry.ClientIP,
		entry.UserAgent,
		boolToInt(entry.Success),
		entry.ErrorMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	entry.Timestamp = time.Now()

	return nil
}

// ListRecent lists the most recent audit entries, optionally filtered
// by email.
func (r *AuditRepository) ListRecent(email string, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, timestamp, action, email, client_ip, user_agent, success, error_msg
		FROM audit_logs
		WHERE 1=1
	`
	args := []any{}

	if email != "" {
		query += " AND email = ?"
		args = append(args, email)
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		var success int
		var entryEmail, userAgent, errorMsg sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Action,
			&entryEmail,
			&entry.ClientIP,
			&userAgent,
			&success,
			&errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		entry.Email = entryEmail.String
		entry.UserAgent = userAgent.String
		entry.Success = success == 1
		entry.ErrorMsg = errorMsg.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
