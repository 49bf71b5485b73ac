package models

import "time"

// AuditLog represents one audit trail entry in the durable backend.
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Email     string    `json:"email,omitempty"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
}

// Audit action constants
const (
	ActionIdentityUpsert = "identity_upsert"
	ActionIdentityDelete = "identity_delete"
	ActionAdminAdd       = "admin_add_identity"
	ActionAdminRemove    = "admin_remove_identity"
)
