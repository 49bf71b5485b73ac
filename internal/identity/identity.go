package identity

import (
	"net/mail"
	"strings"
	"time"
)

// Role is the access level assigned to an identity.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleAuditor Role = "Auditor"
	RoleViewer  Role = "Viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAuditor || r == RoleViewer
}

// AccountStatus marks whether an identity may sign in at all.
type AccountStatus string

const (
	StatusActive   AccountStatus = "Active"
	StatusInactive AccountStatus = "Inactive"
)

// Identity is the canonical user record. Email is the unique key,
// compared case-insensitively everywhere. Presence of TOTPSecret is
// the sole signal that the identity has completed MFA enrollment.
type Identity struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	DisplayName  string        `json:"name"`
	Role         Role          `json:"role"`
	Status       AccountStatus `json:"status"`
	TOTPSecret   string        `json:"totp_secret,omitempty"`
	PrimaryAdmin bool          `json:"primary_admin"`
	LastLoginAt  time.Time     `json:"last_login"`
}

// Enrolled reports whether the identity has a TOTP secret and can
// therefore authenticate. An identity without one may only enter the
// enrollment flow.
func (i Identity) Enrolled() bool {
	return i.TOTPSecret != ""
}

// NormalizeEmail lowercases and trims an email address for lookup and
// storage. All comparisons go through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address is well-formed enough to submit.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	return err == nil && addr.Address == strings.TrimSpace(email)
}

// Find returns the identity matching email, case-insensitively.
func Find(email string, identities []Identity) (Identity, bool) {
	norm := NormalizeEmail(email)
	for _, id := range identities {
		if NormalizeEmail(id.Email) == norm {
			return id, true
		}
	}
	return Identity{}, false
}
