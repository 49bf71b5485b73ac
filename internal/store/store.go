// Package store provides the dual-mode identity repository: a durable
// remote backend when reachable, with a sealed local cache as the
// offline fallback. Exactly one store is authoritative per process
// lifetime; the decision is made once by Probe and never revisited
// mid-session.
package store

import (
	"context"

	"github.com/adamscao/cspmauth/internal/identity"
)

// Mode says which store is authoritative for the current process.
type Mode int

const (
	// ModeLocal means the durable backend was unreachable at probe time
	// and the local cache is the store of record.
	ModeLocal Mode = iota

	// ModeRemote means the durable backend is reachable and
	// authoritative; the local cache only mirrors writes for session
	// continuity.
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "REMOTE"
	}
	return "LOCAL"
}

// IdentityStore is the contract both backing stores implement.
// LoadAll returns a snapshot the caller owns; Upsert is keyed by
// normalized email with insert-or-update semantics; Remove is
// idempotent.
type IdentityStore interface {
	LoadAll(ctx context.Context) ([]identity.Identity, error)
	Upsert(ctx context.Context, id identity.Identity) error
	Remove(ctx context.Context, identityID string) error
}
