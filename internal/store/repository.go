package store

import (
	"context"
	"sync"

	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/rs/zerolog"
)

// Repository is the single owner of the identity set. It routes reads
// and writes to whichever store Probe resolved as authoritative and,
// in remote mode, mirrors writes into the local cache so a later
// offline session can still authenticate.
//
// Writes for the same identity are applied in submission order: all
// mutation goes through Upsert, which serializes under one mutex.
type Repository struct {
	mu     sync.Mutex
	remote *RemoteStore
	local  *LocalStore
	mode   Mode
	probed bool
	log    zerolog.Logger
}

// NewRepository builds a repository over an optional remote store and
// the mandatory local cache. A nil remote always resolves to local
// mode.
func NewRepository(remote *RemoteStore, local *LocalStore, log zerolog.Logger) *Repository {
	return &Repository{
		remote: remote,
		local:  local,
		log:    log.With().Str("component", "repository").Logger(),
	}
}

// Probe decides the repository mode. It runs at most once per process;
// later calls return the recorded decision without touching the
// backend again.
func (r *Repository) Probe(ctx context.Context) Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probeLocked(ctx)
}

func (r *Repository) probeLocked(ctx context.Context) Mode {
	if r.probed {
		return r.mode
	}
	r.probed = true

	if r.remote == nil {
		r.mode = ModeLocal
		return r.mode
	}

	if err := r.remote.Ready(ctx); err != nil {
		r.log.Warn().Err(err).Msg("durable backend unavailable, falling back to local cache")
		r.mode = ModeLocal
		return r.mode
	}

	r.mode = ModeRemote
	return r.mode
}

// Mode returns the probed mode.
func (r *Repository) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// LoadAll reads the identity set from the authoritative store. The
// returned slice is a fresh snapshot owned by the caller; mutating it
// never affects repository state.
func (r *Repository) LoadAll(ctx context.Context) ([]identity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.probeLocked(ctx) == ModeRemote {
		return r.remote.LoadAll(ctx)
	}
	return r.local.LoadAll(ctx)
}

// Upsert writes one identity to the store of record, keyed by
// normalized email. In remote mode the write is additionally mirrored
// into the local cache; mirror failures are logged and never fail the
// write, since the cache is not a write-of-record.
func (r *Repository) Upsert(ctx context.Context, id identity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id.Email = identity.NormalizeEmail(id.Email)

	if r.probeLocked(ctx) == ModeRemote {
		if err := r.remote.Upsert(ctx, id); err != nil {
			return err
		}
		if err := r.local.Upsert(ctx, id); err != nil {
			r.log.Warn().Err(err).Str("email", id.Email).Msg("failed to mirror identity into local cache")
		}
		return nil
	}
	return r.local.Upsert(ctx, id)
}

// Remove deletes an identity by ID. Idempotent in both modes; the
// local mirror is kept in step on the remote path.
func (r *Repository) Remove(ctx context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.probeLocked(ctx) == ModeRemote {
		if err := r.remote.Remove(ctx, identityID); err != nil {
			return err
		}
		if err := r.local.Remove(ctx, identityID); err != nil {
			r.log.Warn().Err(err).Str("id", identityID).Msg("failed to mirror identity removal into local cache")
		}
		return nil
	}
	return r.local.Remove(ctx, identityID)
}
