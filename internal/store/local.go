package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adamscao/cspmauth/internal/identity"
)

// identitiesFile is the well-known name of the local identity cache
// inside the scoped storage directory.
const identitiesFile = "identities.sealed"

// LocalStore keeps the identity set in a sealed JSON file under the
// scoped storage directory. It persists across restarts of the same
// client but is never shared between machines.
type LocalStore struct {
	mu   sync.Mutex
	file *SealedFile
}

// NewLocalStore creates a local store rooted at dir.
func NewLocalStore(dir string, key [32]byte) *LocalStore {
	return &LocalStore{file: NewSealedFile(filepath.Join(dir, identitiesFile), key)}
}

// LoadAll returns the cached identity set. A cache that was never
// written reads as empty, which is what classification expects on a
// fresh install.
func (s *LocalStore) LoadAll(ctx context.Context) ([]identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// SaveAll replaces the cached identity set.
func (s *LocalStore) SaveAll(ctx context.Context, identities []identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.WriteJSON(identities)
}

// Upsert inserts or replaces one identity, keyed by normalized email.
func (s *LocalStore) Upsert(ctx context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identities, err := s.loadLocked()
	if err != nil {
		return err
	}

	id.Email = identity.NormalizeEmail(id.Email)
	replaced := false
	for i := range identities {
		if identity.NormalizeEmail(identities[i].Email) == id.Email {
			identities[i] = id
			replaced = true
			break
		}
	}
	if !replaced {
		identities = append(identities, id)
	}

	return s.file.WriteJSON(identities)
}

// Remove drops the identity with the given ID. Removing an unknown ID
// is a no-op.
func (s *LocalStore) Remove(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identities, err := s.loadLocked()
	if err != nil {
		return err
	}

	kept := identities[:0]
	for _, id := range identities {
		if id.ID != identityID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(identities) {
		return nil
	}

	return s.file.WriteJSON(kept)
}

func (s *LocalStore) loadLocked() ([]identity.Identity, error) {
	var identities []identity.Identity
	err := s.file.ReadJSON(&identities)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local identity cache: %w", err)
	}
	return identities, nil
}
