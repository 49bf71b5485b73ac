// Package session manages the ephemeral proof of authentication. A
// session is created only by a successful enrollment or verification,
// persisted into scoped storage so a restart of the same client can
// resume it, and destroyed on explicit logout. No expiry is enforced.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/store"
	"github.com/rs/zerolog"
)

// sessionFile is the well-known name of the session record inside the
// scoped storage directory.
const sessionFile = "session.sealed"

// Session is the persisted authentication record.
type Session struct {
	Authenticated   bool              `json:"authenticated"`
	Identity        identity.Identity `json:"identity"`
	AuthenticatedAt time.Time         `json:"authenticated_at"`
}

// Manager owns the single session record for this client.
type Manager struct {
	mu      sync.Mutex
	file    *store.SealedFile
	current *Session
	now     func() time.Time
	log     zerolog.Logger
}

// NewManager creates a session manager over the scoped storage dir.
func NewManager(dir string, key [32]byte, log zerolog.Logger) *Manager {
	return &Manager{
		file: store.NewSealedFile(filepath.Join(dir, sessionFile), key),
		now:  time.Now,
		log:  log.With().Str("component", "session").Logger(),
	}
}

// Open records a new authenticated session for the identity and
// persists it. Any previously open session is replaced.
func (m *Manager) Open(id identity.Identity) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := Session{
		Authenticated:   true,
		Identity:        id,
		AuthenticatedAt: m.now(),
	}
	if err := m.file.WriteJSON(sess); err != nil {
		return Session{}, fmt.Errorf("failed to persist session: %w", err)
	}
	m.current = &sess
	return sess, nil
}

// Restore reads a previously persisted session. It is meant to be
// called once at application start; a missing record returns nil
// without error. An undecryptable record is treated as absent after a
// warning, so a rotated key never locks the user out of the address
// step.
func (m *Manager) Restore() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sess Session
	err := m.file.ReadJSON(&sess)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if errors.Is(err, store.ErrSealOpen) {
		m.log.Warn().Msg("stored session could not be opened, discarding")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if !sess.Authenticated {
		return nil, nil
	}

	m.current = &sess
	return &sess, nil
}

// Current returns the in-memory session, or nil when logged out.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears the session down and clears scoped storage. Closing when
// no session is open is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	if err := m.file.Remove(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
