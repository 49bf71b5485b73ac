package session_test

import (
	"testing"

	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = b
	}
	return key
}

func adminIdentity() identity.Identity {
	return identity.Identity{
		ID:           "id-1",
		Email:        "admin@example.com",
		DisplayName:  "admin",
		Role:         identity.RoleAdmin,
		Status:       identity.StatusActive,
		TOTPSecret:   "SECRET",
		PrimaryAdmin: true,
	}
}

func TestOpenAndCurrent(t *testing.T) {
	m := session.NewManager(t.TempDir(), testKey(1), zerolog.Nop())

	require.Nil(t, m.Current())

	sess, err := m.Open(adminIdentity())
	require.NoError(t, err)
	require.True(t, sess.Authenticated)
	require.Equal(t, "admin@example.com", sess.Identity.Email)
	require.False(t, sess.AuthenticatedAt.IsZero())

	current := m.Current()
	require.NotNil(t, current)
	require.Equal(t, sess.Identity.ID, current.Identity.ID)
}

func TestRestoreAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	first := session.NewManager(dir, testKey(1), zerolog.Nop())
	_, err := first.Open(adminIdentity())
	require.NoError(t, err)

	second := session.NewManager(dir, testKey(1), zerolog.Nop())
	restored, err := second.Restore()
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, "admin@example.com", restored.Identity.Email)
	require.Equal(t, restored, second.Current())
}

func TestRestoreNothingPersisted(t *testing.T) {
	m := session.NewManager(t.TempDir(), testKey(1), zerolog.Nop())

	restored, err := m.Restore()
	require.NoError(t, err)
	require.Nil(t, restored)
	require.Nil(t, m.Current())
}

func TestRestoreRotatedKeyDiscards(t *testing.T) {
	dir := t.TempDir()

	first := session.NewManager(dir, testKey(1), zerolog.Nop())
	_, err := first.Open(adminIdentity())
	require.NoError(t, err)

	// A record sealed under the old key must not lock the user out of
	// the address step.
	second := session.NewManager(dir, testKey(2), zerolog.Nop())
	restored, err := second.Restore()
	require.NoError(t, err)
	require.Nil(t, restored)
}

func TestCloseClearsSessionAndStorage(t *testing.T) {
	dir := t.TempDir()

	m := session.NewManager(dir, testKey(1), zerolog.Nop())
	_, err := m.Open(adminIdentity())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.Nil(t, m.Current())
	require.NoError(t, m.Close()) // idempotent

	// Nothing survives the logout on disk either.
	again := session.NewManager(dir, testKey(1), zerolog.Nop())
	restored, err := again.Restore()
	require.NoError(t, err)
	require.Nil(t, restored)
}

func TestOpenReplacesPriorSession(t *testing.T) {
	m := session.NewManager(t.TempDir(), testKey(1), zerolog.Nop())

	_, err := m.Open(adminIdentity())
	require.NoError(t, err)

	other := adminIdentity()
	other.ID = "id-2"
	other.Email = "second@example.com"
	_, err = m.Open(other)
	require.NoError(t, err)

	current := m.Current()
	require.NotNil(t, current)
	require.Equal(t, "second@example.com", current.Identity.Email)
}
