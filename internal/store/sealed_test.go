package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adamscao/cspmauth/internal/store"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = b
	}
	return key
}

func TestSealedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.sealed")
	file := store.NewSealedFile(path, testKey(1))

	in := map[string]string{"hello": "world"}
	require.NoError(t, file.WriteJSON(in))

	var out map[string]string
	require.NoError(t, file.ReadJSON(&out))
	require.Equal(t, in, out)

	// Ciphertext on disk, 0600.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "world")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSealedFileMissing(t *testing.T) {
	file := store.NewSealedFile(filepath.Join(t.TempDir(), "absent.sealed"), testKey(1))

	var out map[string]string
	err := file.ReadJSON(&out)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSealedFileWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.sealed")

	require.NoError(t, store.NewSealedFile(path, testKey(1)).WriteJSON("payload"))

	var out string
	err := store.NewSealedFile(path, testKey(2)).ReadJSON(&out)
	require.ErrorIs(t, err, store.ErrSealOpen)
}

func TestSealedFileTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.sealed")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	var out string
	err := store.NewSealedFile(path, testKey(1)).ReadJSON(&out)
	require.ErrorIs(t, err, store.ErrSealOpen)
}

func TestSealedFileRemoveIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.sealed")
	file := store.NewSealedFile(path, testKey(1))

	require.NoError(t, file.WriteJSON("payload"))
	require.NoError(t, file.Remove())
	require.NoError(t, file.Remove())
}

func TestSealedFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "data.sealed")
	file := store.NewSealedFile(path, testKey(1))

	require.NoError(t, file.WriteJSON("payload"))

	var out string
	require.NoError(t, file.ReadJSON(&out))
	require.Equal(t, "payload", out)
}
