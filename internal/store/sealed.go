package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSealOpen is returned when a sealed file exists but cannot be
// decrypted, usually because the encryption key changed.
var ErrSealOpen = errors.New("failed to open sealed data")

// SealedFile is a small encrypted-at-rest JSON document. The local
// identity cache and the session record live on shared client
// filesystems, so both are secretbox-sealed with the configured key.
type SealedFile struct {
	path string
	key  [32]byte
}

// NewSealedFile binds a path to an encryption key.
func NewSealedFile(path string, key [32]byte) *SealedFile {
	return &SealedFile{path: path, key: key}
}

// Path returns the file location.
func (f *SealedFile) Path() string {
	return f.path
}

// WriteJSON marshals v, seals it, and writes it atomically with 0600
// permissions.
func (f *SealedFile) WriteJSON(v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal sealed payload: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &f.key)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write sealed file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace sealed file: %w", err)
	}
	return nil
}

// ReadJSON opens the sealed file and unmarshals it into v. A missing
// file is reported as os.ErrNotExist so callers can treat it as empty.
func (f *SealedFile) ReadJSON(v any) error {
	sealed, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	if len(sealed) < 24 {
		return ErrSealOpen
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &f.key)
	if !ok {
		return ErrSealOpen
	}

	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("failed to unmarshal sealed payload: %w", err)
	}
	return nil
}

// Remove deletes the file. Removing a file that does not exist is not
// an error.
func (f *SealedFile) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove sealed file: %w", err)
	}
	return nil
}
