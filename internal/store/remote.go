package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adamscao/cspmauth/internal/identity"
)

// RemoteStore talks to the durable identity backend over its REST
// boundary: a readiness probe, a full identity listing, and an
// idempotent upsert keyed by email.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemoteStore creates a client for the backend at baseURL.
func NewRemoteStore(baseURL string, timeout time.Duration) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	IsSetup bool   `json:"isSetup"`
	Mode    string `json:"mode"`
}

// Ready probes the backend. Any failure, from network errors to a
// backend that reports itself uninitialized, is returned as an error
// and resolves the repository to local mode.
func (s *RemoteStore) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/status", nil)
	if err != nil {
		return fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend status check returned %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}
	if !status.IsSetup {
		return fmt.Errorf("backend reports not initialized")
	}
	return nil
}

// LoadAll fetches the full identity set from the backend.
func (s *RemoteStore) LoadAll(ctx context.Context) ([]identity.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/users", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity listing returned %d", resp.StatusCode)
	}

	var identities []identity.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identities); err != nil {
		return nil, fmt.Errorf("failed to decode identity listing: %w", err)
	}
	return identities, nil
}

// Upsert posts one identity to the backend. The backend applies
// insert-or-update semantics keyed by email.
func (s *RemoteStore) Upsert(ctx context.Context, id identity.Identity) error {
	body, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/users", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity upsert returned %d", resp.StatusCode)
	}
	return nil
}

// Remove deletes one identity by ID. A 404 counts as success so the
// operation stays idempotent.
func (s *RemoteStore) Remove(ctx context.Context, identityID string) error {
	target := s.baseURL + "/api/users/" + url.PathEscape(identityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("identity delete returned %d", resp.StatusCode)
	}
	return nil
}
