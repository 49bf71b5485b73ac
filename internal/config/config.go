package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Config holds all configuration for the auth core, the durable
// backend, and the admin tool. One file serves all three binaries.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	TOTP       TOTPConfig       `yaml:"totp"`
	Session    SessionConfig    `yaml:"session"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Admin      AdminConfig      `yaml:"admin"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains the auth-core HTTP listener configuration.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// BackendConfig describes the durable identity backend: where the
// auth core reaches it, and where the backend itself listens.
type BackendConfig struct {
	BaseURL      string `yaml:"base_url"`
	ListenAddr   string `yaml:"listen_addr"`
	ProbeTimeout string `yaml:"probe_timeout"`
}

// DatabaseConfig contains the backend's sqlite location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig locates the scoped storage directory holding the local
// identity cache and the session record.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// TOTPConfig contains the issuer stamped into provisioning URIs.
type TOTPConfig struct {
	Issuer string `yaml:"issuer"`
}

// SessionConfig contains the HS256 key for the browser session token.
type SessionConfig struct {
	SigningKey string `yaml:"signing_key"`
}

// EncryptionConfig contains the key sealing local files at rest.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// AdminConfig contains the static token guarding admin endpoints.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.ListenAddr == "" {
		return fmt.Errorf("backend.listen_addr is required")
	}
	if c.Backend.ProbeTimeout == "" {
		c.Backend.ProbeTimeout = "3s"
	}
	if _, err := time.ParseDuration(c.Backend.ProbeTimeout); err != nil {
		return fmt.Errorf("backend.probe_timeout is invalid: %w", err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}

	if c.TOTP.Issuer == "" {
		return fmt.Errorf("totp.issuer is required")
	}

	if len(c.Session.SigningKey) < 32 {
		return fmt.Errorf("session.signing_key must be at least 32 characters")
	}

	if _, err := c.EncryptionKey(); err != nil {
		return err
	}

	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}

// EncryptionKey decodes the configured hex key into the 32-byte key
// used to seal local files.
func (c *Config) EncryptionKey() ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(c.Encryption.Key)
	if err != nil || len(raw) != 32 {
		return key, fmt.Errorf("encryption.key must be 64 hex characters (32 bytes)")
	}
	copy(key[:], raw)
	return key, nil
}

// ProbeTimeout returns backend.probe_timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.ProbeTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}
