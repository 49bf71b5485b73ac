package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment
// variable overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if addr := os.Getenv("CSPM_AUTH_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	if baseURL := os.Getenv("CSPM_BACKEND_URL"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}

	if addr := os.Getenv("CSPM_BACKEND_LISTEN_ADDR"); addr != "" {
		cfg.Backend.ListenAddr = addr
	}

	if dbPath := os.Getenv("CSPM_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if dir := os.Getenv("CSPM_STORAGE_DIR"); dir != "" {
		cfg.Storage.Dir = dir
	}

	if key := os.Getenv("CSPM_ENCRYPTION_KEY"); key != "" {
		cfg.Encryption.Key = key
	}

	if key := os.Getenv("CSPM_SESSION_KEY"); key != "" {
		cfg.Session.SigningKey = key
	}

	if token := os.Getenv("CSPM_ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}

	// Validate again after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
