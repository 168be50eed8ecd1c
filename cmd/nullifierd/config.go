// config.go - Configuration management for the nullifier daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the daemon configuration
type Config struct {
	// Server settings
	ListenAddr     string `json:"listen_addr"`
	TimeoutSeconds int    `json:"timeout_seconds"`

	// Epoch settings
	EpochDuration   string `json:"epoch_duration"`
	SkewTolerance   uint64 `json:"skew_tolerance"`
	RetentionEpochs uint64 `json:"retention_epochs"`

	// Registry storage: "file" or "postgres"
	StoreBackend   string `json:"store_backend"`
	StorePath      string `json:"store_path"`
	PostgresDSN    string `json:"postgres_dsn"`
	FilterCapacity uint   `json:"filter_capacity"`

	// Proof settings
	EnableProofs bool   `json:"enable_proofs"`
	KeyDir       string `json:"key_dir"`
	ProverPool   int    `json:"prover_pool"`

	// Master secret source (file holding >= 32 raw bytes)
	MasterSecretPath string `json:"master_secret_path"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting
	RateLimitBurst  int `json:"rate_limit_burst"`
	RateLimitPerSec int `json:"rate_limit_per_sec"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":8450",
		TimeoutSeconds:   30,
		EpochDuration:    "24h",
		SkewTolerance:    1,
		RetentionEpochs:  30,
		StoreBackend:     "file",
		StorePath:        "nullifiers.json",
		FilterCapacity:   1 << 20,
		EnableProofs:     true,
		KeyDir:           "keys",
		ProverPool:       0,
		MasterSecretPath: "master.key",
		LogLevel:         "info",
		LogFile:          "nullifierd.log",
		RateLimitBurst:   100,
		RateLimitPerSec:  25,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	d, err := time.ParseDuration(c.EpochDuration)
	if err != nil {
		return fmt.Errorf("epoch_duration is not a valid duration: %w", err)
	}
	if d < time.Second {
		return fmt.Errorf("epoch_duration must be at least one second")
	}
	if c.RetentionEpochs == 0 {
		return fmt.Errorf("retention_epochs must be positive")
	}
	switch c.StoreBackend {
	case "file":
		if c.StorePath == "" {
			return fmt.Errorf("store_path must be set for the file backend")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("store_backend must be file or postgres")
	}
	if c.RateLimitBurst <= 0 || c.RateLimitPerSec <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}

// ParsedEpochDuration returns the epoch duration as a time.Duration.
// Validate must have accepted the config first.
func (c *Config) ParsedEpochDuration() time.Duration {
	d, _ := time.ParseDuration(c.EpochDuration)
	return d
}
