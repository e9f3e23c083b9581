package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the configuration for the HTTP transport.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// NATSConfig holds the configuration for the NATS request/reply transport.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// ArchiveConfig holds the configuration for the SQLite chunk archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StoreConfig holds the key store options.
type StoreConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	DumpCacheSize int `yaml:"dump_cache_size"`
}

// Config is the top-level configuration struct for sketchd.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
	Archive ArchiveConfig `yaml:"archive"`
	Store   StoreConfig   `yaml:"store"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Missing fields get their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "5s"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "sketchkv.command"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "sketchkv.db"
	}
}

func (c *Config) validate() error {
	if c.Store.ChunkSize < 0 {
		return fmt.Errorf("invalid store.chunk_size %d", c.Store.ChunkSize)
	}
	if c.Store.DumpCacheSize < 0 {
		return fmt.Errorf("invalid store.dump_cache_size %d", c.Store.DumpCacheSize)
	}
	return nil
}
