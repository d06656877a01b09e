package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the process-level settings for an accessd node: where it
// listens for admin requests, where the subject-pubkey service lives, where
// it persists policies, and the path to its module Ed25519 keypair.
type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	PubKeyServiceAddress string `toml:"PubKeyServiceAddress"`
	DataDir              string `toml:"DataDir"`
	ModuleKeyPath        string `toml:"ModuleKeyPath"`
	MaxTokens            int    `toml:"MaxTokens"`
}

// Load loads the configuration from the given path, bootstrapping a default
// file if none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:        ":7401",
		PubKeyServiceAddress: "127.0.0.1:7402",
		DataDir:              "./accessd-data",
		ModuleKeyPath:        "./accessd-data/module.key",
		MaxTokens:            4096,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
