package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, nil
}

func (cfg *AppConfig) validate() error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}
	seen := make(map[int64]bool, len(cfg.Chains))
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.ChainID <= 0 {
			return fmt.Errorf("chain %d: invalid chain id %d", i, c.ChainID)
		}
		if seen[c.ChainID] {
			return fmt.Errorf("chain id %d configured twice", c.ChainID)
		}
		seen[c.ChainID] = true
		if c.RPCURL == "" {
			return fmt.Errorf("chain %d: rpc_url is required", c.ChainID)
		}
		if c.Contract == "" {
			return fmt.Errorf("chain %d: contract is required", c.ChainID)
		}
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Signer.PrivateKey == "" {
		return fmt.Errorf("signer.private_key is required")
	}
	return nil
}

func (cfg *AppConfig) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	for i := range cfg.Chains {
		if cfg.Chains[i].PollInterval == 0 {
			cfg.Chains[i].PollInterval = 10 * time.Second
		}
		if cfg.Chains[i].Confirmations == 0 {
			cfg.Chains[i].Confirmations = 12
		}
		if cfg.Chains[i].ChunkSize == 0 {
			cfg.Chains[i].ChunkSize = 2000
		}
	}

	if cfg.Reconciler.SweepInterval == 0 {
		cfg.Reconciler.SweepInterval = 30 * time.Second
	}
	if cfg.Reconciler.BatchSize == 0 {
		cfg.Reconciler.BatchSize = 100
	}
	if cfg.Reconciler.BaseDelay == 0 {
		cfg.Reconciler.BaseDelay = time.Minute
	}
	if cfg.Reconciler.MaxAttempts == 0 {
		cfg.Reconciler.MaxAttempts = 10
	}
}
