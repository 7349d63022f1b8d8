package config

import (
	"time"

	redisclient "github.com/claimgate/claimgate/internal/infra/redis"
	"github.com/claimgate/claimgate/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Chains     []ChainConfig      `yaml:"chains"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Signer     SignerConfig       `yaml:"signer"`
	Reconciler ReconcilerConfig   `yaml:"reconciler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for one chain's distributor contract.
type ChainConfig struct {
	ChainID       int64         `yaml:"id"`
	Name          string        `yaml:"name"`
	RPCURL        string        `yaml:"rpc_url"`
	Contract      string        `yaml:"contract"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Confirmations uint64        `yaml:"confirmations"`
	StartBlock    uint64        `yaml:"start_block"`
	ChunkSize     uint64        `yaml:"chunk_size"`
}

// SignerConfig holds the claim verifier key. The key is normally injected
// via environment expansion, never written into the file itself.
type SignerConfig struct {
	PrivateKey string `yaml:"private_key"`
}

// ReconcilerConfig holds retry sweep settings shared across chains.
type ReconcilerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	BatchSize     int           `yaml:"batch_size"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxAttempts   int           `yaml:"max_attempts"`
}
