// Package config provides configuration management for the node.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, LOG_LEVEL)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Node     NodeConfig     `mapstructure:"node"`
	Rollup   RollupConfig   `mapstructure:"rollup"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Log      LogConfig      `mapstructure:"log"`
	River    RiverConfig    `mapstructure:"river"`
	Security SecurityConfig `mapstructure:"security"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig contains service-surface settings.
type ServerConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// Shared connection pool for the persistence adapters + River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// NodeConfig carries the indexer's network identity and upstream chain settings.
type NodeConfig struct {
	NetworkID      uint64 `mapstructure:"network_id"`
	ChainID        uint32 `mapstructure:"chain_id"`
	EvmNodeURL     string `mapstructure:"evm_node_url"`
	ContractAddr   string `mapstructure:"contract_addr"`
	AdminAddr      string `mapstructure:"admin_addr"`
	KeyRootPath    string `mapstructure:"key_root_path"`
	RecoverStride  uint64 `mapstructure:"recover_stride"`
	PrimaryNodeURL string `mapstructure:"primary_node_url"`
}

// RollupConfig carries the batcher/GC thresholds.
type RollupConfig struct {
	MinRollupSize     uint64        `mapstructure:"min_rollup_size"`
	RollupInterval    time.Duration `mapstructure:"rollup_interval"`
	RollupMaxInterval time.Duration `mapstructure:"rollup_max_interval"`
	MinGcRoundOffset  uint64        `mapstructure:"min_gc_round_offset"`
}

// BlobConfig describes the permanent, content-addressed blob store
// (an S3-compatible bucket standing in for the Arweave permanent store).
type BlobConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains security-related settings.
// Secrets are auto-generated on first boot if missing.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	ListenerPoolSize int `mapstructure:"listener_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// No prefix: uses standard names like DATABASE_URL, LOG_LEVEL.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chainstore-node")

	// Maps nested config: database.max_conns -> DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Node.ContractAddr == "" {
		return fmt.Errorf("node.contract_addr must not be empty")
	}
	if c.Rollup.RollupMaxInterval < c.Rollup.RollupInterval {
		return fmt.Errorf("rollup.rollup_max_interval must be >= rollup.rollup_interval")
	}
	return nil
}

// ensureSecrets auto-generates missing secrets.
func (c *Config) ensureSecrets() error {
	if c.Security.EncryptionKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate encryption key: %w", err)
		}
		c.Security.EncryptionKey = key
		logBootstrapWarn(
			"auto-generated encryption_key; set SECURITY_ENCRYPTION_KEY env var for persistence",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default, even an empty one: Unmarshal only picks up
	// an environment variable for a key viper already knows.

	// Server
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chainstore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "chainstore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Node
	v.SetDefault("node.network_id", 0)
	v.SetDefault("node.chain_id", 0)
	v.SetDefault("node.evm_node_url", "")
	v.SetDefault("node.contract_addr", "")
	v.SetDefault("node.admin_addr", "")
	v.SetDefault("node.primary_node_url", "")
	v.SetDefault("node.key_root_path", "./keys")
	v.SetDefault("node.recover_stride", 1000)

	// Rollup
	v.SetDefault("rollup.min_rollup_size", 1024*1024)
	v.SetDefault("rollup.rollup_interval", "60s")
	v.SetDefault("rollup.rollup_max_interval", "600s")
	v.SetDefault("rollup.min_gc_round_offset", 100)

	// Blob store
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.prefix", "blobs/")
	v.SetDefault("blob.region", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.use_path_style", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.encryption_key", "")

	// Worker pool
	v.SetDefault("worker.listener_pool_size", 64)
}
