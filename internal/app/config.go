package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/simonvc/chainledger/internal/hashchain"
	"github.com/simonvc/chainledger/internal/ledger"
)

// EnvPrefix prefixes every configuration variable, e.g. LEDGER_DB_PATH.
const EnvPrefix = "LEDGER"

// Config holds runtime configuration for the ledger.
type Config struct {
	Env            string        `envconfig:"ENV" default:"development"`
	Addr           string        `envconfig:"ADDR" default:":8888"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	RateLimit      int           `envconfig:"RATE_LIMIT" default:"120"`

	DBPath          string `envconfig:"DB_PATH" default:"ledger.db"`
	DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"INR"`
	HashAlgorithm   string `envconfig:"HASH_ALGORITHM" default:"sha256"`

	LockBackend     string        `envconfig:"LOCK_BACKEND" default:"local"`
	PostLockTimeout time.Duration `envconfig:"POST_LOCK_TIMEOUT" default:"5s"`
	PostLockTTL     time.Duration `envconfig:"POST_LOCK_TTL" default:"30s"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	PostgresURL string `envconfig:"POSTGRES_URL"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"ledger.events"`

	VerifyCron string `envconfig:"VERIFY_CRON" default:"@every 1h"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

const (
	LockLocal    = "local"
	LockRedis    = "redis"
	LockPostgres = "postgres"
)

// LoadConfig reads a .env file when present and then the LEDGER_*
// environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := hashchain.ParseAlgorithm(c.HashAlgorithm); err != nil {
		return err
	}
	cur, err := ledger.NormalizeCurrency(c.DefaultCurrency)
	if err != nil {
		return fmt.Errorf("default currency: %w", err)
	}
	c.DefaultCurrency = cur

	c.LockBackend = strings.ToLower(c.LockBackend)
	switch c.LockBackend {
	case LockLocal, LockRedis:
	case LockPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres lock backend requires LEDGER_POSTGRES_URL")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.LockBackend)
	}
	if c.PostLockTimeout <= 0 {
		return errors.New("post lock timeout must be positive")
	}
	if c.LockBackend == LockRedis && c.PostLockTTL <= c.PostLockTimeout {
		return errors.New("post lock TTL must exceed the lock timeout")
	}
	return nil
}

// IsProduction returns true when the ledger runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
