package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8888", cfg.Addr)
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Equal(t, "INR", cfg.DefaultCurrency)
	assert.Equal(t, "sha256", cfg.HashAlgorithm)
	assert.Equal(t, LockLocal, cfg.LockBackend)
	assert.Equal(t, 5*time.Second, cfg.PostLockTimeout)
	assert.Equal(t, "@every 1h", cfg.VerifyCron)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEDGER_ENV", "production")
	t.Setenv("LEDGER_DEFAULT_CURRENCY", "usd")
	t.Setenv("LEDGER_HASH_ALGORITHM", "sha3-256")
	t.Setenv("LEDGER_LOCK_BACKEND", "REDIS")
	t.Setenv("LEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LEDGER_POST_LOCK_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, LockRedis, cfg.LockBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.PostLockTimeout)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("LEDGER_HASH_ALGORITHM", "md5")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("LEDGER_HASH_ALGORITHM", "sha256")
	t.Setenv("LEDGER_LOCK_BACKEND", "postgres")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "LEDGER_POSTGRES_URL")

	t.Setenv("LEDGER_LOCK_BACKEND", "zookeeper")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "unknown lock backend")
}

func testConfig(t *testing.T, dbPath string) *Config {
	t.Helper()
	return &Config{
		DBPath:          dbPath,
		DefaultCurrency: "INR",
		HashAlgorithm:   "sha256",
		LockBackend:     LockLocal,
		PostLockTimeout: time.Second,
		RequestTimeout:  time.Second,
	}
}

func TestNewRefusesAlgorithmChange(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "ledger.db")

	a, err := New(ctx, testConfig(t, path), logger)
	require.NoError(t, err)
	require.NotNil(t, a.Ledger)
	require.NoError(t, a.Close())

	cfg := testConfig(t, path)
	cfg.HashAlgorithm = "sha3-256"
	_, err = New(ctx, cfg, logger)
	assert.ErrorContains(t, err, "chained with sha256")

	a, err = New(ctx, testConfig(t, path), logger)
	require.NoError(t, err)
	assert.NotNil(t, a.Server(":0").Handler())
	require.NoError(t, a.Close())
}

func TestNewWithRedisLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := testConfig(t, filepath.Join(t.TempDir(), "ledger.db"))
	cfg.LockBackend = LockRedis
	cfg.RedisAddr = mr.Addr()
	cfg.PostLockTTL = 10 * time.Second

	a, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	cash, err := a.Ledger.GetAccountByCode(ctx, "1010")
	require.NoError(t, err)
	equity, err := a.Ledger.GetAccountByCode(ctx, "3000")
	require.NoError(t, err)

	txn, err := a.Ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		Type:        "CAPITAL",
		TotalAmount: 5000,
		Entries: []ledger.EntryRequest{
			{AccountID: cash.ID, DebitAmount: 5000},
			{AccountID: equity.ID, CreditAmount: 5000},
		},
	})
	require.NoError(t, err)
	_, err = a.Ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("chainledger:posting"), "lock released after post")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
