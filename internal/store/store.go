package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
	_ "modernc.org/sqlite"
)

type AccountFilter struct {
	Type         ledger.AccountType
	ActiveOnly   bool
	ParentID     ledger.AccountID
	RootsOnly    bool
	NameContains string
	Limit        int
	Offset       int
}

type TxnFilter struct {
	Status    ledger.Status
	AccountID ledger.AccountID
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Store persists the ledger in SQLite. Writes go through a single
// connection; reads use a separate pool.
type Store struct {
	writer *sql.DB
	reader *sql.DB
}

func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(max(4, runtime.NumCPU()))

	s := &Store{writer: writer, reader: reader}

	if err := s.migrate(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Ping checks both pools.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.writer.PingContext(ctx); err != nil {
		return err
	}
	return s.reader.PingContext(ctx)
}

// EnsureMeta stores value under key if the key is unset and returns the
// value now stored.
func (s *Store) EnsureMeta(ctx context.Context, key, value string) (string, error) {
	if _, err := s.writer.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return "", fmt.Errorf("write meta %s: %w", key, err)
	}
	var stored string
	if err := s.writer.QueryRowContext(ctx,
		`SELECT value FROM ledger_meta WHERE key = ?`, key).Scan(&stored); err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return stored, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(ledger.DateLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(ledger.DateLayout, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
