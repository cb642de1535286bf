package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simonvc/chainledger/internal/ledger"
)

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Create schema version table
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		if err := migrateV1(ctx, tx); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		// Accounts: never hard-deleted
		`CREATE TABLE IF NOT EXISTS accounts (
			id           TEXT PRIMARY KEY,
			code         TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			account_type TEXT NOT NULL CHECK (account_type IN ('ASSET','LIABILITY','EQUITY','REVENUE','EXPENSE')),
			parent_id    TEXT REFERENCES accounts(id),
			is_active    INTEGER NOT NULL DEFAULT 1,
			description  TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_type ON accounts(account_type)`,

		// Transactions: chain_seq is set once, at posting, and orders the chain
		`CREATE TABLE IF NOT EXISTS transactions (
			id                 TEXT PRIMARY KEY,
			transaction_number TEXT NOT NULL UNIQUE,
			reference_id       TEXT REFERENCES transactions(id),
			transaction_type   TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			total_amount       INTEGER NOT NULL CHECK (total_amount >= 0),
			currency           TEXT NOT NULL,
			transaction_date   TEXT NOT NULL,
			posting_date       TEXT NOT NULL,
			status             TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','POSTED','REVERSED','CANCELLED')),
			source_system      TEXT NOT NULL DEFAULT '',
			created_by         TEXT NOT NULL DEFAULT '',
			hash_value         TEXT NOT NULL,
			previous_hash      TEXT NOT NULL DEFAULT '',
			chain_seq          INTEGER UNIQUE,
			created_at         TEXT NOT NULL,
			posted_at          TEXT,
			cancelled_at       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference_id)`,

		// Journal entries: exactly one side positive
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id             TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL REFERENCES transactions(id),
			account_id     TEXT NOT NULL REFERENCES accounts(id),
			debit_amount   INTEGER NOT NULL DEFAULT 0 CHECK (debit_amount >= 0),
			credit_amount  INTEGER NOT NULL DEFAULT 0 CHECK (credit_amount >= 0),
			balance_after  INTEGER,
			description    TEXT NOT NULL DEFAULT '',
			entry_sequence INTEGER NOT NULL CHECK (entry_sequence >= 1),
			hash_value     TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			CHECK ((debit_amount > 0) <> (credit_amount > 0)),
			UNIQUE (transaction_id, entry_sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account ON journal_entries(account_id)`,

		// Single-row chain tip, advanced by compare-and-swap on seq
		`CREATE TABLE IF NOT EXISTS chain_tip (
			id   INTEGER PRIMARY KEY CHECK (id = 1),
			seq  INTEGER NOT NULL,
			hash TEXT NOT NULL
		)`,
		`INSERT OR IGNORE INTO chain_tip (id, seq, hash) VALUES (1, 0, '')`,

		`CREATE TABLE IF NOT EXISTS ledger_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Trigger: refuse to post a transaction whose entries do not balance
		`CREATE TRIGGER IF NOT EXISTS trg_post_balanced
		BEFORE UPDATE OF status ON transactions
		WHEN NEW.status = 'POSTED' AND OLD.status = 'PENDING'
		BEGIN
			SELECT CASE
				WHEN (SELECT COALESCE(SUM(debit_amount), 0) FROM journal_entries WHERE transaction_id = NEW.id) != NEW.total_amount
					OR (SELECT COALESCE(SUM(credit_amount), 0) FROM journal_entries WHERE transaction_id = NEW.id) != NEW.total_amount
				THEN RAISE(ABORT, 'transaction entries do not balance')
			END;
		END`,

		// Trigger: only PENDING -> POSTED|CANCELLED and POSTED -> REVERSED
		`CREATE TRIGGER IF NOT EXISTS trg_status_transition
		BEFORE UPDATE OF status ON transactions
		WHEN NEW.status != OLD.status
			AND NOT ((OLD.status = 'PENDING' AND NEW.status IN ('POSTED','CANCELLED'))
				OR (OLD.status = 'POSTED' AND NEW.status = 'REVERSED'))
		BEGIN
			SELECT RAISE(ABORT, 'invalid transaction status transition');
		END`,

		// Trigger: sealed transactions keep their content and chain position
		`CREATE TRIGGER IF NOT EXISTS trg_sealed_immutable
		BEFORE UPDATE ON transactions
		WHEN OLD.chain_seq IS NOT NULL AND (
			NEW.chain_seq IS NOT OLD.chain_seq
			OR NEW.hash_value != OLD.hash_value
			OR NEW.previous_hash != OLD.previous_hash
			OR NEW.transaction_number != OLD.transaction_number
			OR NEW.transaction_type != OLD.transaction_type
			OR NEW.description != OLD.description
			OR NEW.total_amount != OLD.total_amount
			OR NEW.currency != OLD.currency
			OR NEW.transaction_date != OLD.transaction_date
			OR NEW.posting_date != OLD.posting_date
			OR NEW.source_system != OLD.source_system
			OR NEW.created_by != OLD.created_by
			OR NEW.reference_id IS NOT OLD.reference_id
			OR NEW.posted_at IS NOT OLD.posted_at)
		BEGIN
			SELECT RAISE(ABORT, 'cannot modify a sealed transaction');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_transactions_no_delete
		BEFORE DELETE ON transactions
		BEGIN
			SELECT RAISE(ABORT, 'transactions cannot be deleted');
		END`,

		// Trigger: entries are only added to PENDING transactions
		`CREATE TRIGGER IF NOT EXISTS trg_entries_insert_pending
		BEFORE INSERT ON journal_entries
		WHEN (SELECT status FROM transactions WHERE id = NEW.transaction_id) != 'PENDING'
		BEGIN
			SELECT RAISE(ABORT, 'cannot add entries to a non-pending transaction');
		END`,

		// Trigger: entries may only reference active accounts
		`CREATE TRIGGER IF NOT EXISTS trg_entries_active_account
		BEFORE INSERT ON journal_entries
		WHEN (SELECT is_active FROM accounts WHERE id = NEW.account_id) IS NOT 1
		BEGIN
			SELECT RAISE(ABORT, 'entry references an inactive account');
		END`,

		// Trigger: only balance_after changes, and only while posting
		`CREATE TRIGGER IF NOT EXISTS trg_entries_immutable
		BEFORE UPDATE ON journal_entries
		WHEN (SELECT status FROM transactions WHERE id = OLD.transaction_id) != 'PENDING'
			OR NEW.transaction_id != OLD.transaction_id
			OR NEW.account_id != OLD.account_id
			OR NEW.debit_amount != OLD.debit_amount
			OR NEW.credit_amount != OLD.credit_amount
			OR NEW.entry_sequence != OLD.entry_sequence
			OR NEW.description != OLD.description
			OR NEW.hash_value != OLD.hash_value
		BEGIN
			SELECT RAISE(ABORT, 'journal entries are immutable');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_entries_no_delete
		BEFORE DELETE ON journal_entries
		BEGIN
			SELECT RAISE(ABORT, 'journal entries cannot be deleted');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_accounts_no_delete
		BEFORE DELETE ON accounts
		BEGIN
			SELECT RAISE(ABORT, 'accounts are deactivated, never deleted');
		END`,

		// Record schema version
		`INSERT INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", truncate(stmt, 60), err)
		}
	}

	return seedChart(ctx, tx)
}

// seedChart inserts the default chart of accounts. Parents precede
// children in ledger.DefaultChart.
func seedChart(ctx context.Context, tx *sql.Tx) error {
	ids := make(map[string]string, len(ledger.DefaultChart))
	now := formatTime(time.Now())
	for _, ce := range ledger.DefaultChart {
		id := uuid.Must(uuid.NewV7()).String()
		var parent any
		if ce.ParentCode != "" {
			pid, ok := ids[ce.ParentCode]
			if !ok {
				return fmt.Errorf("seed account %s: parent %s not seeded", ce.Code, ce.ParentCode)
			}
			parent = pid
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO accounts (id, code, name, account_type, parent_id, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, ce.Code, ce.Name, string(ce.Type), parent, ce.Description, now,
		)
		if err != nil {
			return fmt.Errorf("seed account %s: %w", ce.Code, err)
		}
		ids[ce.Code] = id
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
