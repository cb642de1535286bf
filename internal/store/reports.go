package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
)

// appliedStatuses restricts balance figures to transactions whose entries
// have been applied. A REVERSED transaction stays applied; its reversal
// is a separate applied transaction that cancels it out.
const appliedStatuses = `('POSTED','REVERSED')`

func (s *Store) LatestBalance(ctx context.Context, id ledger.AccountID) (int64, error) {
	var bal int64
	err := s.reader.QueryRowContext(ctx,
		`SELECT e.balance_after
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = ? AND t.chain_seq IS NOT NULL AND t.status IN `+appliedStatuses+`
		ORDER BY t.chain_seq DESC, e.entry_sequence DESC
		LIMIT 1`, string(id),
	).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest balance: %w", err)
	}
	return bal, nil
}

func (s *Store) AccountTotals(ctx context.Context, id ledger.AccountID, asOf time.Time) (int64, int64, error) {
	var debits, credits int64
	err := s.reader.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(e.debit_amount), 0), COALESCE(SUM(e.credit_amount), 0)
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = ? AND t.status IN `+appliedStatuses+` AND t.transaction_date <= ?`,
		string(id), formatDate(asOf),
	).Scan(&debits, &credits)
	if err != nil {
		return 0, 0, fmt.Errorf("account totals: %w", err)
	}
	return debits, credits, nil
}

// TrialBalance sums applied debits and credits for every active account,
// optionally bounded by transaction date. Accounts with no activity in the
// range are omitted.
func (s *Store) TrialBalance(ctx context.Context, from, to *time.Time) (*ledger.TrialBalance, error) {
	inner := `SELECT e.account_id, e.debit_amount, e.credit_amount
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE t.status IN ` + appliedStatuses
	args := []any{}
	if from != nil {
		inner += ` AND t.transaction_date >= ?`
		args = append(args, formatDate(*from))
	}
	if to != nil {
		inner += ` AND t.transaction_date <= ?`
		args = append(args, formatDate(*to))
	}

	rows, err := s.reader.QueryContext(ctx,
		`SELECT a.id, a.code, a.name, a.account_type,
			COALESCE(SUM(x.debit_amount), 0) AS debits,
			COALESCE(SUM(x.credit_amount), 0) AS credits
		FROM accounts a
		LEFT JOIN (`+inner+`) x ON x.account_id = a.id
		WHERE a.is_active = 1
		GROUP BY a.id
		HAVING debits != 0 OR credits != 0
		ORDER BY a.code`, args...)
	if err != nil {
		return nil, fmt.Errorf("trial balance query: %w", err)
	}
	defer rows.Close()

	tb := &ledger.TrialBalance{
		Lines:       []ledger.TrialBalanceLine{},
		From:        from,
		To:          to,
		GeneratedAt: time.Now().UTC(),
	}
	for rows.Next() {
		var line ledger.TrialBalanceLine
		if err := rows.Scan(&line.AccountID, &line.AccountCode, &line.AccountName, &line.AccountType,
			&line.TotalDebit, &line.TotalCredit); err != nil {
			return nil, fmt.Errorf("scan trial balance: %w", err)
		}
		line.NetBalance = line.TotalDebit - line.TotalCredit
		if tb.TotalDebit, err = ledger.CheckedAdd(tb.TotalDebit, line.TotalDebit); err != nil {
			return nil, err
		}
		if tb.TotalCredit, err = ledger.CheckedAdd(tb.TotalCredit, line.TotalCredit); err != nil {
			return nil, err
		}
		tb.Lines = append(tb.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tb.Balanced = tb.TotalDebit == tb.TotalCredit
	return tb, nil
}

// AccountLedger lists an account's applied entries in chain order. The
// running balance is the balance_after recorded at posting.
func (s *Store) AccountLedger(ctx context.Context, id ledger.AccountID, from, to *time.Time) ([]ledger.LedgerLine, error) {
	query := `SELECT t.id, t.transaction_number, t.transaction_date, t.chain_seq, e.entry_sequence,
			e.description, e.debit_amount, e.credit_amount, COALESCE(e.balance_after, 0)
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = ? AND t.chain_seq IS NOT NULL AND t.status IN ` + appliedStatuses
	args := []any{string(id)}
	if from != nil {
		query += ` AND t.transaction_date >= ?`
		args = append(args, formatDate(*from))
	}
	if to != nil {
		query += ` AND t.transaction_date <= ?`
		args = append(args, formatDate(*to))
	}
	query += ` ORDER BY t.chain_seq, e.entry_sequence`

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("account ledger: %w", err)
	}
	defer rows.Close()

	lines := []ledger.LedgerLine{}
	for rows.Next() {
		var l ledger.LedgerLine
		var txnDate string
		if err := rows.Scan(&l.TransactionID, &l.Number, &txnDate, &l.ChainSeq, &l.Sequence,
			&l.Description, &l.DebitAmount, &l.CreditAmount, &l.RunningBalance); err != nil {
			return nil, fmt.Errorf("scan ledger line: %w", err)
		}
		l.TransactionDate = parseDate(txnDate)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// WalkAppliedEntries streams every applied entry in chain order, loading
// one batch of chain positions at a time.
func (s *Store) WalkAppliedEntries(ctx context.Context, fn func(ledger.JournalEntry) error) error {
	var maxSeq int64
	if err := s.reader.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(chain_seq), 0) FROM transactions`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("max chain seq: %w", err)
	}

	for after := int64(0); after < maxSeq; after += chainBatch {
		entries, err := s.appliedEntriesInRange(ctx, after, after+chainBatch)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) appliedEntriesInRange(ctx context.Context, after, upTo int64) ([]ledger.JournalEntry, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE t.chain_seq > ? AND t.chain_seq <= ? AND t.status IN `+appliedStatuses+`
		ORDER BY t.chain_seq, e.entry_sequence`, after, upTo)
	if err != nil {
		return nil, fmt.Errorf("applied entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}
