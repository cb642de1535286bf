package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/simonvc/chainledger/internal/ledger"
)

const txnColumns = `t.id, t.transaction_number, t.reference_id, t.transaction_type, t.description,
	t.total_amount, t.currency, t.transaction_date, t.posting_date, t.status, t.source_system,
	t.created_by, t.hash_value, t.previous_hash, t.chain_seq, t.created_at, t.posted_at, t.cancelled_at`

const entryColumns = `e.id, e.transaction_id, e.account_id, e.debit_amount, e.credit_amount,
	e.balance_after, e.description, e.entry_sequence, e.hash_value, e.created_at`

// CreateTransaction inserts a PENDING transaction with all of its entries
// in one SQL transaction. Missing ids are assigned here.
func (s *Store) CreateTransaction(ctx context.Context, txn *ledger.Transaction) error {
	if txn.ID == "" {
		txn.ID = ledger.TransactionID(uuid.Must(uuid.NewV7()).String())
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	txn.Status = ledger.StatusPending

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ref any
	if txn.ReferenceID != "" {
		ref = string(txn.ReferenceID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, transaction_number, reference_id, transaction_type, description,
			total_amount, currency, transaction_date, posting_date, status, source_system, created_by,
			hash_value, previous_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(txn.ID), txn.Number, ref, txn.Type, txn.Description,
		txn.TotalAmount, txn.Currency, formatDate(txn.TransactionDate), formatDate(txn.PostingDate),
		string(txn.Status), txn.SourceSystem, txn.CreatedBy,
		txn.HashValue, txn.PreviousHash, formatTime(txn.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for i := range txn.Entries {
		e := &txn.Entries[i]
		if e.ID == "" {
			e.ID = ledger.EntryID(uuid.Must(uuid.NewV7()).String())
		}
		e.TransactionID = txn.ID
		e.CreatedAt = txn.CreatedAt
		_, err = tx.ExecContext(ctx,
			`INSERT INTO journal_entries (id, transaction_id, account_id, debit_amount, credit_amount,
				description, entry_sequence, hash_value, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(e.ID), string(e.TransactionID), string(e.AccountID), e.DebitAmount, e.CreditAmount,
			e.Description, e.Sequence, e.HashValue, formatTime(e.CreatedAt),
		)
		if err != nil {
			if strings.Contains(err.Error(), "inactive account") {
				return fmt.Errorf("%w: entry %d: %s", ledger.ErrInactiveAccount, e.Sequence, e.AccountID)
			}
			return fmt.Errorf("insert entry %d: %w", e.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return s.getTransaction(ctx, `t.id = ?`, string(id))
}

func (s *Store) GetTransactionByNumber(ctx context.Context, number string) (*ledger.Transaction, error) {
	return s.getTransaction(ctx, `t.transaction_number = ?`, number)
}

func (s *Store) getTransaction(ctx context.Context, where string, arg any) (*ledger.Transaction, error) {
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions t WHERE `+where, arg)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	entries, err := s.getEntriesForTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	txn.Entries = entries
	return txn, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter TxnFilter) ([]ledger.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions t WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND t.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.AccountID != "" {
		query += ` AND EXISTS (SELECT 1 FROM journal_entries e WHERE e.transaction_id = t.id AND e.account_id = ?)`
		args = append(args, string(filter.AccountID))
	}
	if filter.From != nil {
		query += ` AND t.transaction_date >= ?`
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		query += ` AND t.transaction_date <= ?`
		args = append(args, formatDate(*filter.To))
	}

	query += ` ORDER BY t.created_at DESC, t.id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
		}
	}

	txns, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	for i := range txns {
		entries, err := s.getEntriesForTransaction(ctx, txns[i].ID)
		if err != nil {
			return nil, err
		}
		txns[i].Entries = entries
	}
	return txns, nil
}

// ChainTip returns the sequence and hash of the last sealed transaction.
// An empty ledger has seq 0 and an empty hash.
func (s *Store) ChainTip(ctx context.Context) (int64, string, error) {
	var seq int64
	var hash string
	err := s.writer.QueryRowContext(ctx, `SELECT seq, hash FROM chain_tip WHERE id = 1`).Scan(&seq, &hash)
	if err != nil {
		return 0, "", fmt.Errorf("read chain tip: %w", err)
	}
	return seq, hash, nil
}

// CommitPost seals txn into the chain. In one SQL transaction it advances
// the chain tip from prevSeq to txn.ChainSeq, records each entry's
// balance_after and flips txn from PENDING to POSTED. When reverses is set
// that transaction is flipped from POSTED to REVERSED in the same commit.
//
// A tip that no longer matches prevSeq and txn.PreviousHash yields
// ledger.ErrChainTipMoved; a transaction that is no longer PENDING yields
// ledger.ErrNotPending.
func (s *Store) CommitPost(ctx context.Context, txn *ledger.Transaction, prevSeq int64, reverses ledger.TransactionID) error {
	if txn.PostedAt == nil {
		return fmt.Errorf("commit post %s: posted_at not set", txn.ID)
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE id = ?`, string(txn.ID)).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrTransactionNotFound
		}
		return fmt.Errorf("read status: %w", err)
	}
	if ledger.Status(status) != ledger.StatusPending {
		return fmt.Errorf("%w: %s is %s", ledger.ErrNotPending, txn.Number, status)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chain_tip SET seq = ?, hash = ? WHERE id = 1 AND seq = ? AND hash = ?`,
		txn.ChainSeq, txn.HashValue, prevSeq, txn.PreviousHash,
	)
	if err != nil {
		return fmt.Errorf("advance chain tip: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("advance chain tip: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: expected seq %d", ledger.ErrChainTipMoved, prevSeq)
	}

	for _, e := range txn.Entries {
		if e.BalanceAfter == nil {
			return fmt.Errorf("commit post %s: entry %d has no balance_after", txn.ID, e.Sequence)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE journal_entries SET balance_after = ? WHERE id = ?`, *e.BalanceAfter, string(e.ID)); err != nil {
			return fmt.Errorf("record balance entry %d: %w", e.Sequence, err)
		}
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE transactions
		SET status = 'POSTED', hash_value = ?, previous_hash = ?, chain_seq = ?, posted_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		txn.HashValue, txn.PreviousHash, txn.ChainSeq, formatTime(*txn.PostedAt), string(txn.ID),
	)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark posted: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotPending, txn.Number)
	}

	if reverses != "" {
		res, err = tx.ExecContext(ctx,
			`UPDATE transactions SET status = 'REVERSED' WHERE id = ? AND status = 'POSTED'`, string(reverses))
		if err != nil {
			return fmt.Errorf("mark reversed: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("mark reversed: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: %s", ledger.ErrNotPosted, reverses)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	txn.Status = ledger.StatusPosted
	return nil
}

// CancelTransaction moves a PENDING transaction to CANCELLED.
func (s *Store) CancelTransaction(ctx context.Context, id ledger.TransactionID, at time.Time) error {
	res, err := s.writer.ExecContext(ctx,
		`UPDATE transactions SET status = 'CANCELLED', cancelled_at = ? WHERE id = ? AND status = 'PENDING'`,
		formatTime(at), string(id),
	)
	if err != nil {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = s.writer.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = ?`, string(id)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", ledger.ErrNotPending, id, status)
}

const chainBatch = 200

// WalkChain streams sealed transactions with their entries in chain order.
func (s *Store) WalkChain(ctx context.Context, fn func(*ledger.Transaction) error) error {
	var after int64
	for {
		batch, err := s.queryTransactions(ctx,
			`SELECT `+txnColumns+` FROM transactions t
			WHERE t.chain_seq IS NOT NULL AND t.chain_seq > ?
			ORDER BY t.chain_seq LIMIT ?`, after, chainBatch)
		if err != nil {
			return fmt.Errorf("walk chain: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		last := batch[len(batch)-1].ChainSeq
		byID, err := s.entriesInChainRange(ctx, after, last)
		if err != nil {
			return err
		}
		for i := range batch {
			batch[i].Entries = byID[batch[i].ID]
			if err := fn(&batch[i]); err != nil {
				return err
			}
		}
		after = last
	}
}

func (s *Store) entriesInChainRange(ctx context.Context, after, upTo int64) (map[ledger.TransactionID][]ledger.JournalEntry, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE t.chain_seq > ? AND t.chain_seq <= ?
		ORDER BY t.chain_seq, e.entry_sequence`, after, upTo)
	if err != nil {
		return nil, fmt.Errorf("chain entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[ledger.TransactionID][]ledger.JournalEntry)
	for _, e := range entries {
		byID[e.TransactionID] = append(byID[e.TransactionID], e)
	}
	return byID, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

func (s *Store) getEntriesForTransaction(ctx context.Context, txnID ledger.TransactionID) ([]ledger.JournalEntry, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries e WHERE e.transaction_id = ? ORDER BY e.entry_sequence`,
		string(txnID),
	)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanTransaction(r rowScanner) (*ledger.Transaction, error) {
	var txn ledger.Transaction
	var ref, postedAt, cancelledAt sql.NullString
	var chainSeq sql.NullInt64
	var txnDate, postingDate, createdAt string
	err := r.Scan(&txn.ID, &txn.Number, &ref, &txn.Type, &txn.Description,
		&txn.TotalAmount, &txn.Currency, &txnDate, &postingDate, &txn.Status, &txn.SourceSystem,
		&txn.CreatedBy, &txn.HashValue, &txn.PreviousHash, &chainSeq, &createdAt, &postedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	txn.ReferenceID = ledger.TransactionID(ref.String)
	txn.ChainSeq = chainSeq.Int64
	txn.TransactionDate = parseDate(txnDate)
	txn.PostingDate = parseDate(postingDate)
	txn.CreatedAt = parseTime(createdAt)
	txn.PostedAt = parseNullTime(postedAt)
	txn.CancelledAt = parseNullTime(cancelledAt)
	return &txn, nil
}

func scanEntries(rows *sql.Rows) ([]ledger.JournalEntry, error) {
	var entries []ledger.JournalEntry
	for rows.Next() {
		var e ledger.JournalEntry
		var balanceAfter sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.DebitAmount, &e.CreditAmount,
			&balanceAfter, &e.Description, &e.Sequence, &e.HashValue, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if balanceAfter.Valid {
			v := balanceAfter.Int64
			e.BalanceAfter = &v
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
