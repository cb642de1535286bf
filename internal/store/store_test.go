package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func accountByCode(t *testing.T, st *Store, code string) *ledger.Account {
	t.Helper()
	acct, err := st.GetAccountByCode(context.Background(), code)
	require.NoError(t, err)
	return acct
}

func pendingTxn(number string, debit, credit ledger.AccountID, amount int64) *ledger.Transaction {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return &ledger.Transaction{
		Number:          number,
		Type:            "PAYMENT",
		Description:     "test " + number,
		TotalAmount:     amount,
		Currency:        "INR",
		TransactionDate: day,
		PostingDate:     day,
		HashValue:       "provisional-" + number,
		Entries: []ledger.JournalEntry{
			{AccountID: debit, DebitAmount: amount, Sequence: 1, HashValue: "e1"},
			{AccountID: credit, CreditAmount: amount, Sequence: 2, HashValue: "e2"},
		},
	}
}

// post seals txn directly through CommitPost with naive balances.
func post(t *testing.T, st *Store, txn *ledger.Transaction, reverses ledger.TransactionID) {
	t.Helper()
	ctx := context.Background()
	seq, hash, err := st.ChainTip(ctx)
	require.NoError(t, err)
	for i := range txn.Entries {
		bal, err := st.LatestBalance(ctx, txn.Entries[i].AccountID)
		require.NoError(t, err)
		acct, err := st.GetAccount(ctx, txn.Entries[i].AccountID)
		require.NoError(t, err)
		next := bal + acct.Type.Delta(txn.Entries[i].DebitAmount, txn.Entries[i].CreditAmount)
		txn.Entries[i].BalanceAfter = &next
	}
	now := time.Now().UTC()
	txn.PreviousHash = hash
	txn.ChainSeq = seq + 1
	txn.HashValue = "sealed-" + txn.Number
	txn.PostedAt = &now
	require.NoError(t, st.CommitPost(ctx, txn, seq, reverses))
}

func TestOpenSeedsDefaultChart(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	accounts, err := st.ListAccounts(ctx, AccountFilter{})
	require.NoError(t, err)
	assert.Len(t, accounts, len(ledger.DefaultChart))

	cash := accountByCode(t, st, "1010")
	parent := accountByCode(t, st, "1000")
	assert.Equal(t, parent.ID, cash.ParentID)
	assert.True(t, cash.Active)
	assert.Equal(t, ledger.AccountTypeAsset, cash.Type)

	roots, err := st.ListAccounts(ctx, AccountFilter{RootsOnly: true})
	require.NoError(t, err)
	for _, r := range roots {
		assert.Empty(t, r.ParentID)
	}

	children, err := st.ListAccounts(ctx, AccountFilter{ParentID: parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "1010", children[0].Code)

	found, err := st.ListAccounts(ctx, AccountFilter{NameContains: "REVENUE"})
	require.NoError(t, err)
	assert.Len(t, found, 3)

	seq, hash, err := st.ChainTip(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)
	assert.Empty(t, hash)
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()
	accounts, err := st.ListAccounts(context.Background(), AccountFilter{})
	require.NoError(t, err)
	assert.Len(t, accounts, len(ledger.DefaultChart))
}

func TestCreateAccount(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	parent := accountByCode(t, st, "2000")

	acct := &ledger.Account{Code: "2010", Name: "Trade Payables", Type: ledger.AccountTypeLiability, ParentID: parent.ID, Active: true}
	require.NoError(t, st.CreateAccount(ctx, acct))
	assert.NotEmpty(t, acct.ID)

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trade Payables", got.Name)
	assert.Equal(t, parent.ID, got.ParentID)

	dup := &ledger.Account{Code: "2010", Name: "Again", Type: ledger.AccountTypeLiability, Active: true}
	assert.ErrorIs(t, st.CreateAccount(ctx, dup), ledger.ErrDuplicateAccount)

	orphan := &ledger.Account{Code: "2020", Name: "Orphan", Type: ledger.AccountTypeLiability, ParentID: "nope", Active: true}
	assert.ErrorIs(t, st.CreateAccount(ctx, orphan), ledger.ErrInvalidParent)

	_, err = st.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestDeactivateAccount(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	ap := accountByCode(t, st, "2000")

	require.NoError(t, st.DeactivateAccount(ctx, ap.ID))
	got, err := st.GetAccount(ctx, ap.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := st.ListAccounts(ctx, AccountFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, len(ledger.DefaultChart)-1)

	assert.ErrorIs(t, st.DeactivateAccount(ctx, "missing"), ledger.ErrAccountNotFound)

	// Inactive accounts cannot receive entries.
	cash := accountByCode(t, st, "1010")
	err = st.CreateTransaction(ctx, pendingTxn("TXN-I", cash.ID, ap.ID, 10))
	assert.ErrorIs(t, err, ledger.ErrInactiveAccount)

	_, err = st.writer.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, string(ap.ID))
	assert.ErrorContains(t, err, "never deleted")
}

func TestTransactionRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")
	sales := accountByCode(t, st, "4010")

	txn := pendingTxn("TXN-1", cash.ID, sales.ID, 1000)
	require.NoError(t, st.CreateTransaction(ctx, txn))
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, ledger.StatusPending, txn.Status)

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", got.Number)
	assert.Equal(t, ledger.StatusPending, got.Status)
	assert.Equal(t, txn.TransactionDate, got.TransactionDate)
	assert.Zero(t, got.ChainSeq)
	assert.Nil(t, got.PostedAt)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, 1, got.Entries[0].Sequence)
	assert.Nil(t, got.Entries[0].BalanceAfter)

	byNumber, err := st.GetTransactionByNumber(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, byNumber.ID)

	_, err = st.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestCreateTransactionIsAtomic(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")

	txn := pendingTxn("TXN-A", cash.ID, "no-such-account", 500)
	require.Error(t, st.CreateTransaction(ctx, txn))

	_, err := st.GetTransactionByNumber(ctx, "TXN-A")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestCommitPostAdvancesChain(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")
	sales := accountByCode(t, st, "4010")

	first := pendingTxn("TXN-1", cash.ID, sales.ID, 1000)
	require.NoError(t, st.CreateTransaction(ctx, first))
	post(t, st, first, "")

	got, err := st.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, got.Status)
	assert.Equal(t, int64(1), got.ChainSeq)
	assert.Empty(t, got.PreviousHash)
	require.NotNil(t, got.PostedAt)
	require.NotNil(t, got.Entries[0].BalanceAfter)
	assert.Equal(t, int64(1000), *got.Entries[0].BalanceAfter)

	seq, hash, err := st.ChainTip(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, "sealed-TXN-1", hash)

	bal, err := st.LatestBalance(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)

	// A second commit from the same stale tip loses the race.
	second := pendingTxn("TXN-2", cash.ID, sales.ID, 10)
	require.NoError(t, st.CreateTransaction(ctx, second))
	now := time.Now().UTC()
	for i := range second.Entries {
		v := int64(0)
		second.Entries[i].BalanceAfter = &v
	}
	second.ChainSeq = 1
	second.PostedAt = &now
	err = st.CommitPost(ctx, second, 0, "")
	assert.ErrorIs(t, err, ledger.ErrChainTipMoved)
	assert.ErrorIs(t, err, ledger.ErrContention)

	// Posting an already posted transaction fails on status.
	first.ChainSeq = 2
	first.PreviousHash = "sealed-TXN-1"
	err = st.CommitPost(ctx, first, 1, "")
	assert.ErrorIs(t, err, ledger.ErrNotPending)

	// The failed attempts left the tip untouched.
	seq, _, err = st.ChainTip(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestCommitPostReversesOriginal(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")
	sales := accountByCode(t, st, "4010")

	orig := pendingTxn("TXN-1", cash.ID, sales.ID, 700)
	require.NoError(t, st.CreateTransaction(ctx, orig))
	post(t, st, orig, "")

	rev := pendingTxn("TXN-R", sales.ID, cash.ID, 700)
	rev.ReferenceID = orig.ID
	require.NoError(t, st.CreateTransaction(ctx, rev))
	post(t, st, rev, orig.ID)

	got, err := st.GetTransaction(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReversed, got.Status)

	bal, err := st.LatestBalance(ctx, cash.ID)
	require.NoError(t, err)
	assert.Zero(t, bal)

	tb, err := st.TrialBalance(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.Equal(t, int64(1400), tb.TotalDebit)
	for _, l := range tb.Lines {
		assert.Zero(t, l.NetBalance)
	}
}

func TestCancelTransaction(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")
	sales := accountByCode(t, st, "4010")

	txn := pendingTxn("TXN-C", cash.ID, sales.ID, 100)
	require.NoError(t, st.CreateTransaction(ctx, txn))
	require.NoError(t, st.CancelTransaction(ctx, txn.ID, time.Now()))

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	assert.ErrorIs(t, st.CancelTransaction(ctx, txn.ID, time.Now()), ledger.ErrNotPending)
	assert.ErrorIs(t, st.CancelTransaction(ctx, "missing", time.Now()), ledger.ErrTransactionNotFound)

	cancelled, err := st.ListTransactions(ctx, TxnFilter{Status: ledger.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Len(t, cancelled[0].Entries, 2)
}

func TestTriggersProtectSealedRows(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")
	sales := accountByCode(t, st, "4010")

	txn := pendingTxn("TXN-1", cash.ID, sales.ID, 100)
	require.NoError(t, st.CreateTransaction(ctx, txn))
	post(t, st, txn, "")

	_, err := st.writer.ExecContext(ctx, `UPDATE transactions SET description = 'x' WHERE id = ?`, string(txn.ID))
	assert.ErrorContains(t, err, "sealed")

	_, err = st.writer.ExecContext(ctx, `UPDATE journal_entries SET debit_amount = 1 WHERE transaction_id = ? AND entry_sequence = 1`, string(txn.ID))
	assert.ErrorContains(t, err, "immutable")

	_, err = st.writer.ExecContext(ctx, `UPDATE transactions SET posted_at = '1999-01-01T00:00:00Z' WHERE id = ?`, string(txn.ID))
	assert.ErrorContains(t, err, "sealed")

	_, err = st.writer.ExecContext(ctx, `UPDATE transactions SET status = 'PENDING' WHERE id = ?`, string(txn.ID))
	assert.ErrorContains(t, err, "status transition")

	_, err = st.writer.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, string(txn.ID))
	assert.ErrorContains(t, err, "cannot be deleted")
}

func TestWalkChainAndFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cash := accountByCode(t, st, "1010")
	sales := accountByCode(t, st, "4010")
	rent := accountByCode(t, st, "5000")

	for i, n := range []string{"TXN-1", "TXN-2", "TXN-3"} {
		txn := pendingTxn(n, cash.ID, sales.ID, int64(100*(i+1)))
		require.NoError(t, st.CreateTransaction(ctx, txn))
		post(t, st, txn, "")
	}
	pending := pendingTxn("TXN-P", rent.ID, cash.ID, 50)
	require.NoError(t, st.CreateTransaction(ctx, pending))

	var seqs []int64
	require.NoError(t, st.WalkChain(ctx, func(txn *ledger.Transaction) error {
		seqs = append(seqs, txn.ChainSeq)
		assert.Len(t, txn.Entries, 2)
		return nil
	}))
	assert.Equal(t, []int64{1, 2, 3}, seqs)

	var entries int
	require.NoError(t, st.WalkAppliedEntries(ctx, func(ledger.JournalEntry) error {
		entries++
		return nil
	}))
	assert.Equal(t, 6, entries)

	withRent, err := st.ListTransactions(ctx, TxnFilter{AccountID: rent.ID})
	require.NoError(t, err)
	require.Len(t, withRent, 1)
	assert.Equal(t, "TXN-P", withRent[0].Number)

	posted, err := st.ListTransactions(ctx, TxnFilter{Status: ledger.StatusPosted, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, posted, 2)

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	before := day.AddDate(0, 0, -1)
	none, err := st.ListTransactions(ctx, TxnFilter{To: &before})
	require.NoError(t, err)
	assert.Empty(t, none)

	lines, err := st.AccountLedger(ctx, cash.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, int64(100), lines[0].RunningBalance)
	assert.Equal(t, int64(600), lines[2].RunningBalance)

	debits, credits, err := st.AccountTotals(ctx, cash.ID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(600), debits)
	assert.Zero(t, credits)
	debits, _, err = st.AccountTotals(ctx, cash.ID, before)
	require.NoError(t, err)
	assert.Zero(t, debits)

	tb, err := st.TrialBalance(ctx, &day, &day)
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	require.Len(t, tb.Lines, 2)
	assert.Equal(t, int64(600), tb.Lines[0].NetBalance)
	assert.Equal(t, int64(-600), tb.Lines[1].NetBalance)
}

func TestEnsureMeta(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.EnsureMeta(ctx, "hash_algorithm", "sha256")
	require.NoError(t, err)
	assert.Equal(t, "sha256", got)

	got, err = st.EnsureMeta(ctx, "hash_algorithm", "sha3-256")
	require.NoError(t, err)
	assert.Equal(t, "sha256", got)
}
