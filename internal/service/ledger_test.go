package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/simonvc/chainledger/internal/events"
	"github.com/simonvc/chainledger/internal/hashchain"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/simonvc/chainledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	ledger  *Ledger
	store   *store.Store
	path    string
	events  *recorder
	cash    ledger.AccountID
	revenue ledger.AccountID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hasher, err := hashchain.New(hashchain.SHA256)
	require.NoError(t, err)

	rec := &recorder{}
	l, err := New(Deps{
		Store:     st,
		Hasher:    hasher,
		Publisher: rec,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx := context.Background()
	cash, err := st.GetAccountByCode(ctx, "1010")
	require.NoError(t, err)
	revenue, err := st.GetAccountByCode(ctx, "4000")
	require.NoError(t, err)

	return &fixture{ledger: l, store: st, path: path, events: rec, cash: cash.ID, revenue: revenue.ID}
}

func (f *fixture) sale(amount int64) ledger.TransactionRequest {
	return ledger.TransactionRequest{
		Type:        "PAYMENT",
		Description: "cash sale",
		TotalAmount: amount,
		Entries: []ledger.EntryRequest{
			{AccountID: f.cash, DebitAmount: amount, Description: "cash in"},
			{AccountID: f.revenue, CreditAmount: amount, Description: "sales"},
		},
	}
}

func (f *fixture) balances(t *testing.T) (cash, revenue int64) {
	t.Helper()
	ctx := context.Background()
	cash, err := f.ledger.AccountBalance(ctx, f.cash)
	require.NoError(t, err)
	revenue, err = f.ledger.AccountBalance(ctx, f.revenue)
	require.NoError(t, err)
	return cash, revenue
}

func TestCreatePostReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ledger.CreateTransaction(ctx, f.sale(1000))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, first.Status)
	assert.Equal(t, "INR", first.Currency)
	assert.Regexp(t, `^TXN[0-9A-Z]{26}$`, first.Number)
	assert.Equal(t, ledger.Date(time.Now()), first.TransactionDate)

	first, err = f.ledger.PostTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, first.Status)
	assert.Empty(t, first.PreviousHash)
	assert.EqualValues(t, 1, first.ChainSeq)

	cash, revenue := f.balances(t)
	assert.EqualValues(t, 1000, cash)
	assert.EqualValues(t, 1000, revenue)

	second, err := f.ledger.CreateTransaction(ctx, f.sale(250))
	require.NoError(t, err)
	second, err = f.ledger.PostTransaction(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.HashValue, second.PreviousHash)

	cash, revenue = f.balances(t)
	assert.EqualValues(t, 1250, cash)
	assert.EqualValues(t, 1250, revenue)

	rev, err := f.ledger.ReverseTransaction(ctx, second.ID, "customer refund", "alice")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReversed, rev.Original.Status)
	assert.Equal(t, ledger.StatusPosted, rev.Reversal.Status)
	assert.Equal(t, ledger.TypeReversal, rev.Reversal.Type)
	assert.Equal(t, second.ID, rev.Reversal.ReferenceID)
	assert.Equal(t, "Reversal of "+second.Number+" - customer refund", rev.Reversal.Description)
	assert.Equal(t, second.HashValue, rev.Reversal.PreviousHash)
	require.Len(t, rev.Reversal.Entries, 2)
	assert.EqualValues(t, 250, rev.Reversal.Entries[0].CreditAmount)
	assert.EqualValues(t, 250, rev.Reversal.Entries[1].DebitAmount)

	cash, revenue = f.balances(t)
	assert.EqualValues(t, 1000, cash)
	assert.EqualValues(t, 1000, revenue)

	report, err := f.ledger.VerifyHashChainIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.EqualValues(t, 3, report.Checked)
	assert.Equal(t, rev.Reversal.HashValue, report.TipHash)

	assert.Equal(t, []events.Type{
		events.TransactionCreated, events.TransactionPosted,
		events.TransactionCreated, events.TransactionPosted,
		events.TransactionPosted, events.TransactionReversed,
		events.ChainVerified,
	}, f.events.types())
}

func TestCreateRejectsUnbalanced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.sale(1000)
	req.Entries[1].CreditAmount = 900
	_, err := f.ledger.CreateTransaction(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.ErrorIs(t, err, ledger.ErrUnbalanced)

	txns, err := f.ledger.ListTransactions(ctx, store.TxnFilter{})
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Empty(t, f.events.types())
}

func TestCreateRejectsBadAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.sale(10)
	req.Entries[0].AccountID = "missing"
	_, err := f.ledger.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	idle, err := f.ledger.CreateAccount(ctx, AccountRequest{Code: "1999", Name: "Idle"})
	require.NoError(t, err)
	_, err = f.ledger.DeactivateAccount(ctx, idle.ID)
	require.NoError(t, err)

	req = f.sale(10)
	req.Entries[0].AccountID = idle.ID
	_, err = f.ledger.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrInactiveAccount)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	req = f.sale(10)
	req.Currency = "ZZZ"
	_, err = f.ledger.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrency)
}

func TestPostTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)
	_, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)

	_, err = f.ledger.PostTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
	assert.ErrorIs(t, err, ledger.ErrNotPending)

	_, err = f.ledger.PostTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestConcurrentPostOfSameTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(500))
	require.NoError(t, err)

	const attempts = 8
	results := make([]error, attempts)
	var g errgroup.Group
	for i := range attempts {
		g.Go(func() error {
			_, results[i] = f.ledger.PostTransaction(ctx, txn.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ledger.ErrInvalidState) || errors.Is(err, ledger.ErrContention), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	cash, _ := f.balances(t)
	assert.EqualValues(t, 500, cash)
}

func TestConcurrentPostsFormOneChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	ids := make([]ledger.TransactionID, n)
	for i := range ids {
		txn, err := f.ledger.CreateTransaction(ctx, f.sale(int64(i+1)))
		require.NoError(t, err)
		ids[i] = txn.ID
	}

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			_, err := f.ledger.PostTransaction(ctx, id)
			return err
		})
	}
	require.NoError(t, g.Wait())

	report, err := f.ledger.VerifyHashChainIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.EqualValues(t, n, report.Checked)

	cash, revenue := f.balances(t)
	assert.EqualValues(t, 55, cash)
	assert.EqualValues(t, 55, revenue)
}

func TestReverseRequiresPosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)
	_, err = f.ledger.ReverseTransaction(ctx, txn.ID, "oops", "bob")
	assert.ErrorIs(t, err, ledger.ErrNotPosted)

	_, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)
	_, err = f.ledger.ReverseTransaction(ctx, txn.ID, "oops", "bob")
	require.NoError(t, err)

	_, err = f.ledger.ReverseTransaction(ctx, txn.ID, "again", "bob")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	reversals, err := f.ledger.ListTransactions(ctx, store.TxnFilter{Status: ledger.StatusPosted})
	require.NoError(t, err)
	assert.Len(t, reversals, 1)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)

	cancelled, err := f.ledger.CancelTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.ledger.PostTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, ledger.ErrNotPending)
	_, err = f.ledger.CancelTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	cash, _ := f.balances(t)
	assert.Zero(t, cash)

	report, err := f.ledger.VerifyHashChainIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Zero(t, report.Checked)
}

func TestTrialBalanceNetsToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expenses, err := f.ledger.GetAccountByCode(ctx, "5000")
	require.NoError(t, err)

	for _, amount := range []int64{1000, 400} {
		txn, err := f.ledger.CreateTransaction(ctx, f.sale(amount))
		require.NoError(t, err)
		_, err = f.ledger.PostTransaction(ctx, txn.ID)
		require.NoError(t, err)
	}
	spend, err := f.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		Type:        "EXPENSE",
		TotalAmount: 300,
		Entries: []ledger.EntryRequest{
			{AccountID: expenses.ID, DebitAmount: 300},
			{AccountID: f.cash, CreditAmount: 300},
		},
	})
	require.NoError(t, err)
	_, err = f.ledger.PostTransaction(ctx, spend.ID)
	require.NoError(t, err)

	pending, err := f.ledger.CreateTransaction(ctx, f.sale(9999))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, pending.Status)

	tb, err := f.ledger.TrialBalance(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.EqualValues(t, 1700, tb.TotalDebit)
	assert.Zero(t, tb.SignedNet())

	cash, _ := f.balances(t)
	assert.EqualValues(t, 1100, cash)

	c, err := f.ledger.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, c.Consistent)
	assert.EqualValues(t, 6, c.EntriesChecked)

	lines, err := f.ledger.AccountLedger(ctx, f.cash, nil, nil)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.EqualValues(t, []int64{1000, 1400, 1100}, []int64{lines[0].RunningBalance, lines[1].RunningBalance, lines[2].RunningBalance})
}

func TestBalanceAsOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, d := range []time.Time{jan, mar} {
		req := f.sale(100)
		req.TransactionDate = d
		txn, err := f.ledger.CreateTransaction(ctx, req)
		require.NoError(t, err)
		_, err = f.ledger.PostTransaction(ctx, txn.ID)
		require.NoError(t, err)
	}

	bal, err := f.ledger.AccountBalanceAsOf(ctx, f.revenue, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)

	bal, err = f.ledger.AccountBalanceAsOf(ctx, f.revenue, mar)
	require.NoError(t, err)
	assert.EqualValues(t, 200, bal)

	_, err = f.ledger.TrialBalance(ctx, &mar, &jan)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestDeactivateRequiresZeroBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)
	_, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)

	_, err = f.ledger.DeactivateAccount(ctx, f.cash)
	assert.ErrorIs(t, err, ledger.ErrNonZeroBalance)

	acct, err := f.ledger.GetAccount(ctx, f.cash)
	require.NoError(t, err)
	assert.True(t, acct.Active)
}

func TestCreateAccountAndTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.ledger.CreateAccount(ctx, AccountRequest{Code: "1030", Name: "Petty Cash", ParentCode: "1000"})
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountTypeAsset, acct.Type)

	_, err = f.ledger.CreateAccount(ctx, AccountRequest{Code: "1030", Name: "Dup"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateAccount)

	_, err = f.ledger.CreateAccount(ctx, AccountRequest{Code: "9000", Name: "Nowhere", Type: ledger.AccountTypeAsset, ParentCode: "8888"})
	assert.ErrorIs(t, err, ledger.ErrInvalidParent)

	chart, err := f.ledger.AccountTree(ctx)
	require.NoError(t, err)
	parent, ok := chart.ByCode("1000")
	require.True(t, ok)
	var codes []string
	for _, c := range chart.Children(parent.ID) {
		codes = append(codes, c.Code)
	}
	assert.Contains(t, codes, "1030")
}

func TestVerifyDetectsTampering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var posted []*ledger.Transaction
	for _, amount := range []int64{100, 200, 300} {
		txn, err := f.ledger.CreateTransaction(ctx, f.sale(amount))
		require.NoError(t, err)
		txn, err = f.ledger.PostTransaction(ctx, txn.ID)
		require.NoError(t, err)
		posted = append(posted, txn)
	}

	db, err := sql.Open("sqlite", f.path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`DROP TRIGGER trg_sealed_immutable`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE transactions SET description = 'rewritten' WHERE id = ?`, string(posted[1].ID))
	require.NoError(t, err)

	report, err := f.ledger.VerifyHashChainIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.Mismatch)
	assert.Equal(t, posted[1].ID, report.Mismatch.TransactionID)
	assert.Equal(t, hashchain.ReasonTransactionHash, report.Mismatch.Reason)
	assert.ErrorIs(t, report.Err(), ledger.ErrIntegrityViolation)

	assert.Contains(t, f.events.types(), events.IntegrityViolation)
}

func TestReverseLongDescriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.sale(700)
	req.Description = strings.Repeat("d", ledger.MaxDescriptionLen)
	req.Entries[0].Description = strings.Repeat("e", 490)
	txn, err := f.ledger.CreateTransaction(ctx, req)
	require.NoError(t, err)
	_, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)

	rev, err := f.ledger.ReverseTransaction(ctx, txn.ID, strings.Repeat("r", 300), "bob")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReversed, rev.Original.Status)
	assert.Len(t, rev.Reversal.Description, ledger.MaxDescriptionLen)
	assert.Len(t, rev.Reversal.Entries[0].Description, ledger.MaxDescriptionLen)
	assert.True(t, strings.HasPrefix(rev.Reversal.Entries[0].Description, "Reversal of entry: eee"))

	cash, revenue := f.balances(t)
	assert.Zero(t, cash)
	assert.Zero(t, revenue)
}

func TestCreateRejectsReversalType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.sale(100)
	req.Type = "reversal"
	_, err := f.ledger.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestVerifyDetectsOutOfBandReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)
	txn, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", f.path)
	require.NoError(t, err)
	defer db.Close()

	// posted_at is sealed with the transaction.
	_, err = db.Exec(`UPDATE transactions SET posted_at = '1999-01-01T00:00:00Z' WHERE id = ?`, string(txn.ID))
	assert.ErrorContains(t, err, "sealed")

	// POSTED -> REVERSED passes the status trigger, but no reversal exists.
	_, err = db.Exec(`UPDATE transactions SET status = 'REVERSED' WHERE id = ?`, string(txn.ID))
	require.NoError(t, err)

	report, err := f.ledger.VerifyHashChainIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.Mismatch)
	assert.Equal(t, txn.ID, report.Mismatch.TransactionID)
	assert.Equal(t, hashchain.ReasonMissingReversal, report.Mismatch.Reason)
}

func TestVerifyDetectsPostedAtRewrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)
	txn, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", f.path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`DROP TRIGGER trg_sealed_immutable`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE transactions SET posted_at = '1999-01-01T00:00:00Z' WHERE id = ?`, string(txn.ID))
	require.NoError(t, err)

	report, err := f.ledger.VerifyHashChainIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, hashchain.ReasonTransactionHash, report.Mismatch.Reason)

	check, err := f.ledger.VerifyTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, hashchain.ReasonTransactionHash, check.Reason)
}

func TestFindBrokenTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var posted []*ledger.Transaction
	for _, amount := range []int64{100, 200, 300, 400} {
		txn, err := f.ledger.CreateTransaction(ctx, f.sale(amount))
		require.NoError(t, err)
		txn, err = f.ledger.PostTransaction(ctx, txn.ID)
		require.NoError(t, err)
		posted = append(posted, txn)
	}
	pending, err := f.ledger.CreateTransaction(ctx, f.sale(50))
	require.NoError(t, err)

	report, err := f.ledger.FindBrokenTransactions(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.EqualValues(t, 4, report.Checked)

	check, err := f.ledger.VerifyTransaction(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.Equal(t, ledger.StatusPending, check.Status)

	db, err := sql.Open("sqlite", f.path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`DROP TRIGGER trg_sealed_immutable`)
	require.NoError(t, err)
	for _, i := range []int{1, 3} {
		_, err = db.Exec(`UPDATE transactions SET description = 'rewritten' WHERE id = ?`, string(posted[i].ID))
		require.NoError(t, err)
	}

	report, err = f.ledger.FindBrokenTransactions(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.EqualValues(t, 4, report.Checked)
	require.Len(t, report.Mismatches, 2)
	assert.Equal(t, posted[1].ID, report.Mismatches[0].TransactionID)
	assert.Equal(t, posted[3].ID, report.Mismatches[1].TransactionID)

	check, err = f.ledger.VerifyTransaction(ctx, posted[0].ID)
	require.NoError(t, err)
	assert.True(t, check.Valid)
	check, err = f.ledger.VerifyTransaction(ctx, posted[3].ID)
	require.NoError(t, err)
	assert.False(t, check.Valid)

	_, err = f.ledger.VerifyTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestPublishFailureDoesNotFailPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events.err = errors.New("broker down")

	txn, err := f.ledger.CreateTransaction(ctx, f.sale(100))
	require.NoError(t, err)
	txn, err = f.ledger.PostTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, txn.Status)
}
