// Package service is the ledger orchestrator. It is the only component
// that changes transaction status or advances the hash chain.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/simonvc/chainledger/internal/balance"
	"github.com/simonvc/chainledger/internal/events"
	"github.com/simonvc/chainledger/internal/hashchain"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/simonvc/chainledger/internal/lock"
	"github.com/simonvc/chainledger/internal/observability"
	"github.com/simonvc/chainledger/internal/store"
)

// Store is the persistence the orchestrator drives. *store.Store
// satisfies it.
type Store interface {
	balance.Store
	hashchain.Source

	CreateAccount(ctx context.Context, acct *ledger.Account) error
	GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error)
	ListAccounts(ctx context.Context, filter store.AccountFilter) ([]ledger.Account, error)
	DeactivateAccount(ctx context.Context, id ledger.AccountID) error

	CreateTransaction(ctx context.Context, txn *ledger.Transaction) error
	GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error)
	GetTransactionByNumber(ctx context.Context, number string) (*ledger.Transaction, error)
	ListTransactions(ctx context.Context, filter store.TxnFilter) ([]ledger.Transaction, error)
	CommitPost(ctx context.Context, txn *ledger.Transaction, prevSeq int64, reverses ledger.TransactionID) error
	CancelTransaction(ctx context.Context, id ledger.TransactionID, at time.Time) error
	AccountLedger(ctx context.Context, id ledger.AccountID, from, to *time.Time) ([]ledger.LedgerLine, error)
}

// Deps wires a Ledger. Store and Hasher are required; the rest default to
// an in-process lock, no events, no metrics and slog.Default.
type Deps struct {
	Store           Store
	Hasher          *hashchain.Hasher
	Locker          lock.Locker
	Publisher       events.Publisher
	Metrics         *observability.Metrics
	Logger          *slog.Logger
	DefaultCurrency string
	Now             func() time.Time
}

type Ledger struct {
	store     Store
	hasher    *hashchain.Hasher
	balances  *balance.Engine
	locker    lock.Locker
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
	currency  string
	now       func() time.Time
}

func New(deps Deps) (*Ledger, error) {
	if deps.Store == nil {
		return nil, errors.New("service: store is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("service: hasher is required")
	}
	l := &Ledger{
		store:     deps.Store,
		hasher:    deps.Hasher,
		balances:  balance.New(deps.Store),
		locker:    deps.Locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		currency:  deps.DefaultCurrency,
		now:       deps.Now,
	}
	if l.locker == nil {
		l.locker = lock.NewLocal(5 * time.Second)
	}
	if l.publisher == nil {
		l.publisher = events.Nop{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.currency == "" {
		l.currency = ledger.DefaultCurrency
	}
	cur, err := ledger.NormalizeCurrency(l.currency)
	if err != nil {
		return nil, fmt.Errorf("default currency: %w", err)
	}
	l.currency = cur
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

func (l *Ledger) Hasher() *hashchain.Hasher { return l.hasher }

func (l *Ledger) DefaultCurrency() string { return l.currency }

// CreateTransaction validates req and stores it as a PENDING transaction
// together with all of its entries. Nothing is written when any check
// fails. The REVERSAL type is reserved for ReverseTransaction.
func (l *Ledger) CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error) {
	var txn *ledger.Transaction
	var err error
	if strings.EqualFold(strings.TrimSpace(req.Type), ledger.TypeReversal) {
		err = fmt.Errorf("%w: type %s is reserved for reversals", ledger.ErrInvalidRequest, ledger.TypeReversal)
	} else {
		txn, err = l.createTransaction(ctx, req)
	}
	l.metrics.ObserveOperation("create", err)
	if err != nil {
		return nil, err
	}
	l.logger.Info("transaction created",
		slog.String("txn_id", string(txn.ID)),
		slog.String("number", txn.Number),
		slog.Int64("total_amount", txn.TotalAmount),
		slog.String("currency", txn.Currency))
	l.publish(ctx, events.FromTransaction(events.TransactionCreated, txn, txn.CreatedAt))
	return txn, nil
}

func (l *Ledger) createTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error) {
	if req.Currency == "" {
		req.Currency = l.currency
	}
	cur, err := ledger.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	req.Currency = cur
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ids := make([]ledger.AccountID, len(req.Entries))
	for i, e := range req.Entries {
		ids[i] = e.AccountID
	}
	if err := l.RequireActive(ctx, ids...); err != nil {
		return nil, err
	}
	if req.ReferenceID != "" {
		if _, err := l.store.GetTransaction(ctx, req.ReferenceID); err != nil {
			if errors.Is(err, ledger.ErrTransactionNotFound) {
				return nil, fmt.Errorf("%w: reference %s does not exist", ledger.ErrInvalidRequest, req.ReferenceID)
			}
			return nil, err
		}
	}

	now := l.now().UTC()
	today := ledger.Date(now)
	txn := &ledger.Transaction{
		Number:          NewTransactionNumber(now),
		ReferenceID:     req.ReferenceID,
		Type:            req.Type,
		Description:     req.Description,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
		TransactionDate: today,
		PostingDate:     today,
		SourceSystem:    req.SourceSystem,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		Entries:         make([]ledger.JournalEntry, len(req.Entries)),
	}
	if !req.TransactionDate.IsZero() {
		txn.TransactionDate = ledger.Date(req.TransactionDate)
	}
	if !req.PostingDate.IsZero() {
		txn.PostingDate = ledger.Date(req.PostingDate)
	}
	for i, e := range req.Entries {
		txn.Entries[i] = ledger.JournalEntry{
			AccountID:    e.AccountID,
			DebitAmount:  e.DebitAmount,
			CreditAmount: e.CreditAmount,
			Description:  e.Description,
			Sequence:     i + 1,
			CreatedAt:    now,
		}
	}
	l.hasher.Seal(txn)

	if err := l.store.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// NewTransactionNumber returns a unique, time-sortable transaction number.
func NewTransactionNumber(at time.Time) string {
	return "TXN" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

// PostTransaction applies a PENDING transaction to balances and seals it
// as the new tip of the hash chain.
func (l *Ledger) PostTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	txn, err := l.postWith(ctx, id, "")
	l.metrics.ObserveOperation("post", err)
	if err != nil {
		return nil, err
	}
	l.publish(ctx, events.FromTransaction(events.TransactionPosted, txn, *txn.PostedAt))
	return txn, nil
}

// postWith posts id under the posting lock. When reverses is set the
// original is flipped to REVERSED in the same commit.
func (l *Ledger) postWith(ctx context.Context, id, reverses ledger.TransactionID) (*ledger.Transaction, error) {
	start := time.Now()
	defer func() { l.metrics.ObservePost(time.Since(start)) }()

	release, err := l.locker.Acquire(ctx)
	if err != nil {
		if ledger.Retryable(err) {
			l.logger.Warn("posting lock contended", slog.String("txn_id", string(id)), slog.Any("error", err))
		}
		return nil, err
	}
	defer release()

	txn, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txn.CanPost(); err != nil {
		return nil, err
	}
	for i := range txn.Entries {
		if want := l.hasher.EntryHash(&txn.Entries[i]); txn.Entries[i].HashValue != want {
			return nil, fmt.Errorf("%w: entry %d of %s does not match its hash", ledger.ErrIntegrityViolation, txn.Entries[i].Sequence, txn.Number)
		}
	}

	seq, tip, err := l.store.ChainTip(ctx)
	if err != nil {
		return nil, err
	}

	session := l.balances.Begin()
	if err := session.Apply(ctx, txn); err != nil {
		return nil, err
	}

	postedAt := l.now().UTC()
	txn.PreviousHash = tip
	txn.ChainSeq = seq + 1
	txn.PostedAt = &postedAt
	txn.HashValue = l.hasher.TransactionHash(txn)

	if err := l.store.CommitPost(ctx, txn, seq, reverses); err != nil {
		if ledger.Retryable(err) {
			l.logger.Warn("chain tip moved during post", slog.String("txn_id", string(id)), slog.Int64("expected_seq", seq))
		}
		return nil, err
	}
	l.metrics.SetChainLength(txn.ChainSeq)

	l.logger.Info("transaction posted",
		slog.String("txn_id", string(txn.ID)),
		slog.String("number", txn.Number),
		slog.Int64("chain_seq", txn.ChainSeq),
		slog.String("hash", txn.HashValue))
	return txn, nil
}

// Reversal pairs a reversed transaction with the transaction that
// reversed it.
type Reversal struct {
	Original *ledger.Transaction `json:"original"`
	Reversal *ledger.Transaction `json:"reversal"`
}

// ReverseTransaction negates a POSTED transaction by creating and posting
// a mirrored REVERSAL transaction. The original becomes REVERSED in the
// same commit that posts the reversal.
func (l *Ledger) ReverseTransaction(ctx context.Context, id ledger.TransactionID, reason, actor string) (*Reversal, error) {
	rev, err := l.reverseTransaction(ctx, id, reason, actor)
	l.metrics.ObserveOperation("reverse", err)
	if err != nil {
		return nil, err
	}
	at := *rev.Reversal.PostedAt
	l.publish(ctx, events.FromTransaction(events.TransactionPosted, rev.Reversal, at))
	l.publish(ctx, events.FromTransaction(events.TransactionReversed, rev.Original, at))
	return rev, nil
}

func (l *Ledger) reverseTransaction(ctx context.Context, id ledger.TransactionID, reason, actor string) (*Reversal, error) {
	orig, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := orig.CanReverse(); err != nil {
		return nil, err
	}

	pending, err := l.createTransaction(ctx, ledger.ReversalRequest(orig, reason, actor, l.now()))
	if err != nil {
		return nil, fmt.Errorf("create reversal of %s: %w", orig.Number, err)
	}

	posted, err := l.postWith(ctx, pending.ID, orig.ID)
	if err != nil {
		if cerr := l.store.CancelTransaction(ctx, pending.ID, l.now().UTC()); cerr != nil {
			l.logger.Error("cancel failed reversal",
				slog.String("txn_id", string(pending.ID)), slog.Any("error", cerr))
		}
		return nil, fmt.Errorf("post reversal of %s: %w", orig.Number, err)
	}

	orig, err = l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	l.logger.Info("transaction reversed",
		slog.String("txn_id", string(orig.ID)),
		slog.String("number", orig.Number),
		slog.String("reversal", posted.Number),
		slog.String("reason", reason))
	return &Reversal{Original: orig, Reversal: posted}, nil
}

// CancelTransaction abandons a PENDING transaction. Cancelled transactions
// never touch balances or the chain.
func (l *Ledger) CancelTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	txn, err := l.cancelTransaction(ctx, id)
	l.metrics.ObserveOperation("cancel", err)
	if err != nil {
		return nil, err
	}
	l.logger.Info("transaction cancelled", slog.String("txn_id", string(txn.ID)), slog.String("number", txn.Number))
	l.publish(ctx, events.FromTransaction(events.TransactionCancelled, txn, *txn.CancelledAt))
	return txn, nil
}

func (l *Ledger) cancelTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	txn, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txn.CanCancel(); err != nil {
		return nil, err
	}
	at := l.now().UTC()
	if err := l.store.CancelTransaction(ctx, id, at); err != nil {
		return nil, err
	}
	txn.Status = ledger.StatusCancelled
	txn.CancelledAt = &at
	return txn, nil
}

// VerifyHashChainIntegrity recomputes every sealed hash and link. A broken
// chain is reported in the returned Report, not as an error.
func (l *Ledger) VerifyHashChainIntegrity(ctx context.Context) (*hashchain.Report, error) {
	report, err := l.hasher.Verify(ctx, l.store)
	l.metrics.ObserveOperation("verify", err)
	if err != nil {
		return nil, err
	}
	l.metrics.ObserveVerification(report.Valid)
	l.metrics.SetChainLength(report.Checked)

	ev := events.Event{Type: events.ChainVerified, OccurredAt: l.now().UTC(), HashValue: report.TipHash}
	if report.Valid {
		l.logger.Info("hash chain verified", slog.Int64("checked", report.Checked), slog.String("tip", report.TipHash))
	} else {
		m := report.Mismatch
		l.logger.Error("hash chain integrity violation",
			slog.Int64("index", m.Index),
			slog.String("txn_id", string(m.TransactionID)),
			slog.String("reason", m.Reason))
		ev.Type = events.IntegrityViolation
		ev.TransactionID = m.TransactionID
		ev.Number = m.Number
		ev.ChainSeq = m.ChainSeq
		ev.Detail = m.Reason
	}
	l.publish(ctx, ev)
	return report, nil
}

// FindBrokenTransactions walks the whole chain and lists every break, where
// VerifyHashChainIntegrity stops at the first.
func (l *Ledger) FindBrokenTransactions(ctx context.Context) (*hashchain.Report, error) {
	report, err := l.hasher.FindBroken(ctx, l.store)
	l.metrics.ObserveOperation("find_broken", err)
	if err != nil {
		return nil, err
	}
	for _, m := range report.Mismatches {
		l.logger.Warn("broken chain transaction",
			slog.String("txn_id", string(m.TransactionID)),
			slog.Int64("chain_seq", m.ChainSeq),
			slog.String("reason", m.Reason))
	}
	return report, nil
}

// TransactionCheck is the result of verifying one transaction's stored
// hashes against its stored content.
type TransactionCheck struct {
	TransactionID ledger.TransactionID `json:"transaction_id"`
	Number        string               `json:"transaction_number"`
	Status        ledger.Status        `json:"status"`
	ChainSeq      int64                `json:"chain_seq,omitempty"`
	HashValue     string               `json:"hash_value"`
	Valid         bool                 `json:"valid"`
	Reason        string               `json:"reason,omitempty"`
}

// VerifyTransaction recomputes the entry and transaction hashes of a
// single transaction. It does not check the link to its predecessor.
func (l *Ledger) VerifyTransaction(ctx context.Context, id ledger.TransactionID) (*TransactionCheck, error) {
	txn, err := l.store.GetTransaction(ctx, id)
	l.metrics.ObserveOperation("verify_transaction", err)
	if err != nil {
		return nil, err
	}
	check := &TransactionCheck{
		TransactionID: txn.ID,
		Number:        txn.Number,
		Status:        txn.Status,
		ChainSeq:      txn.ChainSeq,
		HashValue:     txn.HashValue,
		Valid:         true,
	}
	if m := l.hasher.VerifyTransaction(txn); m != nil {
		check.Valid = false
		check.Reason = m.Reason
		l.logger.Error("transaction hash mismatch",
			slog.String("txn_id", string(txn.ID)),
			slog.String("reason", m.Reason))
	}
	return check, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return l.store.GetTransaction(ctx, id)
}

func (l *Ledger) GetTransactionByNumber(ctx context.Context, number string) (*ledger.Transaction, error) {
	return l.store.GetTransactionByNumber(ctx, number)
}

func (l *Ledger) ListTransactions(ctx context.Context, filter store.TxnFilter) ([]ledger.Transaction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidRequest, filter.Status)
	}
	return l.store.ListTransactions(ctx, filter)
}

// publish sends e after the change it describes has committed. Failures
// are logged; the stored transaction remains the source of truth.
func (l *Ledger) publish(ctx context.Context, e events.Event) {
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Warn("publish event",
			slog.String("type", string(e.Type)),
			slog.String("txn_id", string(e.TransactionID)),
			slog.Any("error", err))
	}
}
