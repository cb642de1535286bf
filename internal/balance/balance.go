// Package balance applies journal entries to per-account running balances
// according to each account's normal-balance side.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
)

// Store is the read side the engine needs. Only applied transactions
// (POSTED or REVERSED) contribute to any of these figures.
type Store interface {
	GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error)
	// LatestBalance returns balance_after of the last applied entry for
	// the account, or 0 when it has none.
	LatestBalance(ctx context.Context, id ledger.AccountID) (int64, error)
	// AccountTotals sums debits and credits of applied entries whose
	// transaction date is on or before asOf.
	AccountTotals(ctx context.Context, id ledger.AccountID, asOf time.Time) (debits, credits int64, err error)
	TrialBalance(ctx context.Context, from, to *time.Time) (*ledger.TrialBalance, error)
	// WalkAppliedEntries streams applied entries in chain order.
	WalkAppliedEntries(ctx context.Context, fn func(ledger.JournalEntry) error) error
}

type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// Begin starts a posting session. A session must only be used while the
// posting lock is held; it caches balances so an account appearing more
// than once in a transaction accumulates correctly.
func (e *Engine) Begin() *Session {
	return &Session{
		store:    e.store,
		balances: make(map[ledger.AccountID]int64),
		types:    make(map[ledger.AccountID]ledger.AccountType),
	}
}

type Session struct {
	store    Store
	balances map[ledger.AccountID]int64
	types    map[ledger.AccountID]ledger.AccountType
}

// UpdateAccountBalance applies entry to its account's running balance,
// records the result as the entry's BalanceAfter and returns it.
func (s *Session) UpdateAccountBalance(ctx context.Context, entry *ledger.JournalEntry) (int64, error) {
	typ, err := s.accountType(ctx, entry.AccountID)
	if err != nil {
		return 0, err
	}
	current, ok := s.balances[entry.AccountID]
	if !ok {
		current, err = s.store.LatestBalance(ctx, entry.AccountID)
		if err != nil {
			return 0, fmt.Errorf("current balance of %s: %w", entry.AccountID, err)
		}
	}
	next, err := ledger.CheckedAdd(current, typ.Delta(entry.DebitAmount, entry.CreditAmount))
	if err != nil {
		return 0, fmt.Errorf("account %s: %w", entry.AccountID, err)
	}
	s.balances[entry.AccountID] = next
	entry.BalanceAfter = &next
	return next, nil
}

// Apply runs UpdateAccountBalance over every entry in sequence order.
func (s *Session) Apply(ctx context.Context, txn *ledger.Transaction) error {
	for i := range txn.Entries {
		if txn.Entries[i].Sequence != i+1 {
			return fmt.Errorf("%w: entry sequence %d at position %d", ledger.ErrInvalidState, txn.Entries[i].Sequence, i+1)
		}
		if _, err := s.UpdateAccountBalance(ctx, &txn.Entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) accountType(ctx context.Context, id ledger.AccountID) (ledger.AccountType, error) {
	if t, ok := s.types[id]; ok {
		return t, nil
	}
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return "", fmt.Errorf("account %s: %w", id, err)
	}
	s.types[id] = acct.Type
	return acct.Type, nil
}

// CurrentBalance returns the balance after the last applied entry for id.
func (e *Engine) CurrentBalance(ctx context.Context, id ledger.AccountID) (int64, error) {
	if _, err := e.store.GetAccount(ctx, id); err != nil {
		return 0, err
	}
	return e.store.LatestBalance(ctx, id)
}

// BalanceAsOf returns the balance from applied transactions dated on or
// before date.
func (e *Engine) BalanceAsOf(ctx context.Context, id ledger.AccountID, date time.Time) (int64, error) {
	acct, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	debits, credits, err := e.store.AccountTotals(ctx, id, ledger.Date(date))
	if err != nil {
		return 0, err
	}
	return acct.Type.Delta(debits, credits), nil
}

// CheckConsistency confirms the trial balance is balanced and replays every
// applied entry to confirm stored running balances.
func (e *Engine) CheckConsistency(ctx context.Context) (*ledger.Consistency, error) {
	tb, err := e.store.TrialBalance(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	c := &ledger.Consistency{
		TotalDebit:  tb.TotalDebit,
		TotalCredit: tb.TotalCredit,
		SignedNet:   tb.SignedNet(),
	}

	replay := e.Begin()
	replay.store = replayStore{Store: e.store}
	err = e.store.WalkAppliedEntries(ctx, func(entry ledger.JournalEntry) error {
		stored := entry.BalanceAfter
		want, err := replay.UpdateAccountBalance(ctx, &entry)
		if err != nil {
			return err
		}
		c.EntriesChecked++
		if stored == nil || *stored != want {
			c.DriftedEntries = append(c.DriftedEntries, entry.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay entries: %w", err)
	}

	c.Consistent = tb.Balanced && c.SignedNet == 0 && len(c.DriftedEntries) == 0
	return c, nil
}

// replayStore starts every account at zero so a replay recomputes balances
// from the first applied entry.
type replayStore struct {
	Store
}

func (replayStore) LatestBalance(context.Context, ledger.AccountID) (int64, error) {
	return 0, nil
}
