package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/simonvc/chainledger/internal/store"
)

// AccountRequest is the input to CreateAccount. Parent is an account code.
type AccountRequest struct {
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Type        ledger.AccountType `json:"type"`
	ParentCode  string             `json:"parent_code,omitempty"`
	Description string             `json:"description,omitempty"`
}

func (l *Ledger) CreateAccount(ctx context.Context, req AccountRequest) (*ledger.Account, error) {
	acct := &ledger.Account{
		Code:        req.Code,
		Name:        req.Name,
		Type:        req.Type,
		Active:      true,
		Description: req.Description,
	}
	if acct.Type == "" {
		if t, ok := ledger.SuggestedType(req.Code); ok {
			acct.Type = t
		}
	}
	if req.ParentCode != "" {
		parent, err := l.store.GetAccountByCode(ctx, req.ParentCode)
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: parent %s does not exist", ledger.ErrInvalidParent, req.ParentCode)
			}
			return nil, err
		}
		acct.ParentID = parent.ID
	}
	err := l.store.CreateAccount(ctx, acct)
	l.metrics.ObserveOperation("create_account", err)
	if err != nil {
		return nil, err
	}
	l.logger.Info("account created", slog.String("account_id", string(acct.ID)), slog.String("code", acct.Code))
	return acct, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return l.store.GetAccount(ctx, id)
}

func (l *Ledger) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	return l.store.GetAccountByCode(ctx, code)
}

func (l *Ledger) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]ledger.Account, error) {
	return l.store.ListAccounts(ctx, filter)
}

// AccountTree returns every account arranged by parent.
func (l *Ledger) AccountTree(ctx context.Context) (*ledger.Chart, error) {
	accounts, err := l.store.ListAccounts(ctx, store.AccountFilter{})
	if err != nil {
		return nil, err
	}
	return ledger.NewChart(accounts)
}

// RequireActive fails with a validation error unless every id names an
// existing, active account.
func (l *Ledger) RequireActive(ctx context.Context, ids ...ledger.AccountID) error {
	seen := make(map[ledger.AccountID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		acct, err := l.store.GetAccount(ctx, id)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, id)
		}
		if err != nil {
			return err
		}
		if !acct.Active {
			return fmt.Errorf("%w: %s (%s)", ledger.ErrInactiveAccount, acct.Code, id)
		}
	}
	return nil
}

// DeactivateAccount stops an account from receiving new entries. Accounts
// holding a balance cannot be deactivated because the trial balance only
// covers active accounts.
func (l *Ledger) DeactivateAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	acct, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return acct, nil
	}
	bal, err := l.balances.CurrentBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	if bal != 0 {
		return nil, fmt.Errorf("%w: %s holds %s", ledger.ErrNonZeroBalance, acct.Code, ledger.FormatAmount(bal, l.currency))
	}
	err = l.store.DeactivateAccount(ctx, id)
	l.metrics.ObserveOperation("deactivate_account", err)
	if err != nil {
		return nil, err
	}
	acct.Active = false
	l.logger.Info("account deactivated", slog.String("account_id", string(id)), slog.String("code", acct.Code))
	return acct, nil
}

func (l *Ledger) AccountBalance(ctx context.Context, id ledger.AccountID) (int64, error) {
	return l.balances.CurrentBalance(ctx, id)
}

func (l *Ledger) AccountBalanceAsOf(ctx context.Context, id ledger.AccountID, date time.Time) (int64, error) {
	return l.balances.BalanceAsOf(ctx, id, date)
}

func (l *Ledger) TrialBalance(ctx context.Context, from, to *time.Time) (*ledger.TrialBalance, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("%w: to date precedes from date", ledger.ErrInvalidRequest)
	}
	return l.store.TrialBalance(ctx, from, to)
}

func (l *Ledger) AccountLedger(ctx context.Context, id ledger.AccountID, from, to *time.Time) ([]ledger.LedgerLine, error) {
	if _, err := l.store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return l.store.AccountLedger(ctx, id, from, to)
}

func (l *Ledger) CheckConsistency(ctx context.Context) (*ledger.Consistency, error) {
	c, err := l.balances.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Consistent {
		l.logger.Error("balance consistency check failed",
			slog.Int64("total_debit", c.TotalDebit),
			slog.Int64("total_credit", c.TotalCredit),
			slog.Int("drifted_entries", len(c.DriftedEntries)))
	}
	return c, nil
}
