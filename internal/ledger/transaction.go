package ledger

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

type TransactionID string

type EntryID string

// DateLayout is the canonical layout for transaction and posting dates.
const DateLayout = "2006-01-02"

// TypeReversal tags transactions created by a reversal.
const TypeReversal = "REVERSAL"

// MaxDescriptionLen bounds transaction and entry descriptions, in runes.
// It must agree with the max=500 validate tags below.
const MaxDescriptionLen = 500

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPosted    Status = "POSTED"
	StatusReversed  Status = "REVERSED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPosted, StatusReversed, StatusCancelled:
		return true
	}
	return false
}

// Applied reports whether a transaction in this status has had its entries
// applied to balances and sealed into the chain. A reversed transaction
// stays applied; its reversal is a separate applied transaction.
func (s Status) Applied() bool {
	return s == StatusPosted || s == StatusReversed
}

type JournalEntry struct {
	ID            EntryID       `json:"id"`
	TransactionID TransactionID `json:"transaction_id"`
	AccountID     AccountID     `json:"account_id"`
	DebitAmount   int64         `json:"debit_amount"`
	CreditAmount  int64         `json:"credit_amount"`
	BalanceAfter  *int64        `json:"balance_after,omitempty"`
	Description   string        `json:"description,omitempty"`
	Sequence      int           `json:"sequence"`
	HashValue     string        `json:"hash_value"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Transaction is always loaded together with its full ordered entry list.
type Transaction struct {
	ID              TransactionID  `json:"id"`
	Number          string         `json:"transaction_number"`
	ReferenceID     TransactionID  `json:"reference_id,omitempty"`
	Type            string         `json:"type"`
	Description     string         `json:"description"`
	TotalAmount     int64          `json:"total_amount"`
	Currency        string         `json:"currency"`
	TransactionDate time.Time      `json:"transaction_date"`
	PostingDate     time.Time      `json:"posting_date"`
	Status          Status         `json:"status"`
	SourceSystem    string         `json:"source_system,omitempty"`
	CreatedBy       string         `json:"created_by,omitempty"`
	HashValue       string         `json:"hash_value"`
	PreviousHash    string         `json:"previous_hash"`
	ChainSeq        int64          `json:"chain_seq,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	PostedAt        *time.Time     `json:"posted_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	Entries         []JournalEntry `json:"entries"`
}

// Totals sums debit and credit amounts across all entries.
func (t *Transaction) Totals() (debits, credits int64, err error) {
	for _, e := range t.Entries {
		if debits, err = CheckedAdd(debits, e.DebitAmount); err != nil {
			return 0, 0, err
		}
		if credits, err = CheckedAdd(credits, e.CreditAmount); err != nil {
			return 0, 0, err
		}
	}
	return debits, credits, nil
}

// Balanced reports whether debits, credits and the declared total agree.
func (t *Transaction) Balanced() bool {
	if len(t.Entries) < 2 {
		return false
	}
	debits, credits, err := t.Totals()
	return err == nil && debits == credits && debits == t.TotalAmount
}

// CanPost checks the preconditions for posting.
func (t *Transaction) CanPost() error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, t.Number, t.Status)
	}
	if !t.Balanced() {
		return fmt.Errorf("%w: %s", ErrNotBalanced, t.Number)
	}
	return nil
}

func (t *Transaction) CanReverse() error {
	if t.Status != StatusPosted {
		return fmt.Errorf("%w: %s is %s", ErrNotPosted, t.Number, t.Status)
	}
	return nil
}

func (t *Transaction) CanCancel() error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, t.Number, t.Status)
	}
	return nil
}

type EntryRequest struct {
	AccountID    AccountID `json:"account_id" validate:"required,max=64"`
	DebitAmount  int64     `json:"debit_amount"`
	CreditAmount int64     `json:"credit_amount"`
	Description  string    `json:"description" validate:"max=500"`
}

// TransactionRequest is the input to CreateTransaction. Zero dates default
// to today and an empty currency to the ledger's default currency.
type TransactionRequest struct {
	Type            string         `json:"type" validate:"required,max=50"`
	Description     string         `json:"description" validate:"max=500"`
	TotalAmount     int64          `json:"total_amount"`
	Currency        string         `json:"currency" validate:"omitempty,len=3,alpha"`
	TransactionDate time.Time      `json:"transaction_date"`
	PostingDate     time.Time      `json:"posting_date"`
	SourceSystem    string         `json:"source_system" validate:"max=50"`
	CreatedBy       string         `json:"created_by" validate:"max=100"`
	ReferenceID     TransactionID  `json:"reference_id,omitempty" validate:"max=64"`
	Entries         []EntryRequest `json:"entries" validate:"dive"`
}

var validate = validator.New()

// Validate checks the double-entry invariants of a request: at least two
// entries, exactly one positive side per entry, and
// sum(debits) == sum(credits) == TotalAmount.
func (r *TransactionRequest) Validate() error {
	if len(r.Entries) < 2 {
		return ErrTooFewEntries
	}
	if r.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount %d", ErrNegativeAmount, r.TotalAmount)
	}

	var debits, credits int64
	var err error
	for i, e := range r.Entries {
		switch {
		case e.DebitAmount < 0 || e.CreditAmount < 0:
			return fmt.Errorf("%w: entry %d", ErrNegativeAmount, i+1)
		case e.DebitAmount > 0 && e.CreditAmount > 0:
			return fmt.Errorf("%w: entry %d", ErrBothSides, i+1)
		case e.DebitAmount == 0 && e.CreditAmount == 0:
			return fmt.Errorf("%w: entry %d", ErrNeitherSide, i+1)
		}
		if debits, err = CheckedAdd(debits, e.DebitAmount); err != nil {
			return err
		}
		if credits, err = CheckedAdd(credits, e.CreditAmount); err != nil {
			return err
		}
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d, credits %d", ErrUnbalanced, debits, credits)
	}
	if debits != r.TotalAmount {
		return fmt.Errorf("%w: entries total %d, declared %d", ErrTotalMismatch, debits, r.TotalAmount)
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidRequest, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Date truncates t to a UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a DateLayout string; an empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRequest, s)
	}
	return t, nil
}

// ReversalRequest builds the mirrored request that negates a posted
// transaction: every entry keeps its account but swaps debit and credit.
func ReversalRequest(orig *Transaction, reason, actor string, today time.Time) TransactionRequest {
	req := TransactionRequest{
		Type:            TypeReversal,
		Description:     clip(fmt.Sprintf("Reversal of %s - %s", orig.Number, reason), MaxDescriptionLen),
		TotalAmount:     orig.TotalAmount,
		Currency:        orig.Currency,
		TransactionDate: Date(today),
		PostingDate:     Date(today),
		SourceSystem:    orig.SourceSystem,
		CreatedBy:       actor,
		ReferenceID:     orig.ID,
		Entries:         make([]EntryRequest, len(orig.Entries)),
	}
	for i, e := range orig.Entries {
		req.Entries[i] = EntryRequest{
			AccountID:    e.AccountID,
			DebitAmount:  e.CreditAmount,
			CreditAmount: e.DebitAmount,
			Description:  clip("Reversal of entry: "+e.Description, MaxDescriptionLen),
		}
	}
	return req
}

// clip shortens s to at most n runes. Derived descriptions are clipped
// so that any posted transaction stays reversible.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
