package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AccountID is the opaque identifier of an account.
type AccountID string

type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

var AllAccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// Side is a debit or credit side of an entry.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalBalance returns the side that increases an account of this type.
// Assets and Expenses are debit-normal; Liabilities, Equity, and Revenue are credit-normal.
func (t AccountType) NormalBalance() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Delta returns the signed change in balance that an entry with the given
// debit and credit amounts causes on an account of this type.
func (t AccountType) Delta(debit, credit int64) int64 {
	if t.NormalBalance() == SideDebit {
		return debit - credit
	}
	return credit - debit
}

func (t AccountType) Valid() bool {
	for _, at := range AllAccountTypes {
		if at == t {
			return true
		}
	}
	return false
}

// Label returns a human-readable label.
func (t AccountType) Label() string {
	switch t {
	case AccountTypeAsset:
		return "Asset"
	case AccountTypeLiability:
		return "Liability"
	case AccountTypeEquity:
		return "Equity"
	case AccountTypeRevenue:
		return "Revenue"
	case AccountTypeExpense:
		return "Expense"
	default:
		return string(t)
	}
}

// ParseAccountType accepts the canonical upper-case names as well as
// lower-case and plural forms ("assets", "expenses").
func ParseAccountType(s string) (AccountType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, "S")
	if norm == "LIABILITIE" {
		norm = "LIABILITY"
	}
	t := AccountType(norm)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, s)
	}
	return t, nil
}

// SuggestedType derives an account type from a conventional 4-digit code
// (1xxx assets through 5xxx expenses). The second result is false for codes
// outside that scheme; such codes are still accepted when a type is given.
func SuggestedType(code string) (AccountType, bool) {
	if len(code) < 4 {
		return "", false
	}
	n, err := strconv.Atoi(code[:4])
	if err != nil {
		return "", false
	}
	switch {
	case n >= 1000 && n < 2000:
		return AccountTypeAsset, true
	case n >= 2000 && n < 3000:
		return AccountTypeLiability, true
	case n >= 3000 && n < 4000:
		return AccountTypeEquity, true
	case n >= 4000 && n < 5000:
		return AccountTypeRevenue, true
	case n >= 5000 && n < 6000:
		return AccountTypeExpense, true
	default:
		return "", false
	}
}

type Account struct {
	ID          AccountID   `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	ParentID    AccountID   `json:"parent_id,omitempty"`
	Active      bool        `json:"active"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

var codePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)

// Validate checks account invariants. A child's type is not required to
// match its parent's.
func (a *Account) Validate() error {
	if !codePattern.MatchString(a.Code) {
		return fmt.Errorf("%w: %q", ErrInvalidAccountCode, a.Code)
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyAccountName
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, a.Type)
	}
	if a.ParentID != "" && a.ParentID == a.ID {
		return fmt.Errorf("%w: account cannot be its own parent", ErrInvalidParent)
	}
	return nil
}
