package ledger

import "errors"

// Error kinds. Every error returned by the ledger core wraps exactly one of
// these, so callers can classify with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidState       = errors.New("invalid state")
	ErrContention         = errors.New("contention")
	ErrIntegrityViolation = errors.New("integrity violation")
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// Validation errors.
var (
	ErrInvalidRequest     = newError(ErrValidation, "invalid request")
	ErrTooFewEntries      = newError(ErrValidation, "transaction must have at least 2 entries")
	ErrUnbalanced         = newError(ErrValidation, "transaction entries do not balance")
	ErrTotalMismatch      = newError(ErrValidation, "entry totals do not match declared total amount")
	ErrNegativeAmount     = newError(ErrValidation, "amounts must not be negative")
	ErrBothSides          = newError(ErrValidation, "entry cannot have both debit and credit amounts")
	ErrNeitherSide        = newError(ErrValidation, "entry must have a debit or a credit amount")
	ErrAmountOverflow     = newError(ErrValidation, "amount overflows int64 minor units")
	ErrUnknownAccount     = newError(ErrValidation, "account does not exist")
	ErrInactiveAccount    = newError(ErrValidation, "account is inactive")
	ErrInvalidAccountCode = newError(ErrValidation, "invalid account code")
	ErrInvalidAccountType = newError(ErrValidation, "invalid account type")
	ErrEmptyAccountName   = newError(ErrValidation, "account name is required")
	ErrDuplicateAccount   = newError(ErrValidation, "account code already exists")
	ErrInvalidParent      = newError(ErrValidation, "invalid parent account")
	ErrInvalidCurrency    = newError(ErrValidation, "invalid or unsupported currency code")
	ErrInvalidAmount      = newError(ErrValidation, "invalid amount")
	ErrNonZeroBalance     = newError(ErrValidation, "account has a non-zero balance")
)

// Lifecycle errors.
var (
	ErrNotPending  = newError(ErrInvalidState, "transaction is not pending")
	ErrNotPosted   = newError(ErrInvalidState, "transaction is not posted")
	ErrNotBalanced = newError(ErrInvalidState, "transaction is not balanced")
)

// Contention errors are safe to retry.
var (
	ErrLockTimeout   = newError(ErrContention, "posting lock not acquired")
	ErrChainTipMoved = newError(ErrContention, "chain tip changed concurrently")
)

// Retryable reports whether err is a contention error.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention)
}
