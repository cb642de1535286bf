package ledger

import "time"

// TrialBalanceLine represents a single account in the trial balance.
type TrialBalanceLine struct {
	AccountID   AccountID   `json:"account_id"`
	AccountCode string      `json:"account_code"`
	AccountName string      `json:"account_name"`
	AccountType AccountType `json:"account_type"`
	TotalDebit  int64       `json:"total_debit"`
	TotalCredit int64       `json:"total_credit"`
	NetBalance  int64       `json:"net_balance"`
}

type TrialBalance struct {
	Lines       []TrialBalanceLine `json:"lines"`
	TotalDebit  int64              `json:"total_debit"`
	TotalCredit int64              `json:"total_credit"`
	Balanced    bool               `json:"balanced"`
	From        *time.Time         `json:"from,omitempty"`
	To          *time.Time         `json:"to,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// SignedNet sums each line's balance on its normal side, counting
// debit-normal balances positive and credit-normal balances negative. A
// ledger built only from balanced postings nets to zero.
func (tb *TrialBalance) SignedNet() int64 {
	var net int64
	for _, l := range tb.Lines {
		bal := l.AccountType.Delta(l.TotalDebit, l.TotalCredit)
		if l.AccountType.NormalBalance() == SideDebit {
			net += bal
		} else {
			net -= bal
		}
	}
	return net
}

// LedgerLine is one applied entry in an account's ledger.
type LedgerLine struct {
	TransactionID   TransactionID `json:"transaction_id"`
	Number          string        `json:"transaction_number"`
	TransactionDate time.Time     `json:"transaction_date"`
	ChainSeq        int64         `json:"chain_seq"`
	Sequence        int           `json:"sequence"`
	Description     string        `json:"description,omitempty"`
	DebitAmount     int64         `json:"debit_amount"`
	CreditAmount    int64         `json:"credit_amount"`
	RunningBalance  int64         `json:"running_balance"`
}

// Consistency is the result of a ledger-wide balance check. DriftedEntries
// lists entries whose stored balance_after differs from a replay of the
// chain.
type Consistency struct {
	TotalDebit     int64     `json:"total_debit"`
	TotalCredit    int64     `json:"total_credit"`
	SignedNet      int64     `json:"signed_net"`
	EntriesChecked int64     `json:"entries_checked"`
	DriftedEntries []EntryID `json:"drifted_entries,omitempty"`
	Consistent     bool      `json:"consistent"`
}
