package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/spf13/cobra"
)

var transactionCmd = &cobra.Command{
	Use:     "transaction",
	Aliases: []string{"txn"},
	Short:   "Create, post, reverse and inspect transactions",
}

// transaction create
var (
	txnType        string
	txnDescription string
	txnCurrency    string
	txnDate        string
	txnCreatedBy   string
	txnEntries     []string // format: "account:DR|CR:amount"
	txnPost        bool
)

// entryFlag is one parsed --entry flag.
type entryFlag struct {
	Account string
	Debit   int64
	Credit  int64
}

// parseEntry parses "account:DR:12.50" into minor units of currency.
func parseEntry(s, currency string) (entryFlag, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return entryFlag{}, fmt.Errorf("invalid entry format %q, expected account:DR|CR:amount", s)
	}
	amount, err := ledger.ToMinorUnits(parts[2], currency)
	if err != nil {
		return entryFlag{}, fmt.Errorf("entry %q: %w", s, err)
	}
	if amount <= 0 {
		return entryFlag{}, fmt.Errorf("entry %q: amount must be positive", s)
	}
	ef := entryFlag{Account: parts[0]}
	switch strings.ToUpper(parts[1]) {
	case "DR", "D", "DEBIT":
		ef.Debit = amount
	case "CR", "C", "CREDIT":
		ef.Credit = amount
	default:
		return entryFlag{}, fmt.Errorf("entry %q: side must be DR or CR", s)
	}
	return ef, nil
}

var transactionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending transaction",
	Long: "Create a transaction with double-entry bookkeeping entries.\n" +
		`Each --entry is formatted as "account:DR|CR:amount" (e.g. "1010:DR:50.00").` + "\n" +
		"The account may be a code or an id. Amounts are in major units of --currency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		currency := txnCurrency
		if currency == "" {
			currency = cfg.DefaultCurrency
		}
		date, err := ledger.ParseDate(txnDate)
		if err != nil {
			return err
		}

		req := ledger.TransactionRequest{
			Type:            txnType,
			Description:     txnDescription,
			Currency:        currency,
			TransactionDate: date,
			SourceSystem:    "cli",
			CreatedBy:       txnCreatedBy,
		}
		for _, raw := range txnEntries {
			ef, err := parseEntry(raw, currency)
			if err != nil {
				return err
			}
			acct, err := c.ResolveAccount(ctx, ef.Account)
			if err != nil {
				return fmt.Errorf("entry %q: %w", raw, err)
			}
			req.TotalAmount += ef.Debit
			req.Entries = append(req.Entries, ledger.EntryRequest{
				AccountID:    acct.ID,
				DebitAmount:  ef.Debit,
				CreditAmount: ef.Credit,
			})
		}

		txn, err := c.CreateTransaction(ctx, req)
		if err != nil {
			return err
		}
		if txnPost {
			posted, err := c.PostTransaction(ctx, string(txn.ID))
			if err != nil {
				return fmt.Errorf("created %s but posting failed: %w", txn.Number, err)
			}
			txn = posted
		}

		printTransaction(ctx, c, txn)
		return nil
	},
}

// transaction list
var (
	txnListStatus  string
	txnListAccount string
	txnListFrom    string
	txnListTo      string
	txnListLimit   int
)

var transactionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		q := client.TransactionQuery{Status: strings.ToUpper(txnListStatus), Limit: txnListLimit}
		var err error
		if q.From, err = ledger.ParseDate(txnListFrom); err != nil {
			return err
		}
		if q.To, err = ledger.ParseDate(txnListTo); err != nil {
			return err
		}
		if txnListAccount != "" {
			acct, err := c.ResolveAccount(ctx, txnListAccount)
			if err != nil {
				return err
			}
			q.AccountID = string(acct.ID)
		}

		txns, err := c.ListTransactions(ctx, q)
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			fmt.Println("No transactions found.")
			return nil
		}

		fmt.Printf("%-30s %-10s %-9s %14s %-6s %s\n", "NUMBER", "DATE", "STATUS", "AMOUNT", "SEQ", "DESCRIPTION")
		fmt.Printf("%-30s %-10s %-9s %14s %-6s %s\n", "------", "----", "------", "------", "---", "-----------")
		for _, t := range txns {
			seq := "-"
			if t.ChainSeq > 0 {
				seq = fmt.Sprint(t.ChainSeq)
			}
			fmt.Printf("%-30s %-10s %-9s %14s %-6s %s\n",
				t.Number,
				t.TransactionDate.Format(ledger.DateLayout),
				t.Status,
				ledger.FormatAmount(t.TotalAmount, t.Currency),
				seq,
				truncateName(t.Description, 40),
			)
		}
		return nil
	},
}

var transactionGetCmd = &cobra.Command{
	Use:   "get [number|id]",
	Short: "Show transaction details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		txn, err := c.ResolveTransaction(ctx, args[0])
		if err != nil {
			return err
		}
		printTransaction(ctx, c, txn)
		return nil
	},
}

var transactionPostCmd = &cobra.Command{
	Use:   "post [number|id]",
	Short: "Post a pending transaction onto the hash chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		txn, err := c.ResolveTransaction(ctx, args[0])
		if err != nil {
			return err
		}
		posted, err := c.PostTransaction(ctx, string(txn.ID))
		if err != nil {
			return err
		}
		fmt.Printf("Posted %s at chain position %d\n", posted.Number, posted.ChainSeq)
		fmt.Printf("Hash: %s\n", posted.HashValue)
		return nil
	},
}

var (
	txnReverseReason string
	txnReverseBy     string
)

var transactionReverseCmd = &cobra.Command{
	Use:   "reverse [number|id]",
	Short: "Reverse a posted transaction with an offsetting transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		txn, err := c.ResolveTransaction(ctx, args[0])
		if err != nil {
			return err
		}
		rev, err := c.ReverseTransaction(ctx, string(txn.ID), txnReverseReason, txnReverseBy)
		if err != nil {
			return err
		}
		fmt.Printf("Reversed %s with %s (chain position %d)\n",
			rev.Original.Number, rev.Reversal.Number, rev.Reversal.ChainSeq)
		return nil
	},
}

var transactionCancelCmd = &cobra.Command{
	Use:   "cancel [number|id]",
	Short: "Cancel a pending transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		txn, err := c.ResolveTransaction(ctx, args[0])
		if err != nil {
			return err
		}
		cancelled, err := c.CancelTransaction(ctx, string(txn.ID))
		if err != nil {
			return err
		}
		fmt.Printf("Cancelled %s\n", cancelled.Number)
		return nil
	},
}

// printTransaction prints a transaction with its entries. Account codes are
// looked up best-effort; the id is shown when a lookup fails.
func printTransaction(ctx context.Context, c *client.Client, txn *ledger.Transaction) {
	fmt.Printf("Number:      %s\n", txn.Number)
	fmt.Printf("ID:          %s\n", txn.ID)
	fmt.Printf("Type:        %s\n", txn.Type)
	fmt.Printf("Status:      %s\n", txn.Status)
	if txn.Description != "" {
		fmt.Printf("Description: %s\n", txn.Description)
	}
	fmt.Printf("Date:        %s\n", txn.TransactionDate.Format(ledger.DateLayout))
	fmt.Printf("Amount:      %s %s\n", ledger.FormatAmount(txn.TotalAmount, txn.Currency), txn.Currency)
	if txn.ReferenceID != "" {
		fmt.Printf("Reference:   %s\n", txn.ReferenceID)
	}
	if txn.PostedAt != nil {
		fmt.Printf("Posted:      %s (seq %d)\n", txn.PostedAt.Format(time.RFC3339), txn.ChainSeq)
		fmt.Printf("Prev hash:   %s\n", orDash(txn.PreviousHash))
	}
	fmt.Printf("Hash:        %s\n", txn.HashValue)
	fmt.Printf("Entries:\n")
	fmt.Printf("  %-3s %-4s %-10s %14s %14s\n", "#", "SIDE", "ACCOUNT", "AMOUNT", "BALANCE")

	codes := map[ledger.AccountID]string{}
	for _, e := range txn.Entries {
		code, ok := codes[e.AccountID]
		if !ok {
			code = string(e.AccountID)
			if a, err := c.GetAccount(ctx, string(e.AccountID)); err == nil {
				code = a.Code
			}
			codes[e.AccountID] = code
		}
		side, amt := "DR", e.DebitAmount
		if e.CreditAmount > 0 {
			side, amt = "CR", e.CreditAmount
		}
		bal := ""
		if e.BalanceAfter != nil {
			bal = ledger.FormatAmount(*e.BalanceAfter, txn.Currency)
		}
		fmt.Printf("  %-3d %-4s %-10s %14s %14s\n", e.Sequence, side, code,
			ledger.FormatAmount(amt, txn.Currency), bal)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	transactionCreateCmd.Flags().StringVar(&txnType, "type", "JOURNAL", "Transaction type")
	transactionCreateCmd.Flags().StringVar(&txnDescription, "description", "", "Transaction description")
	transactionCreateCmd.Flags().StringVar(&txnCurrency, "currency", "", "ISO 4217 currency (defaults to LEDGER_DEFAULT_CURRENCY)")
	transactionCreateCmd.Flags().StringVar(&txnDate, "date", "", "Transaction date (YYYY-MM-DD, default today)")
	transactionCreateCmd.Flags().StringVar(&txnCreatedBy, "created-by", "", "Author recorded on the transaction")
	transactionCreateCmd.Flags().StringSliceVar(&txnEntries, "entry", nil, "Entry in format account:DR|CR:amount (can be repeated)")
	transactionCreateCmd.Flags().BoolVar(&txnPost, "post", false, "Post immediately after creating")
	_ = transactionCreateCmd.MarkFlagRequired("entry")

	transactionListCmd.Flags().StringVar(&txnListStatus, "status", "", "PENDING, POSTED, REVERSED or CANCELLED")
	transactionListCmd.Flags().StringVar(&txnListAccount, "account", "", "Only transactions touching this account (code or id)")
	transactionListCmd.Flags().StringVar(&txnListFrom, "from", "", "From transaction date (YYYY-MM-DD)")
	transactionListCmd.Flags().StringVar(&txnListTo, "to", "", "To transaction date (YYYY-MM-DD)")
	transactionListCmd.Flags().IntVar(&txnListLimit, "limit", 50, "Maximum rows")

	transactionReverseCmd.Flags().StringVar(&txnReverseReason, "reason", "", "Reason for the reversal")
	transactionReverseCmd.Flags().StringVar(&txnReverseBy, "by", "", "Who is reversing")
	_ = transactionReverseCmd.MarkFlagRequired("reason")
	_ = transactionReverseCmd.MarkFlagRequired("by")

	transactionCmd.AddCommand(transactionCreateCmd, transactionListCmd, transactionGetCmd,
		transactionPostCmd, transactionReverseCmd, transactionCancelCmd)
	rootCmd.AddCommand(transactionCmd)
}
