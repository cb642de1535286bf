package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/spf13/cobra"
)

var (
	tbFrom string
	tbTo   string
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Ledger-wide balance reports",
}

var trialBalanceCmd = &cobra.Command{
	Use:   "trial",
	Short: "Show the trial balance, optionally bounded by transaction date",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := ledger.ParseDate(tbFrom)
		if err != nil {
			return err
		}
		to, err := ledger.ParseDate(tbTo)
		if err != nil {
			return err
		}

		tb, err := newClient().TrialBalance(context.Background(), from, to)
		if err != nil {
			return err
		}

		printTrialBalance(tb, cfg.DefaultCurrency)
		return nil
	},
}

var consistencyCmd = &cobra.Command{
	Use:   "consistency",
	Short: "Check that debits equal credits and stored balances match a replay",
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := newClient().Consistency(context.Background())
		if err != nil {
			return err
		}

		cur := cfg.DefaultCurrency
		fmt.Printf("Total debits:    %s\n", ledger.FormatAmount(rep.TotalDebit, cur))
		fmt.Printf("Total credits:   %s\n", ledger.FormatAmount(rep.TotalCredit, cur))
		fmt.Printf("Signed net:      %s\n", formatSigned(rep.SignedNet, cur))
		fmt.Printf("Entries checked: %d\n", rep.EntriesChecked)
		for _, id := range rep.DriftedEntries {
			fmt.Printf("  drifted entry: %s\n", id)
		}
		if !rep.Consistent {
			return fmt.Errorf("%w: ledger is inconsistent", ledger.ErrIntegrityViolation)
		}
		fmt.Println("\n  [CONSISTENT]")
		return nil
	},
}

func printTrialBalance(tb *ledger.TrialBalance, currency string) {
	w := 76
	fmt.Println()
	fmt.Println(center("TRIAL BALANCE", w))
	fmt.Println(center(strings.Repeat("=", 20), w))
	if tb.From != nil || tb.To != nil {
		from, to := "beginning", "today"
		if tb.From != nil {
			from = tb.From.Format(ledger.DateLayout)
		}
		if tb.To != nil {
			to = tb.To.Format(ledger.DateLayout)
		}
		fmt.Println(center(from+" to "+to, w))
	}
	fmt.Println()

	fmt.Printf("  %-8s %-34s %15s %15s\n", "CODE", "NAME", "DEBIT", "CREDIT")
	fmt.Printf("  %-8s %-34s %15s %15s\n", "----", "----", "-----", "------")

	for _, l := range tb.Lines {
		fmt.Printf("  %-8s %-34s %15s %15s\n", l.AccountCode, truncateName(l.AccountName, 34),
			formatOptional(l.TotalDebit, currency), formatOptional(l.TotalCredit, currency))
	}

	fmt.Printf("  %s\n", strings.Repeat("─", w-4))
	fmt.Printf("  %-43s %15s %15s\n", "TOTALS",
		ledger.FormatAmount(tb.TotalDebit, currency),
		ledger.FormatAmount(tb.TotalCredit, currency))

	if tb.Balanced {
		fmt.Println("\n  [BALANCED]")
	} else {
		fmt.Println("\n  [UNBALANCED!]")
	}
}

func center(s string, w int) string {
	if len(s) >= w {
		return s
	}
	pad := (w - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func formatSigned(amount int64, currency string) string {
	if amount < 0 {
		return "(" + ledger.FormatAmount(-amount, currency) + ")"
	}
	return ledger.FormatAmount(amount, currency)
}

func init() {
	trialBalanceCmd.Flags().StringVar(&tbFrom, "from", "", "From transaction date (YYYY-MM-DD)")
	trialBalanceCmd.Flags().StringVar(&tbTo, "to", "", "To transaction date (YYYY-MM-DD)")

	balanceCmd.AddCommand(trialBalanceCmd, consistencyCmd)
	rootCmd.AddCommand(balanceCmd)
}
