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

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the chart of accounts",
}

// account create
var (
	acctCreateCode        string
	acctCreateName        string
	acctCreateType        string
	acctCreateParent      string
	acctCreateDescription string
)

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Long:  "Create an account. When --type is omitted it is inferred from the leading digit of the code.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		created, err := c.CreateAccount(context.Background(), client.AccountRequest{
			Code:        acctCreateCode,
			Name:        acctCreateName,
			Type:        acctCreateType,
			ParentCode:  acctCreateParent,
			Description: acctCreateDescription,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Account created: %s %s (%s) [%s]\n",
			created.Code, created.Name, created.Type.Label(), created.ID)
		return nil
	},
}

// account list
var (
	acctListType   string
	acctListActive bool
	acctListSearch string
)

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		accounts, err := c.ListAccounts(context.Background(), client.AccountQuery{
			Type:       strings.ToUpper(acctListType),
			ActiveOnly: acctListActive,
			Search:     acctListSearch,
		})
		if err != nil {
			return err
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}

		fmt.Printf("%-8s %-32s %-10s %-6s %s\n", "CODE", "NAME", "TYPE", "ACTIVE", "ID")
		fmt.Printf("%-8s %-32s %-10s %-6s %s\n", "----", "----", "----", "------", "--")
		for _, a := range accounts {
			fmt.Printf("%-8s %-32s %-10s %-6s %s\n", a.Code, truncateName(a.Name, 32), a.Type, yesNo(a.Active), a.ID)
		}
		return nil
	},
}

var accountGetCmd = &cobra.Command{
	Use:   "get [code|id]",
	Short: "Show account details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		a, err := c.ResolveAccount(ctx, args[0])
		if err != nil {
			return err
		}
		bal, err := c.GetAccountBalance(ctx, string(a.ID), time.Time{})
		if err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", a.ID)
		fmt.Printf("Code:        %s\n", a.Code)
		fmt.Printf("Name:        %s\n", a.Name)
		fmt.Printf("Type:        %s (normal %s)\n", a.Type.Label(), a.Type.NormalBalance())
		if a.ParentID != "" {
			fmt.Printf("Parent:      %s\n", a.ParentID)
		}
		fmt.Printf("Active:      %s\n", yesNo(a.Active))
		if a.Description != "" {
			fmt.Printf("Description: %s\n", a.Description)
		}
		fmt.Printf("Balance:     %s\n", bal.Formatted)
		fmt.Printf("Created:     %s\n", a.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

var acctBalanceAsOf string

var accountBalanceCmd = &cobra.Command{
	Use:   "balance [code|id]",
	Short: "Show an account balance, optionally as of a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		asOf, err := ledger.ParseDate(acctBalanceAsOf)
		if err != nil {
			return err
		}
		a, err := c.ResolveAccount(ctx, args[0])
		if err != nil {
			return err
		}
		bal, err := c.GetAccountBalance(ctx, string(a.ID), asOf)
		if err != nil {
			return err
		}

		if bal.AsOf != nil {
			fmt.Printf("%s %s as of %s: %s\n", a.Code, a.Name, bal.AsOf.Format(ledger.DateLayout), bal.Formatted)
		} else {
			fmt.Printf("%s %s: %s\n", a.Code, a.Name, bal.Formatted)
		}
		return nil
	},
}

var accountLedgerCmd = &cobra.Command{
	Use:   "ledger [code|id]",
	Short: "List an account's posted entries with running balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		a, err := c.ResolveAccount(ctx, args[0])
		if err != nil {
			return err
		}
		lines, err := c.AccountLedger(ctx, string(a.ID))
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n\n", a.Code, a.Name)
		if len(lines) == 0 {
			fmt.Println("No posted entries.")
			return nil
		}

		cur := cfg.DefaultCurrency
		fmt.Printf("%6s  %-10s  %-30s %14s %14s %14s\n", "SEQ", "DATE", "TRANSACTION", "DEBIT", "CREDIT", "BALANCE")
		for _, l := range lines {
			fmt.Printf("%6d  %-10s  %-30s %14s %14s %14s\n",
				l.ChainSeq, l.TransactionDate.Format(ledger.DateLayout), l.Number,
				formatOptional(l.DebitAmount, cur), formatOptional(l.CreditAmount, cur),
				ledger.FormatAmount(l.RunningBalance, cur))
		}
		return nil
	},
}

var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate [code|id]",
	Short: "Deactivate an account with a zero balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		a, err := c.ResolveAccount(ctx, args[0])
		if err != nil {
			return err
		}
		if _, err := c.DeactivateAccount(ctx, string(a.ID)); err != nil {
			return err
		}
		fmt.Printf("Account %s deactivated\n", a.Code)
		return nil
	},
}

var accountTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the chart of accounts as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := newClient().GetChart(context.Background())
		if err != nil {
			return err
		}
		for _, n := range nodes {
			printChartNode(n, 0)
		}
		return nil
	},
}

func printChartNode(n client.ChartNode, depth int) {
	marker := ""
	if !n.Active {
		marker = " (inactive)"
	}
	fmt.Printf("%s%s  %s%s\n", strings.Repeat("  ", depth), n.Code, n.Name, marker)
	for _, child := range n.Children {
		printChartNode(child, depth+1)
	}
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-2] + ".."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatOptional(amount int64, currency string) string {
	if amount == 0 {
		return ""
	}
	return ledger.FormatAmount(amount, currency)
}

func init() {
	accountCreateCmd.Flags().StringVar(&acctCreateCode, "code", "", "Account code, e.g. 1010")
	accountCreateCmd.Flags().StringVar(&acctCreateName, "name", "", "Account name")
	accountCreateCmd.Flags().StringVar(&acctCreateType, "type", "", "ASSET, LIABILITY, EQUITY, REVENUE or EXPENSE")
	accountCreateCmd.Flags().StringVar(&acctCreateParent, "parent", "", "Parent account code")
	accountCreateCmd.Flags().StringVar(&acctCreateDescription, "description", "", "Description")
	_ = accountCreateCmd.MarkFlagRequired("code")
	_ = accountCreateCmd.MarkFlagRequired("name")

	accountListCmd.Flags().StringVar(&acctListType, "type", "", "Filter by account type")
	accountListCmd.Flags().BoolVar(&acctListActive, "active", false, "Only active accounts")
	accountListCmd.Flags().StringVar(&acctListSearch, "search", "", "Filter by name")

	accountBalanceCmd.Flags().StringVar(&acctBalanceAsOf, "as-of", "", "Balance as of date (YYYY-MM-DD)")

	accountCmd.AddCommand(accountCreateCmd, accountListCmd, accountGetCmd, accountBalanceCmd,
		accountLedgerCmd, accountDeactivateCmd, accountTreeCmd)
	rootCmd.AddCommand(accountCmd)
}
