package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/jobs"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/spf13/cobra"
)

var (
	verifyAsync bool
	verifyAll   bool
	verifyTxn   string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the transaction hash chain",
	Long: "Recomputes every posted transaction's hash and its link to the previous one.\n" +
		"With --all every break is listed instead of the first; --txn checks one transaction.\n" +
		"With --async the check is queued for the worker instead of run by the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if verifyAsync {
			enq := jobs.NewEnqueuer(cfg.AsynqRedis())
			defer enq.Close()

			info, err := enq.EnqueueVerifyChain(ctx, requester())
			if err != nil {
				return err
			}
			fmt.Printf("Queued %s (task %s on %s)\n", info.Type, info.ID, info.Queue)
			return nil
		}

		c := newClient()
		if verifyTxn != "" {
			return verifyOne(ctx, c, verifyTxn)
		}
		if verifyAll {
			return verifyEverything(ctx, c)
		}

		rep, err := c.VerifyChain(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Transactions checked: %d\n", rep.Checked)
		fmt.Printf("Chain tip:            %s\n", orDash(rep.TipHash))
		if err := rep.Err(); err != nil {
			m := rep.Mismatch
			fmt.Printf("\n  [BROKEN] %s at position %d (%s)\n", m.Reason, m.ChainSeq, m.Number)
			return err
		}
		fmt.Println("\n  [VALID]")
		return nil
	},
}

func verifyOne(ctx context.Context, c *client.Client, ref string) error {
	txn, err := c.ResolveTransaction(ctx, ref)
	if err != nil {
		return err
	}
	check, err := c.VerifyTransaction(ctx, string(txn.ID))
	if err != nil {
		return err
	}
	fmt.Printf("Transaction: %s (%s)\n", check.Number, check.Status)
	fmt.Printf("Hash:        %s\n", orDash(check.HashValue))
	if !check.Valid {
		fmt.Printf("\n  [BROKEN] %s\n", check.Reason)
		return fmt.Errorf("%w: %s: %s", ledger.ErrIntegrityViolation, check.Number, check.Reason)
	}
	fmt.Println("\n  [VALID]")
	return nil
}

func verifyEverything(ctx context.Context, c *client.Client) error {
	rep, err := c.FindBrokenTransactions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Transactions checked: %d\n", rep.Checked)
	if rep.Valid {
		fmt.Printf("Chain tip:            %s\n", orDash(rep.TipHash))
		fmt.Println("\n  [VALID]")
		return nil
	}

	fmt.Printf("\n%-6s %-32s %s\n", "SEQ", "NUMBER", "REASON")
	for _, m := range rep.Mismatches {
		fmt.Printf("%-6d %-32s %s\n", m.ChainSeq, orDash(m.Number), m.Reason)
	}
	return rep.Err()
}

func requester() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAsync, "async", false, "Queue verification for the background worker")
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "List every broken transaction instead of the first")
	verifyCmd.Flags().StringVar(&verifyTxn, "txn", "", "Verify a single transaction by number or id")
	rootCmd.AddCommand(verifyCmd)
}
