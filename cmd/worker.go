package cmd

import (
	"context"
	"errors"

	"github.com/simonvc/chainledger/internal/app"
	"github.com/simonvc/chainledger/internal/jobs"
	"github.com/spf13/cobra"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background chain verification and consistency checks",
	Long:  "Runs the asynq worker and schedules verification on LEDGER_VERIFY_CRON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := jobs.NewWorker(jobs.WorkerConfig{
			Redis:       cfg.AsynqRedis(),
			Logger:      logger,
			Checks:      jobs.NewChecksJob(a.Ledger, logger),
			VerifyCron:  cfg.VerifyCron,
			Concurrency: workerConcurrency,
		})
		if err != nil {
			return err
		}
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 2, "Concurrent tasks")
	rootCmd.AddCommand(workerCmd)
}
