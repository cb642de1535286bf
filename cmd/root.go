package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/simonvc/chainledger/internal/app"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagDB     string

	cfg    *app.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chainledger",
	Short: "Double-entry ledger with a tamper-evident hash chain",
	Long: "A double-entry accounting ledger backed by SQLite. Posted transactions are sealed into a\n" +
		"SHA-256 hash chain so any later modification is detectable.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = app.LoadConfig(); err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = flagDB
		}
		logger = app.NewLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8888", "Server address")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "ledger.db", "SQLite database path (overrides LEDGER_DB_PATH)")
}

func Execute() error {
	return rootCmd.Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newClient() *client.Client {
	return client.New(flagServer)
}
