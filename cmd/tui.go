package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/simonvc/chainledger/internal/app"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const embeddedAddr = "127.0.0.1:8888"

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverAddr := flagServer

		if !cmd.Flags().Changed("server") {
			// Embedded server; its logs would draw over the alt screen.
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			a, err := app.New(context.Background(), cfg, quiet)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := a.Server(embeddedAddr)
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			defer srv.Shutdown(context.Background())
			serverAddr = "http://" + embeddedAddr

			if err := waitReady(client.New(serverAddr), errc); err != nil {
				return err
			}
		}

		c := client.New(serverAddr)
		p := tea.NewProgram(tui.NewApp(c, cfg.DefaultCurrency), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func waitReady(c *client.Client, errc <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if err := c.Ping(ctx); err == nil {
			return nil
		}
		select {
		case err := <-errc:
			return fmt.Errorf("embedded server: %w", err)
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for embedded server")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
