package main

import (
	"fmt"
	"log/slog"
	"os"

	"aspire/internal/config"
	"aspire/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "tokenctl",
	Short:         "Operate the token ledger",
	Long:          `Operator commands for the token ledger: schema migrations, catalog seeding, balance reconciliation, outbox draining and test tokens.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func openDatabase(cfg config.Config) (*sqlx.DB, error) {
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return database, nil
}
