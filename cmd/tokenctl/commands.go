package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"aspire/internal/auth"
	"aspire/internal/cache"
	"aspire/internal/config"
	"aspire/internal/db"
	"aspire/internal/events"
	"aspire/internal/jobs"
	"aspire/internal/services"
	"aspire/internal/store"
	"aspire/internal/websocket"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCostsCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(tokenCmd)

	migrateCmd.Flags().String("dir", "migrations", "Directory holding *.sql migrations")
	reconcileCmd.Flags().Bool("fail-on-drift", false, "Exit non-zero when any account drifted")
	reconcileCmd.Flags().String("account", "", "Replay one account's ledger entry by entry")
	tokenCmd.Flags().StringP("user", "u", "", "External user id placed in the sub claim")
	tokenCmd.Flags().StringSlice("role", nil, "Roles to grant, e.g. --role admin")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to TOKEN_TTL_MINUTES)")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		database, err := openDatabase(config.Load())
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := db.Migrate(cmd.Context(), database, dir)
		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		}
		return nil
	},
}

var seedCostsCmd = &cobra.Command{
	Use:   "seed-costs",
	Short: "Write the built-in feature prices into the catalog",
	Long:  `Upserts every built-in feature price into feature_costs. Running it twice leaves the catalog unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		registry := services.NewCostRegistry(db.NewTxRunner(database), store.NewFeatureCostStore(database), cache.Nop{}, newLogger(), cfg.CacheTTL)
		n, err := registry.Seed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d feature costs\n", n)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:     "reconcile",
	Aliases: []string{"drift"},
	Short:   "List accounts whose balance disagrees with their ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		failOnDrift, _ := cmd.Flags().GetBool("fail-on-drift")
		accountID, _ := cmd.Flags().GetString("account")
		cfg := config.Load()
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if accountID != "" {
			ledger := services.NewLedger(
				db.NewTxRunner(database),
				store.NewAccountStore(database),
				store.NewLedgerStore(database),
				store.NewOutboxStore(database),
				websocket.NewHub(),
				cache.Nop{},
				newLogger(),
				services.LedgerConfig{LedgerTopic: cfg.LedgerTopic, DefaultBalance: cfg.DefaultBalance, SignupGrant: cfg.SignupGrant},
			)
			replay, err := ledger.Reconstruct(cmd.Context(), accountID)
			if err != nil {
				return err
			}
			if err := printReconstruction(cmd.OutOrStdout(), replay); err != nil {
				return err
			}
			if failOnDrift && !replay.Consistent() {
				return fmt.Errorf("account %s drifted", accountID)
			}
			return nil
		}

		rows, err := store.NewAccountStore(database).ListDrift(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "all balances match their ledgers")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACCOUNT\tUSER\tSTORED\tLEDGER\tDIFF\tENTRIES")
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", row.ID, row.ExternalUserID, row.StoredBalance, row.CalculatedBalance, row.Difference, row.EntryCount)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if failOnDrift {
			return fmt.Errorf("%d accounts drifted", len(rows))
		}
		return nil
	},
}

// printReconstruction writes the replay timeline followed by a one-line verdict.
func printReconstruction(w io.Writer, replay services.Reconstruction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tCREATED\tAMOUNT\tBALANCE\tDESCRIPTION")
	for _, entry := range replay.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%+d\t%d\t%s\n", entry.ID, entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), entry.Amount, entry.RunningBalance, entry.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if replay.Consistent() {
		fmt.Fprintf(w, "account %s: stored %d matches replay\n", replay.AccountID, replay.StoredBalance)
	} else {
		fmt.Fprintf(w, "account %s: stored %d, replay %d\n", replay.AccountID, replay.StoredBalance, replay.ReplayedBalance)
	}
	if replay.FirstNegativeEntry != "" {
		fmt.Fprintf(w, "balance went negative after entry %s\n", replay.FirstNegativeEntry)
	}
	return nil
}

var relayCmd = &cobra.Command{
	Use:   "relay-outbox",
	Short: "Publish one batch of pending outbox events and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := newLogger()
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		var publisher events.Publisher = events.NewLogPublisher(logger)
		if len(cfg.KafkaBrokers) > 0 {
			producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
			if err != nil {
				return fmt.Errorf("kafka producer: %w", err)
			}
			publisher = events.NewKafkaPublisher(producer)
		}
		defer publisher.Close()

		relay := jobs.NewOutboxRelay(store.NewOutboxStore(database), publisher, logger, jobs.OutboxRelayConfig{
			Interval:    cfg.OutboxInterval,
			BatchSize:   cfg.OutboxBatchSize,
			MaxAttempts: cfg.OutboxMaxAttempts,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", relay.RelayOnce(cmd.Context()))
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed access token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		roles, _ := cmd.Flags().GetStringSlice("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if strings.TrimSpace(user) == "" {
			return fmt.Errorf("--user is required")
		}
		cfg := config.Load()
		if cfg.IsProduction() {
			return fmt.Errorf("refusing to mint tokens with APP_ENV=production")
		}
		if ttl <= 0 {
			ttl = cfg.TokenTTL
		}
		token, err := auth.GenerateToken(cfg.JWTSecret, user, ttl, roles...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
