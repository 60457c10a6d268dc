package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/adapters/crdb"
	"github.com/dropinmorocco/booking-core/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	_ "time/tzdata"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "dropinctl",
		Short:         "Operator tooling for the Drop-In booking core",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(venueCmd())
	rootCmd.AddCommand(refundCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

// openRepository connects to CRDB_DSN. The returned func closes the pool.
func openRepository(ctx context.Context, cfg *config.Config) (*crdb.Repository, func(), error) {
	if cfg.CRDBDSN == "" {
		return nil, nil, errors.New("CRDB_DSN is not set")
	}
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to crdb")
	}
	return crdb.NewRepository(pool), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the CockroachDB schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, closeFn, err := openRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := repo.Migrate(cmd.Context()); err != nil {
				return errors.Wrap(err, "migrate")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
