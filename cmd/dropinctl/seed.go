package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/dropinmorocco/booking-core/internal/adapters/mongo"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func seedCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seed [catalog.yaml]",
		Short: "Load a product catalog file into MongoDB",
		Long: `Validate every product of a YAML catalog file and upsert it into the MongoDB
products collection named by MONGO_URI and MONGO_DB.

Examples:
  dropinctl seed deploy/catalog.yaml
  dropinctl seed deploy/catalog.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := catalog.LoadSeed(args[0])
			if err != nil {
				return err
			}
			// NewStatic validates each product and rejects duplicate ids.
			if _, err := catalog.NewStatic(products); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d products in %s\n", len(products), args[0])
			if dryRun {
				fmt.Fprintln(out, "Dry run - no changes made")
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.MongoURI == "" {
				return errors.New("MONGO_URI is not set")
			}
			ctx := cmd.Context()
			client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
			if err != nil {
				return errors.Wrap(err, "connect to mongo")
			}
			defer client.Disconnect(context.Background())

			repo := mongoadapter.NewCatalogRepository(client.Database(cfg.MongoDB), observability.NewLoggerWithLevel(cfg.LogLevel))
			for _, p := range products {
				if err := repo.Upsert(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s %s\n", p.ID, p.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")

	return cmd
}
