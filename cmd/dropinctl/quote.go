package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/pricing"
	"github.com/spf13/cobra"
)

func quoteCmd() *cobra.Command {
	var (
		seed    string
		monthly int64
	)
	cmd := &cobra.Command{
		Use:   "quote [tier]",
		Short: "Print the price and commission split of every product at a venue tier",
		Long: `Print the price, platform commission and partner share of every catalog product
for a venue tier, using the pricing rates from the environment.

Examples:
  dropinctl quote PREMIUM
  dropinctl quote STANDARD --monthly-price 400
  dropinctl quote BASIC --seed deploy/catalog.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseTier(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := pricing.NewEngine(cfg.Rates())
			if err != nil {
				return err
			}
			products := catalog.DefaultProducts()
			if seed != "" {
				if products, err = catalog.LoadSeed(seed); err != nil {
					return err
				}
			}
			var monthlyPrice *int64
			if cmd.Flags().Changed("monthly-price") {
				if monthly < 0 {
					return errors.Wrap(domain.ErrInvalidInput, "monthly price must not be negative")
				}
				monthlyPrice = &monthly
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tTYPE\tPRICE\tCOMMISSION\tNET")
			for _, p := range products {
				price, err := engine.PriceFor(tier, p, monthlyPrice)
				if errors.Is(err, domain.ErrProductNotAvailableForTier) {
					fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", p.Name, p.Type)
					continue
				}
				if err != nil {
					return err
				}
				split := engine.SplitCommission(price)
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", p.Name, p.Type, price, split.Commission, split.Net)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "catalog seed file (defaults to the built-in catalog)")
	cmd.Flags().Int64Var(&monthly, "monthly-price", 0, "venue monthly subscription price in MAD")

	return cmd
}
