package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/orders"
	"github.com/dropinmorocco/booking-core/internal/payments"
	"github.com/dropinmorocco/booking-core/internal/pricing"
	"github.com/dropinmorocco/booking-core/internal/tokens"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func refundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Reconcile refunds with the payment gateway",
	}
	cmd.AddCommand(refundCompleteCmd())
	return cmd
}

func refundCompleteCmd() *cobra.Command {
	var transactionID string
	cmd := &cobra.Command{
		Use:   "complete [refund-id]",
		Short: "Record a pending refund that the gateway already settled",
		Long: `Mark a refund row left pending as completed under the gateway's transaction id,
refunding the order and cancelling its tokens when it is now fully refunded.

Examples:
  dropinctl refund complete 6f1c2a9e-3b7d-4e52-9a0f-2d8c1b4e7a10 --transaction-id re_3PqZ`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refundID, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrap(domain.ErrInvalidInput, "refund id must be a uuid")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := pricing.NewEngine(cfg.Rates())
			if err != nil {
				return err
			}
			cat, err := catalog.NewStatic(catalog.DefaultProducts())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, closeFn, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			logger := observability.NewLoggerWithLevel(cfg.LogLevel)
			om := orders.NewManager(repo, cat, engine, logger)
			pp := payments.NewProcessor(repo, om, tokens.NewIssuer(logger), payments.NewSimulatedGateway(), logger)
			res, err := pp.CompleteRefund(ctx, refundID, transactionID)
			if err != nil {
				return errors.Wrapf(err, "complete refund %s", refundID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refund %s completed, order %s is %s, %d tokens cancelled\n",
				refundID, res.Order.ID, res.Order.Status, res.CancelledTokens)
			return nil
		},
	}

	cmd.Flags().StringVar(&transactionID, "transaction-id", "", "gateway transaction id of the settled refund")

	return cmd
}
