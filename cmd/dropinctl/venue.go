package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func venueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venue",
		Short: "Manage venue rows in CockroachDB",
	}
	cmd.AddCommand(venueUpsertCmd())
	cmd.AddCommand(venueCapacityCmd())
	return cmd
}

func venueUpsertCmd() *cobra.Command {
	var (
		id       string
		name     string
		tier     string
		monthly  int64
		inactive bool
	)
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a venue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := domain.Venue{ID: uuid.New(), Name: name, IsActive: !inactive}
			if id != "" {
				parsed, err := uuid.Parse(id)
				if err != nil {
					return errors.Wrap(domain.ErrInvalidInput, "--id must be a uuid")
				}
				v.ID = parsed
			}
			if v.Name == "" {
				return errors.Wrap(domain.ErrInvalidInput, "--name is required")
			}
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}
			v.Tier = t
			if cmd.Flags().Changed("monthly-price") {
				if monthly < 0 {
					return errors.Wrap(domain.ErrInvalidInput, "monthly price must not be negative")
				}
				v.MonthlyPrice = &monthly
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, closeFn, err := openRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := repo.UpsertVenue(cmd.Context(), v); err != nil {
				return errors.Wrapf(err, "upsert venue %s", v.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "venue %s (%s, %s) saved\n", v.ID, v.Name, v.Tier)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "venue id (a new one is generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&tier, "tier", string(domain.TierStandard), "BASIC, STANDARD, PREMIUM or ULTRA_LUXE")
	cmd.Flags().Int64Var(&monthly, "monthly-price", 0, "monthly subscription price in MAD")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "mark the venue as not accepting check-ins")

	return cmd
}

func venueCapacityCmd() *cobra.Command {
	var (
		day         string
		maxCapacity int
	)
	cmd := &cobra.Command{
		Use:   "capacity [venue-id]",
		Short: "Set the daily capacity of a venue, keeping the current occupancy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			venueID, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrap(domain.ErrInvalidInput, "venue id must be a uuid")
			}
			if maxCapacity < 0 {
				return errors.Wrap(domain.ErrInvalidInput, "--max must not be negative")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if day == "" {
				loc, err := cfg.Location()
				if err != nil {
					return err
				}
				day = time.Now().In(loc).Format(time.DateOnly)
			} else if _, err := time.Parse(time.DateOnly, day); err != nil {
				return errors.Wrap(domain.ErrInvalidInput, "--day must be YYYY-MM-DD")
			}

			ctx := cmd.Context()
			repo, closeFn, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			c := domain.Capacity{VenueID: venueID, Day: day, MaxCapacity: maxCapacity}
			current, err := repo.Capacity(ctx, venueID, day)
			switch {
			case err == nil:
				c.CurrentOccupancy = current.CurrentOccupancy
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
			if c.CurrentOccupancy > c.MaxCapacity {
				return errors.Wrapf(domain.ErrInvalidInput, "%d visitors already checked in on %s", c.CurrentOccupancy, day)
			}
			if err := repo.UpsertCapacity(ctx, c); err != nil {
				return errors.Wrapf(err, "set capacity of %s", venueID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "venue %s: %d/%d on %s\n", venueID, c.CurrentOccupancy, c.MaxCapacity, day)
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "calendar day YYYY-MM-DD in VENUE_TIMEZONE (defaults to today)")
	cmd.Flags().IntVar(&maxCapacity, "max", 0, "maximum check-ins for the day")

	return cmd
}
