package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shintothemars/tft-bbri/internal/app"
	"github.com/shintothemars/tft-bbri/internal/market"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Archive provider bars into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" {
			return fmt.Errorf("--from must be provided")
		}

		from, err := time.Parse(market.DateLayout, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to := market.Day(time.Now())
		if backfillTo != "" {
			to, err = time.Parse(market.DateLayout, backfillTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}

		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.BackfillOptions{
			From:   from,
			To:     to,
			DryRun: backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End date (YYYY-MM-DD, inclusive; defaults to today)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
