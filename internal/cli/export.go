package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shintothemars/tft-bbri/internal/app"
)

var (
	predictJSON    bool
	predictPNGPath string
	predictCSVPath string
)

var predictCmd = &cobra.Command{
	Use:   "predict <YYYY-MM-DD>",
	Short: "Forecast prices up to a target date, optionally exporting CSV and/or PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return fmt.Errorf("target date must be provided")
		}

		opts := app.PredictOptions{
			TargetDate: args[0],
			JSON:       predictJSON,
			PNGPath:    predictPNGPath,
			CSVPath:    predictCSVPath,
		}

		return getApp().Predict(cmd.Context(), opts)
	},
}

func init() {
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "Print the full result as JSON")
	predictCmd.Flags().StringVar(&predictPNGPath, "png", "", "Path to write PNG chart")
	predictCmd.Flags().StringVar(&predictCSVPath, "csv", "", "Path to write CSV data")
}
