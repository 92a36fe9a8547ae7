package cli

import (
	"github.com/spf13/cobra"

	"github.com/shintothemars/tft-bbri/internal/app"
)

var (
	modelInitPath  string
	modelInitForce bool
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the forecaster weights artifact",
}

var modelInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write freshly initialized weights to model.weights_path",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ModelInit(cmd.Context(), app.ModelInitOptions{
			Path:  modelInitPath,
			Force: modelInitForce,
		})
	},
}

func init() {
	modelInitCmd.Flags().StringVar(&modelInitPath, "path", "", "Override the output path")
	modelInitCmd.Flags().BoolVar(&modelInitForce, "force", false, "Overwrite an existing artifact")
	modelCmd.AddCommand(modelInitCmd)
}
