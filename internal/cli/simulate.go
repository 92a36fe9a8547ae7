package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/shintothemars/tft-bbri/internal/app"
)

var (
	simulateHorizon int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "基于合成行情模拟一次预测告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateHorizon < 0 {
			return errors.New("--horizon 不能为负数")
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{HorizonDays: simulateHorizon})
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateHorizon, "horizon", 0, "预测天数 (默认取 watch.horizon_days)")
}
