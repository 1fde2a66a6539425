package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"apples-watch/internal/app"
)

var (
	simulatePrice    string
	simulateTerm     int
	simulateSupplier string
	simulateAlertsDB string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一个报价并按告警规则发送通知",
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil || !price.IsPositive() {
			return errors.New("--price 必须是大于 0 的数字 ($/kWh)")
		}
		if simulateTerm < 0 {
			return errors.New("--term 不能为负数")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Price:    price,
			Term:     simulateTerm,
			Supplier: simulateSupplier,
			AlertsDB: simulateAlertsDB,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "模拟报价 $/kWh, 例如 0.0699")
	simulateCmd.Flags().IntVar(&simulateTerm, "term", 0, "合同期限 (月), 0 表示无期限")
	simulateCmd.Flags().StringVar(&simulateSupplier, "supplier", "", "供应商名称")
	simulateCmd.Flags().StringVar(&simulateAlertsDB, "alerts-db", "", "Alert store path (defaults to config, then alerts.db)")
	_ = simulateCmd.MarkFlagRequired("price")
}
