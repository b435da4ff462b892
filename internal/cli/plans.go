package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/oeewatch/internal/logger"
	"github.com/rewired-gh/oeewatch/internal/render"
)

func newPlansCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and maintain shift plans",
	}
	cmd.AddCommand(newPlansRecalcCmd(configPath))
	return cmd
}

func newPlansRecalcCmd(configPath *string) *cobra.Command {
	var (
		lineID    string
		machineID string
		day       string
		output    string
		apply     bool
	)

	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate day plan hours and product targets",
		Long:  "Recompute each shift plan's planned hours from its shift times and its product target from the cycle time. With --apply the result is written back to the factory API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := render.ParseFormat(output)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if day == "" {
				day = time.Now().Format("2006-01-02")
			}

			client := newFactoryClient(cfg)
			plans, err := client.FetchDayPlans(cmd.Context(), lineID, machineID, day)
			if err != nil {
				return err
			}

			changes := make([]render.PlanChange, len(plans))
			for i := range plans {
				changes[i].OldTarget = plans[i].TargetProduct
				plans[i].Recalculate()
				changes[i].Plan = plans[i]
			}

			if err := render.Plans(cmd.OutOrStdout(), format, changes); err != nil {
				return err
			}

			if !apply {
				return nil
			}
			if len(plans) == 0 {
				logger.Info("No plans to update for line %s on %s", lineID, day)
				return nil
			}
			if err := client.UpdateDayPlans(cmd.Context(), plans); err != nil {
				return err
			}
			logger.Info("Updated %d plans for line %s on %s", len(plans), lineID, day)
			return nil
		},
	}

	cmd.Flags().StringVar(&lineID, "line", "", "Line ID (required)")
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine ID (default: whole line)")
	cmd.Flags().StringVar(&day, "date", "", "Day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&apply, "apply", false, "Write recalculated plans back to the factory API")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}
