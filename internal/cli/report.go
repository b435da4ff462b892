package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/oeewatch/internal/analytics"
	"github.com/rewired-gh/oeewatch/internal/factory"
	"github.com/rewired-gh/oeewatch/internal/models"
	"github.com/rewired-gh/oeewatch/internal/monitor"
	"github.com/rewired-gh/oeewatch/internal/render"
	"github.com/rewired-gh/oeewatch/internal/storage"
)

func newReportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print Pareto, downtime, machine day and ratio reports",
	}
	cmd.AddCommand(newReportParetoCmd(configPath))
	cmd.AddCommand(newReportDowntimeCmd(configPath))
	cmd.AddCommand(newReportDayCmd(configPath))
	cmd.AddCommand(newReportRatioCmd(configPath))
	return cmd
}

func newReportParetoCmd(configPath *string) *cobra.Command {
	var (
		lineID    string
		machineID string
		date      string
		month     string
		metric    string
		topN      int
		output    string
		live      bool
	)

	cmd := &cobra.Command{
		Use:   "pareto",
		Short: "Print the top-N error ranking of a line or machine",
		Long:  "Print the latest stored Pareto report of a line, or with --live rank the factory API's error statistics for a day or month.",
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

			scope := models.LineScope(lineID)
			if machineID != "" && machineID != models.AllMachines {
				scope = models.MachineScope(machineID)
			}

			if !live {
				// The service stores Pareto reports per line only.
				if scope != models.LineScope(lineID) {
					return errors.New("--machine requires --live: stored Pareto reports cover whole lines")
				}
				report, err := latestParetoReport(cfg.Storage.DBPath, scope)
				if err != nil {
					return err
				}
				return render.Pareto(cmd.OutOrStdout(), format, report)
			}

			m := cfg.Monitor.ParsedMetric()
			if cmd.Flags().Changed("metric") {
				if m, err = models.ParseMetric(metric); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("top-n") {
				topN = cfg.Monitor.TopN
			}

			q := factory.ErrorQuery{LineID: lineID, MachineID: machineID, Period: factory.PeriodDay, Date: date, Metric: m}
			if month != "" {
				q.Period = factory.PeriodMonth
				q.Date = month
			} else if q.Date == "" {
				q.Date = time.Now().Format("2006-01-02")
			}

			records, err := newFactoryClient(cfg).FetchErrorAnalysis(cmd.Context(), q)
			if err != nil {
				return err
			}
			report, err := monitor.BuildParetoReport(scope, q.Date, records, m, topN, time.Now())
			if err != nil {
				return err
			}
			return render.Pareto(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().StringVar(&lineID, "line", "", "Line ID (required)")
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine ID (default: whole line, with --live)")
	cmd.Flags().StringVar(&date, "date", "", "Day to rank, YYYY-MM-DD (default: today, with --live)")
	cmd.Flags().StringVar(&month, "month", "", "Month to rank, YYYY-MM (with --live)")
	cmd.Flags().StringVar(&metric, "metric", "count", "Ranking metric: count or recovery (with --live)")
	cmd.Flags().IntVar(&topN, "top-n", 0, "Number of errors to keep (default: monitor.top_n, with --live)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&live, "live", false, "Query the factory API instead of stored reports")
	_ = cmd.MarkFlagRequired("line")
	cmd.MarkFlagsMutuallyExclusive("date", "month")
	return cmd
}

func newReportDowntimeCmd(configPath *string) *cobra.Command {
	var (
		machineID string
		month     int
		year      int
		output    string
		live      bool
	)

	cmd := &cobra.Command{
		Use:   "downtime",
		Short: "Print the normalized downtime categories of a machine",
		Long:  "Print the latest stored downtime report of a machine, or with --live normalize the factory API's buckets for a month or year.",
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

			scope := models.MachineScope(machineID)
			if !live {
				report, err := latestDowntimeReport(cfg.Storage.DBPath, scope)
				if err != nil {
					return err
				}
				return render.Downtime(cmd.OutOrStdout(), format, report)
			}

			client := newFactoryClient(cfg)
			now := time.Now()
			var buckets []models.CategoryBucket
			var period string
			if year != 0 {
				period = fmt.Sprintf("%04d", year)
				buckets, err = client.FetchMachineYear(cmd.Context(), machineID, year)
			} else {
				if month == 0 {
					month = int(now.Month())
				}
				if month < 1 || month > 12 {
					return fmt.Errorf("month must be between 1 and 12, got %d", month)
				}
				period = fmt.Sprintf("%04d-%02d", now.Year(), month)
				buckets, err = client.FetchMachineMonth(cmd.Context(), machineID, month)
			}
			if err != nil {
				return err
			}

			report, err := monitor.BuildDowntimeReport(scope, period, buckets, now)
			if err != nil {
				return err
			}
			return render.Downtime(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().StringVar(&machineID, "machine", "", "Machine ID (required)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default: current month, with --live)")
	cmd.Flags().IntVar(&year, "year", 0, "Year for per-month buckets (with --live)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&live, "live", false, "Query the factory API instead of stored reports")
	_ = cmd.MarkFlagRequired("machine")
	cmd.MarkFlagsMutuallyExclusive("month", "year")
	return cmd
}

func newReportDayCmd(configPath *string) *cobra.Command {
	var (
		machineID string
		day       string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "day",
		Short: "Print the single-day activity breakdown of a machine",
		Long:  "Query the factory API for a machine's day view and print its category shares normalized to whole percentages, with the time table and product counts.",
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

			machineDay, err := newFactoryClient(cfg).FetchMachineDay(cmd.Context(), machineID, day)
			if err != nil {
				return err
			}
			shares, err := analytics.NormalizeBucket(machineDay.PieBucket())
			if err != nil {
				return err
			}
			return render.MachineDay(cmd.OutOrStdout(), format, render.DayView{Day: machineDay, Shares: shares})
		},
	}

	cmd.Flags().StringVar(&machineID, "machine", "", "Machine ID (required)")
	cmd.Flags().StringVar(&day, "date", "", "Day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("machine")
	return cmd
}

func newReportRatioCmd(configPath *string) *cobra.Command {
	var (
		machineID string
		month     int
		year      int
		data      string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "ratio",
		Short: "Print the OEE, OK product, output and activity ratios of a machine",
		Long:  "Query the factory API for a machine's performance ratios per day of a month, or per month of a year with --year.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := render.ParseFormat(output)
			if err != nil {
				return err
			}
			ratio, err := models.ParseRatioType(data)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			client := newFactoryClient(cfg)
			series := render.RatioSeries{Scope: models.MachineScope(machineID), Ratio: ratio}
			if year != 0 {
				series.Period = fmt.Sprintf("%04d", year)
				series.Points, err = client.FetchMachineYearRatio(cmd.Context(), machineID, year, ratio)
			} else {
				now := time.Now()
				if month == 0 {
					month = int(now.Month())
				}
				if month < 1 || month > 12 {
					return fmt.Errorf("month must be between 1 and 12, got %d", month)
				}
				series.Period = fmt.Sprintf("%04d-%02d", now.Year(), month)
				series.Points, err = client.FetchMachineMonthRatio(cmd.Context(), machineID, month, ratio)
			}
			if err != nil {
				return err
			}
			return render.Ratios(cmd.OutOrStdout(), format, series)
		},
	}

	cmd.Flags().StringVar(&machineID, "machine", "", "Machine ID (required)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default: current month)")
	cmd.Flags().IntVar(&year, "year", 0, "Year for per-month ratios")
	cmd.Flags().StringVar(&data, "data", "all", "Ratio series: all, oee, ok, output or activity")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("machine")
	cmd.MarkFlagsMutuallyExclusive("month", "year")
	return cmd
}

func latestParetoReport(dbPath, scope string) (*models.ParetoReport, error) {
	store, err := storage.New(1, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	return store.LatestParetoReport(scope)
}

func latestDowntimeReport(dbPath, scope string) (*models.DowntimeReport, error) {
	store, err := storage.New(1, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	return store.LatestDowntimeReport(scope)
}
