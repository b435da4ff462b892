package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/oeewatch/internal/config"
	"github.com/rewired-gh/oeewatch/internal/logger"
	"github.com/rewired-gh/oeewatch/internal/metrics"
	"github.com/rewired-gh/oeewatch/internal/models"
	"github.com/rewired-gh/oeewatch/internal/monitor"
	"github.com/rewired-gh/oeewatch/internal/storage"
	"github.com/rewired-gh/oeewatch/internal/telegram"
	"github.com/rewired-gh/oeewatch/internal/web"
)

// notifier delivers report and health notifications.
type notifier interface {
	Send(reports []*models.ParetoReport) error
	SendError(err error) error
	SendRecovery(failures int) error
}

// service runs monitoring cycles and tracks consecutive failures.
type service struct {
	monitor  *monitor.Monitor
	store    *storage.Storage
	notifier notifier // nil when notifications are disabled

	consecutiveFailures int
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring service",
		Long:  "Poll the factory API on an interval, build and store reports, serve the dashboard API, and send Telegram notifications.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			// Setup graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runService(ctx, cfg)
		},
	}
}

func runService(ctx context.Context, cfg *config.Config) error {
	// Initialize storage
	store, err := storage.New(cfg.Storage.MaxReportsPerScope, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	mon := monitor.New(newFactoryClient(cfg), store, recorder, monitor.Options{
		Lines:          cfg.Factory.Lines,
		TopN:           cfg.Monitor.TopN,
		Metric:         cfg.Monitor.ParsedMetric(),
		NotifyCooldown: cfg.Monitor.NotifyCooldown,
		Downtime:       cfg.Monitor.Downtime,
	})

	svc := &service{monitor: mon, store: store}

	// Initialize Telegram client
	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		svc.notifier = client
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	webErr := make(chan error, 1)
	if cfg.Web.Enabled {
		server := web.NewServer(cfg.Web.Addr, store, registry, cfg.Monitor.TopN)
		go func() { webErr <- server.Start(ctx) }()
	}

	logger.Info("Starting monitoring service (interval: %v, metric: %s, top_n: %d, lines: %v)",
		cfg.Factory.PollInterval, cfg.Monitor.ParsedMetric(), cfg.Monitor.TopN, cfg.Factory.Lines)

	ticker := time.NewTicker(cfg.Factory.PollInterval)
	defer ticker.Stop()

	// Run initial cycle immediately
	logger.Debug("Running initial monitoring cycle")
	svc.handleCycleResult(svc.cycle(ctx, time.Now()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil

		case err := <-webErr:
			if err != nil {
				return err
			}

		case tickTime := <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			svc.handleCycleResult(svc.cycle(ctx, tickTime))

			// Rotate old reports
			if removed, err := store.RotateReports(); err != nil {
				logger.Warn("Failed to rotate reports: %v", err)
			} else if removed > 0 {
				logger.Debug("Rotated %d old reports", removed)
			}
		}
	}
}

// cycle runs one monitoring cycle and sends the eligible reports.
func (s *service) cycle(ctx context.Context, cycleTime time.Time) error {
	startTime := time.Now()
	logger.Info("Starting monitoring cycle")

	reports, cycleErrors, err := s.monitor.RunCycle(ctx, cycleTime)
	if err != nil {
		return err
	}
	for _, cycleErr := range cycleErrors {
		logger.Warn("Failed to build report for %s: %v", cycleErr.Scope, cycleErr.Err)
	}

	if len(reports) > 0 {
		if s.notifier != nil {
			logger.Debug("Sending %d reports to Telegram", len(reports))
			if err := s.notifier.Send(reports); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
			} else {
				logger.Info("Sent Telegram notification with %d reports", len(reports))
				s.monitor.RecordNotified(reports, cycleTime)
			}
		} else {
			logger.Debug("Reports changed but Telegram notifications disabled")
		}
	} else {
		logger.Info("No changed rankings this cycle")
	}

	logger.Info("Monitoring cycle completed in %v", time.Since(startTime))
	return nil
}

// handleCycleResult notifies on the first failure of a streak and on recovery.
func (s *service) handleCycleResult(err error) {
	if err != nil {
		s.consecutiveFailures++
		logger.Error("Monitoring cycle failed: %v", err)
		if s.consecutiveFailures == 1 && s.notifier != nil {
			if sendErr := s.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}

	if s.consecutiveFailures > 0 && s.notifier != nil {
		if sendErr := s.notifier.SendRecovery(s.consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	s.consecutiveFailures = 0
}
