// Package cli implements the oeewatch command line: the monitoring service
// and one-shot report and plan commands.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/oeewatch/internal/config"
	"github.com/rewired-gh/oeewatch/internal/factory"
	"github.com/rewired-gh/oeewatch/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
)

const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "oeewatch",
		Short:         "OEE downtime and error analytics for production lines",
		Long:          "oeewatch polls the factory API, ranks errors into Pareto reports, normalizes downtime categories, and notifies on changes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newReportCmd(&configPath))
	cmd.AddCommand(newPlansCmd(&configPath))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// loadConfig loads and validates the configuration and initializes logging.
// A missing file at the default path falls back to defaults plus environment.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if !cmd.Flags().Changed("config") && path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.InitWithWriter(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if path != "" {
		logger.Debug("Configuration loaded from %s", path)
	}
	return cfg, nil
}

func newFactoryClient(cfg *config.Config) *factory.Client {
	return factory.NewClient(
		cfg.Factory.APIBaseURL,
		cfg.Factory.Timeout,
		factory.ClientConfig{
			MaxRetries:          cfg.Factory.MaxRetries,
			RetryDelayBase:      cfg.Factory.RetryDelayBase,
			MaxIdleConns:        cfg.Factory.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Factory.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Factory.IdleConnTimeout,
		},
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oeewatch %s (%s)\n", version, commit)
		},
	}
}
