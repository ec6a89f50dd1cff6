package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/app"
	"carbon-scribe/ghg-disclosure-backend/internal/config"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
)

const dateLayout = "2006-01-02"

var (
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ghg-disclosure",
	Short: "Build greenhouse gas inventories and inline XBRL disclosures.",
	Long: `ghg-disclosure resolves emission factors for activity records, aggregates
them by scope and category, quantifies uncertainty and renders the result as
an inline XBRL document, with optional workbook, PDF and CSV exports.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger, err = app.NewLogger(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "JSON config file; missing files are skipped")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "loglevel", "l", "", "Log level: debug, info, warn, error")
}

// newService builds a disclosure service. Without stores it can only build
// reports from inline factor tables.
func newService(cmd *cobra.Command, stores *app.Stores, publish bool) (*disclosure.Service, error) {
	serviceConfig, err := app.ServiceConfig(cfg)
	if err != nil {
		return nil, err
	}

	var publisher disclosure.Publisher
	if publish {
		publisher, err = app.NewPublisher(cmd.Context(), cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
	}
	if stores == nil {
		return disclosure.NewService(nil, nil, publisher, serviceConfig, logger), nil
	}
	return disclosure.NewService(stores.Activities, stores.Factors, publisher, serviceConfig, logger), nil
}

func parseDate(flag, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be a date like 2025-12-31: %w", flag, err)
	}
	return t, nil
}
