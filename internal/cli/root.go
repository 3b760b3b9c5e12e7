// Package cli implements the sitesync command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tOgg1/sitesync/internal/config"
	"github.com/tOgg1/sitesync/internal/logging"
)

var (
	cfgFile     string
	logLevel    string
	logFormat   string
	jsonOutput  bool
	verbose     bool
	metricsAddr string

	appConfig *config.Config
	logFile   *os.File
	logger    zerolog.Logger = logging.Component("cli")
)

var rootCmd = &cobra.Command{
	Use:   "sitesync",
	Short: "Presence-aware conversation sync for marketplace operators",
	Long: `sitesync keeps an operator's conversations with clients and developers
in sync with the marketplace backend: who is online, the selected thread,
typing indicators and outgoing messages.

Run without a subcommand in a terminal to open the conversation viewer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !hasTTY() {
			return cmd.Help()
		}
		return runUI(cmd.Context(), "")
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/sitesync/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	rootCmd.Version = version
	return rootCmd.ExecuteContext(ctx)
}

// ErrorHint returns the remedy attached to err, if any.
func ErrorHint(err error) string {
	var hinted interface{ Hint() string }
	if errors.As(err, &hinted) {
		return hinted.Hint()
	}
	return ""
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

func initConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	var output io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := logging.OpenFile(cfg.Logging.File)
		if err != nil {
			return err
		}
		logFile = f
		output = f
	}
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       output,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	logger = logging.Component("cli")

	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}

	appConfig = cfg
	return nil
}
