package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/config"
	"github.com/abdul-hamid-achik/beaconspec/packages/observability"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
	logFileFlag   string

	// appConfig is loaded before any command runs.
	appConfig = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "beaconspec",
	Short: "Declarative browser tests for analytics beacons.",
	Long: `beaconspec drives a real browser through a list of steps, captures the
analytics requests the page sends, and checks them against assertions.

Test documents are JSON or YAML:

  test:
    name: Home page view
    steps:
      - action: goto
        value: https://shop.example.com/
      - action: test
        test: {id: 1, name: pageview, type: requestMatchRegex, for: GA,
               match: {key: t, value: pageview}}
  options:
    trackRequests:
      - {name: GA, url: /collect}`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	err := rootCmd.Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", getEnvString("BEACONSPEC_CONFIG", ""), "Path to config file (env: BEACONSPEC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", getEnvString("BEACONSPEC_LOG_LEVEL", ""), "Log level: debug, info, warn, error (env: BEACONSPEC_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", getEnvString("BEACONSPEC_LOG_FORMAT", ""), "Log format: console, json (env: BEACONSPEC_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", getEnvString("BEACONSPEC_LOG_FILE", ""), "Also write JSON logs to a rotated file (env: BEACONSPEC_LOG_FILE)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the config file and initialises logging.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}
	appConfig = cfg

	logCfg := cfg.Logger
	if logLevelFlag != "" {
		logCfg.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		logCfg.Format = logFormatFlag
	}
	if logFileFlag != "" {
		logCfg.File = logFileFlag
	}
	observability.InitializeLogger(logCfg)
	observability.GetLogger().Debug("Configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("config", configFlag),
	)
	return nil
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
