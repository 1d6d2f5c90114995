package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/config"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/env"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
	"github.com/abdul-hamid-achik/beaconspec/packages/observability"
	"github.com/abdul-hamid-achik/beaconspec/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run browser tests from test documents",
	Long: `Run the test documents given as files or found in directories
(.json, .yaml and .yml; config files are skipped).

Examples:
  beaconspec run tests/home.yaml
  beaconspec run ./tests/ --output junit --output-file report.xml
  beaconspec run checkout.json --var sku=abc12 --env-file .env.staging
  beaconspec run ./tests/ --headless=false --settle-delay 2s
  beaconspec run ./tests/ --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	headlessFlag    bool
	outputFlag      string
	outputFileFlag  string
	varFlags        []string
	envFileFlags    []string
	settleDelayFlag time.Duration
	typeDelayFlag   time.Duration
	timeoutFlag     time.Duration
	bailFlag        bool
	watchFlag       bool
	verboseFlag     bool
	noColorFlag     bool
)

func init() {
	// Browser flags
	runCmd.Flags().BoolVar(&headlessFlag, "headless", getEnvBool("BEACONSPEC_HEADLESS", true), "Run the browser without a window (env: BEACONSPEC_HEADLESS)")
	runCmd.Flags().DurationVar(&settleDelayFlag, "settle-delay", time.Duration(getEnvInt("BEACONSPEC_SETTLE_DELAY", config.DefaultSettleDelay))*time.Millisecond, "Pause after goto and click steps (env: BEACONSPEC_SETTLE_DELAY, in ms)")
	runCmd.Flags().DurationVar(&typeDelayFlag, "type-delay", time.Duration(getEnvInt("BEACONSPEC_TYPE_DELAY", config.DefaultTypeDelay))*time.Millisecond, "Delay between keystrokes (env: BEACONSPEC_TYPE_DELAY, in ms)")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", time.Duration(getEnvInt("BEACONSPEC_TIMEOUT", 0))*time.Millisecond, "Limit for a whole run, 0 for none (env: BEACONSPEC_TIMEOUT, in ms)")

	// Variable flags
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a variable as name=value (repeatable)")
	runCmd.Flags().StringSliceVar(&envFileFlags, "env-file", splitList(getEnvString("BEACONSPEC_ENV_FILE", "")), "Load variables from .env files (env: BEACONSPEC_ENV_FILE)")

	// Output flags
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("BEACONSPEC_OUTPUT", output.FormatConsole), "Output format: console, json, junit (env: BEACONSPEC_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("BEACONSPEC_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: BEACONSPEC_OUTPUT_FILE)")
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("BEACONSPEC_VERBOSE", false), "Show every step and captured request counts (env: BEACONSPEC_VERBOSE)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("BEACONSPEC_NO_COLOR", false), "Disable colored output (env: BEACONSPEC_NO_COLOR)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("BEACONSPEC_BAIL", false), "Stop after the first file that does not pass (env: BEACONSPEC_BAIL)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run tests")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// overridden reports whether a flag was given on the command line or through
// its environment variable, so that it wins over the config file.
func overridden(cmd *cobra.Command, name, envKey string) bool {
	if cmd.Flags().Changed(name) {
		return true
	}
	_, ok := os.LookupEnv(envKey)
	return ok
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q (want name=value)", pair)
		}
		vars[name] = value
	}
	return vars, nil
}

// runnerConfig builds the runner settings: flags override the config file.
func runnerConfig(cmd *cobra.Command, cfg *config.Config, envFiles []string) (*runner.Config, error) {
	rc := &runner.Config{
		Headless:           cfg.GetHeadless(),
		SettleDelay:        cfg.GetSettleDelay(),
		TypeDelay:          cfg.GetTypeDelay(),
		NavigationTimeout:  cfg.GetNavigationTimeout(),
		ElementTimeout:     cfg.GetElementTimeout(),
		RequestWaitTimeout: cfg.GetRequestWaitTimeout(),
		RunTimeout:         cfg.GetRunTimeout(),
		Trackers:           cfg.Trackers,
		DataLayer:          cfg.DataLayer,
		ChromeFlags:        cfg.ChromeFlags,
		ChromePath:         cfg.ChromePath,
		UseOSEnv:           true,
	}
	if overridden(cmd, "headless", "BEACONSPEC_HEADLESS") {
		rc.Headless = headlessFlag
	}
	if overridden(cmd, "settle-delay", "BEACONSPEC_SETTLE_DELAY") {
		rc.SettleDelay = settleDelayFlag
	}
	if overridden(cmd, "type-delay", "BEACONSPEC_TYPE_DELAY") {
		rc.TypeDelay = typeDelayFlag
	}
	if overridden(cmd, "timeout", "BEACONSPEC_TIMEOUT") {
		rc.RunTimeout = timeoutFlag
	}
	if rc.SettleDelay < 0 || rc.TypeDelay < 0 || rc.RunTimeout < 0 {
		return nil, fmt.Errorf("delays and timeouts must not be negative")
	}

	envVars, err := env.LoadDotEnvFiles(envFiles...)
	if err != nil {
		return nil, err
	}
	rc.EnvVariables = envVars

	vars, err := parseVars(varFlags)
	if err != nil {
		return nil, err
	}
	rc.Variables = vars
	return rc, nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if !overridden(cmd, "output", "BEACONSPEC_OUTPUT") && cfg.Output != "" {
		outputFlag = cfg.Output
	}
	verbose := verboseFlag || cfg.GetVerbose()
	noColor := noColorFlag || cfg.GetNoColor()
	bail := bailFlag || cfg.GetBail()

	rc, err := runnerConfig(cmd, cfg, envFileFlags)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	files, err := collectFiles(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no test documents found"))
	}

	logger := observability.GetLogger()
	r := runner.NewRunner(rc, runner.WithLogger(logger))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runAll := func() (int, error) {
		w, closeOutput, err := openOutput(cmd)
		if err != nil {
			return ExitUsageError, err
		}
		defer closeOutput()

		formatter, err := output.New(strings.ToLower(outputFlag), w, verbose, noColor)
		if err != nil {
			return ExitUsageError, err
		}
		formatter.FormatHeader(version)

		start := time.Now()
		code := runFiles(ctx, r, files, formatter, bail)

		// Flush output for formatters that accumulate results
		if flushable, ok := formatter.(output.Flushable); ok {
			if err := flushable.Flush(time.Since(start)); err != nil {
				return code, fmt.Errorf("error writing output: %w", err)
			}
		}
		return code, nil
	}

	code, err := runAll()
	if err != nil {
		return withExitCode(code, err)
	}

	if !watchFlag {
		if code != ExitSuccess {
			return withExitCode(code, fmt.Errorf("%s", summary(code)))
		}
		return nil
	}
	return watch(ctx, cmd, args, files, logger, runAll)
}

func summary(code int) string {
	switch code {
	case ExitTestFailure:
		return "assertions failed"
	case ExitParseError:
		return "invalid test document"
	case ExitBrowserError:
		return "browser error"
	}
	return fmt.Sprintf("exit status %d", code)
}

func openOutput(cmd *cobra.Command) (io.Writer, func(), error) {
	if outputFileFlag == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(outputFileFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// runFiles runs each document in order and returns the most severe exit code.
func runFiles(ctx context.Context, r *runner.Runner, files []string, formatter output.Formatter, bail bool) int {
	code := ExitSuccess
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		fileCode := runOne(ctx, r, path, formatter)
		code = max(code, fileCode)
		if bail && fileCode != ExitSuccess {
			break
		}
	}
	return code
}

func runOne(ctx context.Context, r *runner.Runner, path string, formatter output.Formatter) int {
	file, err := parser.ParseFile(path)
	if err != nil {
		formatter.FormatError(fmt.Errorf("%s: %w", path, err))
		return ExitParseError
	}

	result, err := r.RunDocument(ctx, file)
	if result == nil {
		formatter.FormatError(fmt.Errorf("%s: %w", path, err))
		if errors.Is(err, parser.ErrInvalidInput) {
			return ExitParseError
		}
		return ExitBrowserError
	}

	formatter.FormatResult(result)
	switch {
	case err != nil:
		return ExitBrowserError
	case !result.Success():
		return ExitTestFailure
	}
	return ExitSuccess
}

func watch(ctx context.Context, cmd *cobra.Command, args, files []string, logger *zap.Logger, runAll func() (int, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Add files and directories to watch
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				logger.Warn("Cannot watch directory", zap.String("dir", dir), zap.Error(err))
			}
			watchedDirs[dir] = true
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	debounce := time.NewTimer(WatchDebounceDelay)
	debounce.Stop()
	defer debounce.Stop()
	var changed string

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if isTestFile(event.Name) {
					changed = event.Name
					debounce.Reset(WatchDebounceDelay)
				}
			}

		case <-debounce.C:
			fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running tests...\n\n", changed)
			if _, err := runAll(); err != nil {
				logger.Error("Re-run failed", zap.Error(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					if path != arg && skipDir(d.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				if isTestFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if isDocument(arg) {
			files = append(files, arg)
		}
	}

	return files, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}

func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// isTestFile reports whether a file found while walking is a test document.
func isTestFile(path string) bool {
	base := filepath.Base(path)
	if slices.Contains(config.ConfigFilenames, base) || base == "package.json" {
		return false
	}
	return isDocument(path)
}
