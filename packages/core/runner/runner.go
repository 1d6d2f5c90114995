package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/assertions"
	"github.com/abdul-hamid-achik/beaconspec/packages/browser"
	"github.com/abdul-hamid-achik/beaconspec/packages/capture"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/env"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

const (
	DefaultSettleDelay        = time.Second
	DefaultTypeDelay          = 200 * time.Millisecond
	DefaultNavigationTimeout  = 30 * time.Second
	DefaultElementTimeout     = 30 * time.Second
	DefaultRequestWaitTimeout = 10 * time.Second
)

type Runner struct {
	config   *Config
	launcher browser.Launcher
	logger   *zap.Logger
}

// Config holds run settings. Zero delays mean no pause; zero timeouts mean no
// limit beyond the caller's context.
type Config struct {
	Headless           bool
	SettleDelay        time.Duration
	TypeDelay          time.Duration
	NavigationTimeout  time.Duration
	ElementTimeout     time.Duration
	RequestWaitTimeout time.Duration
	RunTimeout         time.Duration
	// Trackers are merged under a definition's own trackRequests.
	Trackers    []parser.TrackerConfig
	DataLayer   string
	ChromeFlags []string
	ChromePath  string
	// EnvVariables come from .env files and rank below definition variables.
	EnvVariables map[string]string
	// Variables come from the command line and override everything.
	Variables map[string]string
	// UseOSEnv lets {{name}} fall back to the process environment. Leave it
	// off when definitions come from untrusted callers.
	UseOSEnv bool
}

func DefaultConfig() *Config {
	return &Config{
		Headless:           true,
		SettleDelay:        DefaultSettleDelay,
		TypeDelay:          DefaultTypeDelay,
		NavigationTimeout:  DefaultNavigationTimeout,
		ElementTimeout:     DefaultElementTimeout,
		RequestWaitTimeout: DefaultRequestWaitTimeout,
		DataLayer:          browser.DefaultDataLayer,
	}
}

type Option func(*Runner)

func WithLauncher(l browser.Launcher) Option {
	return func(r *Runner) {
		r.launcher = l
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Runner{
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.launcher == nil {
		r.launcher = browser.NewChromeLauncher(browser.WithLogger(r.logger))
	}
	r.logger = r.logger.Named("runner")
	return r
}

type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
	StepTimedOut StepStatus = "timeout"
)

// StepRecord describes how one step went.
type StepRecord struct {
	Index    int           `json:"index"`
	Action   string        `json:"action"`
	Target   string        `json:"target,omitempty"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the report of one run.
type RunResult struct {
	ID       string                               `json:"id"`
	File     string                               `json:"file,omitempty"`
	Name     string                               `json:"name"`
	Results  []*assertions.Result                 `json:"results"`
	Steps    []*StepRecord                        `json:"steps"`
	Captured map[string][]capture.CapturedRequest `json:"captured,omitempty"`
	Passed   int                                  `json:"passed"`
	Failed   int                                  `json:"failed"`
	Errored  int                                  `json:"errored"`
	Error    string                               `json:"error,omitempty"`
	Duration time.Duration                        `json:"duration"`
}

// Success reports whether every assertion passed and no step aborted the run.
func (r *RunResult) Success() bool {
	return r.Error == "" && r.Failed == 0 && r.Errored == 0
}

func (r *RunResult) tally() {
	r.Passed, r.Failed, r.Errored = 0, 0, 0
	for _, res := range r.Results {
		switch res.Outcome {
		case assertions.Pass:
			r.Passed++
		case assertions.Fail:
			r.Failed++
		default:
			r.Errored++
		}
	}
}

// RunFile parses and runs a test document from disk.
func (r *Runner) RunFile(ctx context.Context, path string) (*RunResult, error) {
	file, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}
	return r.RunDocument(ctx, file)
}

func (r *Runner) RunDocument(ctx context.Context, file *parser.File) (*RunResult, error) {
	result, err := r.Run(ctx, file.Test, file.Options)
	if result != nil {
		result.File = file.Path
	}
	return result, err
}

// Run executes def in a fresh browser. A non-nil error with a non-nil result
// means a step aborted the run; the result holds everything up to that step.
// Invalid input returns a nil result and no browser is launched.
func (r *Runner) Run(ctx context.Context, def *parser.TestDefinition, opts *parser.Options) (*RunResult, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: missing test definition", parser.ErrInvalidInput)
	}
	var own []parser.TrackerConfig
	if opts != nil {
		own = opts.TrackRequests
	}
	trackers := parser.MergeTrackers(r.config.Trackers, own)
	if err := parser.CheckTrackerReferences(def, trackers); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RunResult{
		ID:      uuid.NewString(),
		Name:    def.Name,
		Results: []*assertions.Result{},
		Steps:   []*StepRecord{},
	}
	logger := r.logger.With(zap.String("run", result.ID), zap.String("test", def.Name))

	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	steps := interpolate(def, r.resolver(def, logger))

	err := r.session(ctx, logger, trackers, opts.GetHeadless(r.config.Headless), steps, result)

	result.tally()
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		logger.Error("Run aborted", zap.Error(err))
		return result, err
	}
	logger.Info("Run finished",
		zap.Int("passed", result.Passed),
		zap.Int("failed", result.Failed),
		zap.Int("errored", result.Errored),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// session owns the browser for one run and always closes it.
func (r *Runner) session(ctx context.Context, logger *zap.Logger, trackers []parser.TrackerConfig, headless bool, steps []parser.Step, result *RunResult) error {
	b, err := r.launcher.Launch(ctx, browser.LaunchOptions{
		Headless: headless,
		Flags:    r.config.ChromeFlags,
		ExecPath: r.config.ChromePath,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			logger.Debug("Browser close failed", zap.Error(closeErr))
		}
	}()

	page, err := b.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", browser.ErrLaunch, err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			logger.Debug("Page close failed", zap.Error(closeErr))
		}
	}()

	buffer := capture.NewBuffer(trackers, capture.WithLogger(logger))
	defer func() {
		result.Captured = buffer.Snapshot()
	}()

	// Interception must be live before the first navigation.
	if len(trackers) > 0 {
		err := page.Intercept(ctx, func(url string) bool {
			return buffer.Handle(url) == capture.Abort
		})
		if err != nil {
			return err
		}
	}

	in := &interpreter{
		config: r.config,
		page:   page,
		buffer: buffer,
		evaluator: assertions.NewEvaluator(buffer,
			assertions.WithDataLayer(browser.DataLayer{Page: page, Variable: r.config.DataLayer}),
			assertions.WithLogger(logger),
		),
		logger: logger,
		result: result,
	}
	return in.run(ctx, steps)
}

func (r *Runner) resolver(def *parser.TestDefinition, logger *zap.Logger) *env.Resolver {
	res := env.NewResolver()
	res.SetUseOSEnv(r.config.UseOSEnv)
	res.SetWarnFunc(func(format string, args ...any) {
		logger.Warn("Placeholder not resolved", zap.String("detail", fmt.Sprintf(format, args...)))
	})
	res.SetVariables(r.config.EnvVariables)
	for k, v := range def.Variables {
		res.SetVariable(k, res.Resolve(v))
	}
	res.SetVariables(r.config.Variables)
	return res
}
