package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/config"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
	"github.com/abdul-hamid-achik/beaconspec/packages/observability"
	"github.com/abdul-hamid-achik/beaconspec/packages/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept test runs over HTTP",
	Long: `Start an HTTP server that runs test documents posted to it.

POST / or POST /run with a body shaped like a test document returns the
assertion results as a JSON array. GET /healthz reports readiness.

Examples:
  beaconspec serve
  beaconspec serve --addr :9000 --rate-limit 0.5 --burst 2`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

var (
	addrFlag         string
	rateLimitFlag    float64
	burstFlag        int
	maxBodyBytesFlag int
	serveEnvFiles    []string
)

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", getEnvString("BEACONSPEC_ADDR", ""), "Listen address (env: BEACONSPEC_ADDR)")
	serveCmd.Flags().Float64Var(&rateLimitFlag, "rate-limit", getEnvFloat("BEACONSPEC_RATE_LIMIT", 0), "Runs admitted per second, 0 for unlimited (env: BEACONSPEC_RATE_LIMIT)")
	serveCmd.Flags().IntVar(&burstFlag, "burst", getEnvInt("BEACONSPEC_BURST", 0), "Runs admitted at once above the rate (env: BEACONSPEC_BURST)")
	serveCmd.Flags().IntVar(&maxBodyBytesFlag, "max-body-bytes", getEnvInt("BEACONSPEC_MAX_BODY_BYTES", 0), "Largest accepted request body (env: BEACONSPEC_MAX_BODY_BYTES)")
	serveCmd.Flags().StringSliceVar(&serveEnvFiles, "env-file", splitList(getEnvString("BEACONSPEC_ENV_FILE", "")), "Load variables from .env files (env: BEACONSPEC_ENV_FILE)")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	srvCfg := cfg.Server
	if addrFlag != "" {
		srvCfg.Addr = addrFlag
	}
	if overridden(cmd, "rate-limit", "BEACONSPEC_RATE_LIMIT") {
		srvCfg.RateLimit = rateLimitFlag
	}
	if burstFlag > 0 {
		srvCfg.Burst = burstFlag
	}
	if maxBodyBytesFlag > 0 {
		srvCfg.MaxBodyBytes = int64(maxBodyBytesFlag)
	}

	rc, err := serveRunnerConfig(cmd, cfg)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	logger := observability.GetLogger()
	srv := server.NewServer(
		runner.NewRunner(rc, runner.WithLogger(logger)),
		server.WithAddr(srvCfg.Addr),
		server.WithRateLimit(srvCfg.RateLimit, srvCfg.Burst),
		server.WithMaxBodyBytes(srvCfg.MaxBodyBytes),
		server.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("Received signal, stopping")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("server: %w", err))
	}
	return nil
}

// serveRunnerConfig builds the runner settings for posted definitions. Their
// placeholders resolve from their own variables and --env-file, never from the
// process environment of the server.
func serveRunnerConfig(cmd *cobra.Command, cfg *config.Config) (*runner.Config, error) {
	rc, err := runnerConfig(cmd, cfg, serveEnvFiles)
	if err != nil {
		return nil, err
	}
	rc.UseOSEnv = false
	return rc, nil
}
