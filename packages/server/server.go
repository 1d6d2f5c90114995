// Package server exposes the step interpreter over HTTP.
//
// A run is requested with POST / (or POST /run) and a body of the same shape
// as a test document:
//
//	{"test": {...}, "options": {"headless": true, "trackRequests": [...]}}
//
// The response is either 200 with a JSON array of assertion results or 400
// with {"error": "..."}. Each request launches its own browser.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
)

const (
	DefaultAddr         = ":8080"
	DefaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 10 * time.Second
)

// Runner executes one test definition. *runner.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, def *parser.TestDefinition, opts *parser.Options) (*runner.RunResult, error)
}

type Server struct {
	runner   Runner
	addr     string
	maxBody  int64
	limiter  *rate.Limiter
	logger   *zap.Logger
	listener net.Listener
}

// Option is a functional option for Server
type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithRateLimit admits at most perSecond runs per second with the given burst.
// Requests over the limit wait for a token instead of being rejected. A
// non-positive rate disables the limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithListener serves on an existing listener instead of binding addr.
func WithListener(l net.Listener) Option {
	return func(s *Server) {
		s.listener = l
	}
}

func NewServer(r Runner, opts ...Option) *Server {
	s := &Server{
		runner:  r,
		addr:    DefaultAddr,
		maxBody: DefaultMaxBodyBytes,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")
	return s
}

// Handler returns the HTTP handler serving run requests and health checks.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/", s.handleRun)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully and lets
// in-flight runs finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
