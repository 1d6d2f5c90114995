package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeLauncher starts a local Chrome or Chromium through chromedp.
type ChromeLauncher struct {
	logger *zap.Logger
}

type ChromeOption func(*ChromeLauncher)

func WithLogger(logger *zap.Logger) ChromeOption {
	return func(l *ChromeLauncher) {
		l.logger = logger
	}
}

func NewChromeLauncher(opts ...ChromeOption) *ChromeLauncher {
	l := &ChromeLauncher{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("browser")
	return l
}

func (l *ChromeLauncher) allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("disable-extensions", true),
	)
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}

	for _, arg := range opts.Flags {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			out = append(out, chromedp.Flag(name, value))
		} else {
			out = append(out, chromedp.Flag(name, true))
		}
	}

	// Containers usually lack the kernel features the sandbox needs.
	if runtime.GOOS == "linux" {
		out = append(out,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return out
}

// Launch starts the browser process. The process lives until Close is called
// or ctx is cancelled.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	l.logger.Debug("Browser launched", zap.Bool("headless", opts.Headless))
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	closeOnce   sync.Once
	closeErr    error
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	p := &chromePage{
		ctx:    tabCtx,
		cancel: tabCancel,
		logger: b.logger,
	}

	chromedp.ListenTarget(tabCtx, p.onEvent)

	if err := p.run(ctx, page.SetLifecycleEventsEnabled(true)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	p.mu.Lock()
	p.frameID = cdp.FrameID(chromedp.FromContext(tabCtx).Target.TargetID)
	p.mu.Unlock()
	return p, nil
}

func (b *chromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
	})
	return b.closeErr
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	frameID cdp.FrameID
	handler RequestHandler
	// idle is closed on the first networkIdle after a new document starts loading.
	idle      chan struct{}
	idleArmed bool
}

func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *fetch.EventRequestPaused:
		p.onRequestPaused(e)
	case *page.EventLifecycleEvent:
		p.onLifecycle(e)
	}
}

func (p *chromePage) onRequestPaused(e *fetch.EventRequestPaused) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	// The decision is taken here, in event order; only the reply is sent off
	// the listener goroutine since listeners must not block on the connection.
	abort := h != nil && h(e.Request.URL)

	go func() {
		exec := cdp.WithExecutor(p.ctx, chromedp.FromContext(p.ctx).Target)
		var err error
		if abort {
			err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(exec)
		} else {
			err = fetch.ContinueRequest(e.RequestID).Do(exec)
		}
		if err != nil && p.ctx.Err() == nil {
			p.logger.Debug("Intercepted request reply failed",
				zap.String("url", e.Request.URL),
				zap.Bool("abort", abort),
				zap.Error(err),
			)
		}
	}()
}

func (p *chromePage) onLifecycle(e *page.EventLifecycleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frameID != "" && e.FrameID != p.frameID {
		return
	}
	if p.idle == nil {
		return
	}
	switch e.Name {
	case "init":
		p.idleArmed = true
	case "networkIdle":
		if p.idleArmed {
			close(p.idle)
			p.idle = nil
			p.idleArmed = false
		}
	}
}

// run executes actions on the tab while honouring the caller's deadline and
// cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Intercept(ctx context.Context, h RequestHandler) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()

	if err := p.run(ctx, fetch.Enable()); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	idle := make(chan struct{})
	p.mu.Lock()
	p.idle = idle
	p.idleArmed = false
	p.mu.Unlock()

	var loaderID cdp.LoaderID
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, id, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		loaderID = id
		return nil
	}))
	if err != nil {
		p.disarm()
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
	}
	return p.waitForIdle(ctx, url, loaderID, idle)
}

// waitForIdle blocks until idle is closed. An empty loaderID is a
// same-document navigation, which starts no load and never goes idle.
func (p *chromePage) waitForIdle(ctx context.Context, url string, loaderID cdp.LoaderID, idle <-chan struct{}) error {
	if loaderID == "" {
		p.disarm()
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		p.disarm()
		return fmt.Errorf("%w: %s: waiting for network idle: %w", ErrNavigation, url, ctx.Err())
	case <-p.ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, p.ctx.Err())
	}
}

func (p *chromePage) disarm() {
	p.mu.Lock()
	p.idle = nil
	p.idleArmed = false
	p.mu.Unlock()
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrElementNotFound, selector, err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	wrapped := fmt.Sprintf(`(async () => { const v = await (%s); return JSON.stringify(v === undefined ? null : v); })()`, expression)

	var out string
	err := p.run(ctx, chromedp.Evaluate(wrapped, &out, func(params *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return params.WithAwaitPromise(true).WithReturnByValue(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	return json.RawMessage(out), nil
}

func (p *chromePage) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if err := p.run(ctx, chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrElementNotFound, selector, err)
	}

	first := true
	for _, r := range text {
		if !first && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		first = false
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("type into %s: %w", selector, err)
		}
	}
	return nil
}

func (p *chromePage) Close() error {
	p.mu.Lock()
	p.handler = nil
	p.mu.Unlock()

	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}
