package browser

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrLaunch          = errors.New("browser launch failed")
	ErrNavigation      = errors.New("navigation failed")
	ErrElementNotFound = errors.New("element not found")
	ErrEvaluation      = errors.New("script evaluation failed")
)

type LaunchOptions struct {
	Headless bool
	// Flags are extra command line switches, "--name=value" or "--name".
	Flags []string
	// ExecPath overrides browser discovery when set.
	ExecPath string
}

type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// RequestHandler is called for every outgoing request before it is sent and
// reports whether the request must be aborted. It runs on the browser's event
// goroutine and must not block.
type RequestHandler func(url string) (abort bool)

type Page interface {
	// Intercept routes every subsequent request of the page through h.
	Intercept(ctx context.Context, h RequestHandler) error
	// Navigate loads url and returns once the network has gone idle.
	Navigate(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string) error
	// Evaluate runs a JavaScript expression, awaiting it if it is a promise,
	// and returns its value as JSON. undefined is returned as null.
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)
	// Type focuses selector and sends text one key at a time, pausing delay
	// between keys.
	Type(ctx context.Context, selector, text string, delay time.Duration) error
	Close() error
}
