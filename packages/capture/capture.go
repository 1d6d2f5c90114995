package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

var (
	ErrUnknownTracker = errors.New("unknown tracker")
	ErrWaitTimeout    = errors.New("timed out waiting for requests")
)

// Decision tells the browser what to do with an intercepted request.
type Decision int

const (
	Continue Decision = iota
	Abort
)

func (d Decision) String() string {
	if d == Abort {
		return "abort"
	}
	return "continue"
}

// CapturedRequest is one decoded request seen for a tracker.
type CapturedRequest struct {
	URL        string    `json:"url"`
	Params     Params    `json:"params"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Buffer is the request store of a single run. Handle may be called from the
// browser's event goroutines while steps read from it.
type Buffer struct {
	trackers []parser.TrackerConfig
	logger   *zap.Logger

	mu       sync.Mutex
	requests map[string][]CapturedRequest
	changed  chan struct{}
}

type Option func(*Buffer)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Buffer) {
		b.logger = logger
	}
}

func NewBuffer(trackers []parser.TrackerConfig, opts ...Option) *Buffer {
	b := &Buffer{
		trackers: append([]parser.TrackerConfig(nil), trackers...),
		logger:   zap.NewNop(),
		requests: make(map[string][]CapturedRequest, len(trackers)),
		changed:  make(chan struct{}),
	}
	for _, t := range trackers {
		b.requests[t.Name] = nil
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("capture")
	return b
}

// Trackers returns the configured trackers.
func (b *Buffer) Trackers() []parser.TrackerConfig {
	return append([]parser.TrackerConfig(nil), b.trackers...)
}

// Handle classifies an outgoing request. Every tracker whose substring is found in
// the URL receives a copy of the decoded parameters; the request is aborted when
// any of those trackers asks for it. The decision is returned even when decoding
// fails.
func (b *Buffer) Handle(rawURL string) Decision {
	var matched []parser.TrackerConfig
	decision := Continue
	for _, t := range b.trackers {
		if strings.Contains(rawURL, t.URL) {
			matched = append(matched, t)
			if t.AbortRequest {
				decision = Abort
			}
		}
	}
	if len(matched) == 0 {
		return Continue
	}

	params, err := DecodeParams(rawURL)
	if err != nil {
		b.logger.Warn("Tracked request not captured",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return decision
	}

	now := time.Now()
	b.mu.Lock()
	for _, t := range matched {
		b.requests[t.Name] = append(b.requests[t.Name], CapturedRequest{
			URL:        rawURL,
			Params:     copyParams(params),
			CapturedAt: now,
		})
	}
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()

	for _, t := range matched {
		b.logger.Debug("Captured request",
			zap.String("tracker", t.Name),
			zap.String("url", rawURL),
			zap.Stringer("decision", decision),
		)
	}
	return decision
}

// Requests returns a snapshot of the tracker's captured requests in arrival order.
func (b *Buffer) Requests(tracker string) ([]CapturedRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, ok := b.requests[tracker]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTracker, tracker)
	}
	return append([]CapturedRequest(nil), list...), nil
}

// Last returns the most recent request of a tracker.
func (b *Buffer) Last(tracker string) (CapturedRequest, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, ok := b.requests[tracker]
	if !ok {
		return CapturedRequest{}, false, fmt.Errorf("%w: %q", ErrUnknownTracker, tracker)
	}
	if len(list) == 0 {
		return CapturedRequest{}, false, nil
	}
	return list[len(list)-1], true, nil
}

// Count returns how many requests a tracker has captured.
func (b *Buffer) Count(tracker string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests[tracker])
}

// WaitFor blocks until tracker holds at least n requests or ctx is done. The
// returned error wraps ErrWaitTimeout when ctx expired first.
func (b *Buffer) WaitFor(ctx context.Context, tracker string, n int) error {
	for {
		b.mu.Lock()
		list, ok := b.requests[tracker]
		changed := b.changed
		b.mu.Unlock()

		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTracker, tracker)
		}
		if len(list) >= n {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("%w: %q has %d of %d: %w", ErrWaitTimeout, tracker, len(list), n, ctx.Err())
		}
	}
}

// Snapshot copies the whole store, keyed by tracker name.
func (b *Buffer) Snapshot() map[string][]CapturedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]CapturedRequest, len(b.requests))
	for name, list := range b.requests {
		out[name] = append([]CapturedRequest(nil), list...)
	}
	return out
}

func copyParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
