package runner

import (
	"context"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

// waitForRequest blocks until the step's tracker has captured enough requests.
// The step's own timeout wins over the configured default.
func (in *interpreter) waitForRequest(ctx context.Context, s parser.WaitForRequestStep) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = in.config.RequestWaitTimeout
	}
	count := s.Count
	if count < 1 {
		count = 1
	}

	waitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return in.buffer.WaitFor(waitCtx, s.Tracker, count)
}
