package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/assertions"
	"github.com/abdul-hamid-achik/beaconspec/packages/browser"
	"github.com/abdul-hamid-achik/beaconspec/packages/capture"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/env"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

// interpreter executes the steps of one run against an open page.
type interpreter struct {
	config    *Config
	page      browser.Page
	buffer    *capture.Buffer
	evaluator *assertions.Evaluator
	logger    *zap.Logger
	result    *RunResult
}

// run executes steps strictly in order. The first fatal step error stops the
// run and is returned as a *StepError.
func (in *interpreter) run(ctx context.Context, steps []parser.Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i, Action: step.Action(), Err: err}
		}

		start := time.Now()
		record := &StepRecord{
			Index:  i,
			Action: string(step.Action()),
			Target: describe(step),
			Status: StepOK,
		}
		in.result.Steps = append(in.result.Steps, record)

		err := in.execute(ctx, step, record)
		record.Duration = time.Since(start)

		if err != nil {
			record.Status = StepFailed
			record.Error = err.Error()
			in.logger.Error("Step failed",
				zap.Int("step", i),
				zap.Stringer("action", step.Action()),
				zap.String("target", record.Target),
				zap.Error(err),
			)
			return &StepError{Index: i, Action: step.Action(), Err: err}
		}

		in.logger.Info("Step finished",
			zap.Int("step", i),
			zap.Stringer("action", step.Action()),
			zap.String("target", record.Target),
			zap.String("status", string(record.Status)),
			zap.Duration("duration", record.Duration),
		)
	}
	return nil
}

// execute runs a single step. Only browser-control failures are returned;
// assertion outcomes and request wait timeouts are recorded instead.
func (in *interpreter) execute(ctx context.Context, step parser.Step, record *StepRecord) error {
	switch s := step.(type) {
	case parser.GotoStep:
		navCtx, cancel := withTimeout(ctx, in.config.NavigationTimeout)
		err := in.page.Navigate(navCtx, s.URL)
		cancel()
		if err != nil {
			return err
		}
		return in.settle(ctx)

	case parser.ClickStep:
		if err := in.waitForElement(ctx, s.Selector); err != nil {
			return err
		}
		if err := browser.Click(ctx, in.page, s.Selector); err != nil {
			return err
		}
		return in.settle(ctx)

	case parser.WaitStep:
		if s.Selector != "" {
			return in.waitForElement(ctx, s.Selector)
		}
		return sleep(ctx, s.Duration)

	case parser.TypeStep:
		if err := in.waitForElement(ctx, s.Selector); err != nil {
			return err
		}
		if s.Clear {
			if err := browser.Clear(ctx, in.page, s.Selector); err != nil {
				return err
			}
		}
		return in.page.Type(ctx, s.Selector, s.Text, in.config.TypeDelay)

	case parser.TestStep:
		res := in.evaluator.Evaluate(ctx, s.Assertion)
		in.result.Results = append(in.result.Results, res)
		if !res.Passed() {
			record.Error = res.Message
		}
		return nil

	case parser.WaitForRequestStep:
		if err := in.waitForRequest(ctx, s); err != nil {
			captured := in.buffer.Count(s.Tracker)
			record.Status = StepTimedOut
			record.Error = fmt.Sprintf("%v (%d of %d captured)", err, captured, max(s.Count, 1))
			in.logger.Warn("Request wait gave up",
				zap.String("tracker", s.Tracker),
				zap.Int("count", s.Count),
				zap.Int("captured", captured),
				zap.Error(err),
			)
			// The run's own deadline is still fatal.
			return ctx.Err()
		}
		return nil

	default:
		record.Status = StepSkipped
		record.Error = fmt.Sprintf("%v: %T", ErrUnrecognizedStep, step)
		in.logger.Warn("Step skipped",
			zap.Stringer("action", step.Action()),
			zap.Error(ErrUnrecognizedStep),
		)
		return nil
	}
}

func (in *interpreter) waitForElement(ctx context.Context, selector string) error {
	waitCtx, cancel := withTimeout(ctx, in.config.ElementTimeout)
	defer cancel()
	return in.page.WaitForSelector(waitCtx, selector)
}

// settle pauses after an action so that trackers fired asynchronously by the
// page can reach the buffer.
func (in *interpreter) settle(ctx context.Context) error {
	return sleep(ctx, in.config.SettleDelay)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// describe returns the step's target for logs and reports.
func describe(step parser.Step) string {
	switch s := step.(type) {
	case parser.GotoStep:
		return s.URL
	case parser.ClickStep:
		return s.Selector
	case parser.WaitStep:
		if s.Selector != "" {
			return s.Selector
		}
		return s.Duration.String()
	case parser.TypeStep:
		return s.Selector
	case parser.TestStep:
		meta := s.Assertion.Meta()
		if meta.Name != "" {
			return meta.Name
		}
		return meta.ID
	case parser.WaitForRequestStep:
		return s.Tracker
	}
	return ""
}

// interpolate resolves placeholders in every string a step carries. It returns
// new steps and leaves def untouched.
func interpolate(def *parser.TestDefinition, r *env.Resolver) []parser.Step {
	out := make([]parser.Step, 0, len(def.Steps))
	for _, step := range def.Steps {
		switch s := step.(type) {
		case parser.GotoStep:
			s.URL = r.Resolve(s.URL)
			out = append(out, s)
		case parser.ClickStep:
			s.Selector = r.Resolve(s.Selector)
			out = append(out, s)
		case parser.WaitStep:
			s.Selector = r.Resolve(s.Selector)
			out = append(out, s)
		case parser.TypeStep:
			s.Selector = r.Resolve(s.Selector)
			s.Text = r.Resolve(s.Text)
			out = append(out, s)
		case parser.TestStep:
			s.Assertion = interpolateAssertion(s.Assertion, r)
			out = append(out, s)
		default:
			out = append(out, step)
		}
	}
	return out
}

func interpolateAssertion(a parser.Assertion, r *env.Resolver) parser.Assertion {
	switch v := a.(type) {
	case parser.RequestMatchRegex:
		v.Key = r.Resolve(v.Key)
		v.Pattern = r.Resolve(v.Pattern)
		return v
	case parser.DataLayerKeyEquals:
		v.Key = r.Resolve(v.Key)
		if s, ok := v.Expected.(string); ok {
			v.Expected = r.Resolve(s)
		}
		return v
	}
	return a
}
