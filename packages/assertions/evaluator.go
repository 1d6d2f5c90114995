package assertions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/capture"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

var (
	ErrNoRequestsCaptured   = errors.New("no requests captured")
	ErrDataLayerUnavailable = errors.New("dataLayer unavailable")
	ErrInvalidPattern       = errors.New("invalid pattern")
)

type Outcome string

const (
	Pass  Outcome = "PASS"
	Fail  Outcome = "FAIL"
	Error Outcome = "ERROR"
)

// Result is the outcome of one test step.
type Result struct {
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Type     string        `json:"type"`
	Outcome  Outcome       `json:"result"`
	Message  string        `json:"message,omitempty"`
	Expected any           `json:"expected,omitempty"`
	Actual   any           `json:"actual,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (r *Result) Passed() bool {
	return r.Outcome == Pass
}

// RequestSource gives read access to captured requests. *capture.Buffer satisfies it.
type RequestSource interface {
	Requests(tracker string) ([]capture.CapturedRequest, error)
	Last(tracker string) (capture.CapturedRequest, bool, error)
}

// DataLayerSource returns the page's event layer serialised as JSON, or JSON null
// when the page has none.
type DataLayerSource interface {
	DataLayer(ctx context.Context) (json.RawMessage, error)
}

type Evaluator struct {
	requests  RequestSource
	dataLayer DataLayerSource
	logger    *zap.Logger
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

func WithDataLayer(src DataLayerSource) EvaluatorOption {
	return func(e *Evaluator) {
		e.dataLayer = src
	}
}

func WithLogger(logger *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func NewEvaluator(requests RequestSource, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		requests: requests,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("assertions")
	return e
}

// Evaluate runs a single assertion. It never returns nil and never panics on
// empty data: missing requests give FAIL, broken inputs give ERROR.
func (e *Evaluator) Evaluate(ctx context.Context, a parser.Assertion) *Result {
	start := time.Now()
	meta := a.Meta()
	result := &Result{
		ID:   meta.ID,
		Name: meta.Name,
		Type: string(a.Type()),
	}

	var err error
	switch v := a.(type) {
	case parser.RequestMatchRegex:
		err = e.requestMatchRegex(v, result)
	case parser.DataLayerKeyEquals:
		err = e.dataLayerKeyEquals(ctx, v, result)
	default:
		err = fmt.Errorf("unsupported assertion type %q", a.Type())
		result.Outcome = Error
	}
	if err != nil {
		result.Message = err.Error()
		e.logger.Warn("Assertion did not pass",
			zap.String("id", result.ID),
			zap.String("name", result.Name),
			zap.String("result", string(result.Outcome)),
			zap.Error(err),
		)
	}

	result.Duration = time.Since(start)
	return result
}

func (e *Evaluator) requestMatchRegex(a parser.RequestMatchRegex, result *Result) error {
	result.Expected = a.Pattern

	re, err := compilePattern(a.Pattern)
	if err != nil {
		result.Outcome = Error
		return err
	}

	var candidates []capture.CapturedRequest
	if a.MatchAny {
		candidates, err = e.requests.Requests(a.Tracker)
	} else {
		var last capture.CapturedRequest
		var ok bool
		last, ok, err = e.requests.Last(a.Tracker)
		if ok {
			candidates = []capture.CapturedRequest{last}
		}
	}
	if err != nil {
		result.Outcome = Error
		return err
	}
	if len(candidates) == 0 {
		result.Outcome = Fail
		return fmt.Errorf("%w for %q", ErrNoRequestsCaptured, a.Tracker)
	}

	var seen []string
	for _, c := range candidates {
		value, ok := c.Params[a.Key]
		if !ok {
			continue
		}
		seen = append(seen, value)
		if re.MatchString(value) {
			result.Outcome = Pass
			result.Actual = value
			return nil
		}
	}

	result.Outcome = Fail
	if len(seen) == 0 {
		return fmt.Errorf("key %q not present in %d request(s) for %q", a.Key, len(candidates), a.Tracker)
	}
	result.Actual = seen
	return fmt.Errorf("expected %q to match /%s/ in %d request(s) for %q", a.Key, re.String(), len(candidates), a.Tracker)
}

func (e *Evaluator) dataLayerKeyEquals(ctx context.Context, a parser.DataLayerKeyEquals, result *Result) error {
	result.Expected = a.Expected

	if e.dataLayer == nil {
		result.Outcome = Error
		return ErrDataLayerUnavailable
	}
	raw, err := e.dataLayer.DataLayer(ctx)
	if err != nil {
		result.Outcome = Error
		return fmt.Errorf("%w: %w", ErrDataLayerUnavailable, err)
	}

	layer := gjson.ParseBytes(raw)
	if !layer.IsArray() {
		result.Outcome = Error
		return ErrDataLayerUnavailable
	}

	var actual []any
	matched := false
	layer.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		entry.ForEach(func(k, v gjson.Result) bool {
			if k.String() != a.Key {
				return true
			}
			actual = append(actual, v.Value())
			matched = equals(v.Value(), a.Expected)
			return false
		})
		return !matched
	})

	if matched {
		result.Outcome = Pass
		result.Actual = a.Expected
		return nil
	}
	result.Outcome = Fail
	result.Actual = actual
	if len(actual) == 0 {
		return fmt.Errorf("no dataLayer entry has key %q", a.Key)
	}
	return fmt.Errorf("expected dataLayer %q to equal %v, got %v", a.Key, a.Expected, actual)
}

// compilePattern takes the pattern as written; slashes are literal.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return re, nil
}

// equals follows loose equality as pages compare dataLayer values: a boolean or
// number on either side turns both sides into numbers, so "42" equals 42 and
// 1 equals true while "true" does not. Other values compare by string form.
func equals(actual, expected any) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	if isNumeric(actual) || isNumeric(expected) {
		actualNum, aOk := toNumber(actual)
		expectedNum, eOk := toNumber(expected)
		return aOk && eOk && actualNum == expectedNum
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case bool, float64, float32, int, int64, int32:
		return true
	}
	return false
}

// toNumber converts primitives the way a page script would; a blank string
// is zero and anything unparseable has no numeric value.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
