package parser

import "time"

// File is a parsed test document: the test definition plus its run options.
// The on-disk shape is identical to the body accepted by the invocation server.
type File struct {
	Path    string
	Test    *TestDefinition
	Options *Options
}

type TestDefinition struct {
	Name      string
	Variables map[string]string
	Steps     []Step
}

// Options configure a single run.
type Options struct {
	// Headless is nil when the document does not say; callers fall back to config.
	Headless      *bool
	TrackRequests []TrackerConfig
}

// TrackerConfig names a category of outbound requests to capture.
type TrackerConfig struct {
	Name         string `json:"name" yaml:"name"`
	URL          string `json:"url" yaml:"url"`
	AbortRequest bool   `json:"abortRequest,omitempty" yaml:"abortRequest,omitempty"`
}

// TrackerNames returns the tracker names in declaration order.
func (o *Options) TrackerNames() []string {
	if o == nil {
		return nil
	}
	names := make([]string, 0, len(o.TrackRequests))
	for _, t := range o.TrackRequests {
		names = append(names, t.Name)
	}
	return names
}

// GetHeadless returns the headless setting, or def when the document left it unset.
func (o *Options) GetHeadless(def bool) bool {
	if o == nil || o.Headless == nil {
		return def
	}
	return *o.Headless
}

type Action string

const (
	ActionGoto           Action = "goto"
	ActionClick          Action = "click"
	ActionWait           Action = "wait"
	ActionType           Action = "type"
	ActionTest           Action = "test"
	ActionWaitForRequest Action = "waitForRequest"
)

func (a Action) String() string {
	return string(a)
}

// Step is one entry of a test definition. The set of implementations is closed:
// only the types in this package satisfy it.
type Step interface {
	Action() Action
	step()
}

type GotoStep struct {
	URL string
}

type ClickStep struct {
	Selector string
}

// WaitStep waits for Duration when Selector is empty, otherwise for Selector to appear.
type WaitStep struct {
	Duration time.Duration
	Selector string
}

type TypeStep struct {
	Selector string
	Text     string
	Clear    bool
}

type TestStep struct {
	Assertion Assertion
}

// WaitForRequestStep blocks until Tracker has captured at least Count requests.
// A zero Timeout means the runner's configured default.
type WaitForRequestStep struct {
	Tracker string
	Count   int
	Timeout time.Duration
}

func (GotoStep) Action() Action           { return ActionGoto }
func (ClickStep) Action() Action          { return ActionClick }
func (WaitStep) Action() Action           { return ActionWait }
func (TypeStep) Action() Action           { return ActionType }
func (TestStep) Action() Action           { return ActionTest }
func (WaitForRequestStep) Action() Action { return ActionWaitForRequest }

func (GotoStep) step()           {}
func (ClickStep) step()          {}
func (WaitStep) step()           {}
func (TypeStep) step()           {}
func (TestStep) step()           {}
func (WaitForRequestStep) step() {}

type AssertionType string

const (
	AssertRequestMatchRegex      AssertionType = "requestMatchRegex"
	AssertMatchDataLayerKeyValue AssertionType = "matchDataLayerKeyValue"
)

// AssertionMeta identifies an assertion in results.
type AssertionMeta struct {
	ID          string
	Name        string
	Description string
}

// Assertion is a typed check carried by a test step. Like Step, the set of
// implementations is closed.
type Assertion interface {
	Type() AssertionType
	Meta() AssertionMeta
	assertion()
}

// RequestMatchRegex checks a captured query parameter of a tracker against a pattern.
type RequestMatchRegex struct {
	AssertionMeta
	Tracker  string
	Key      string
	Pattern  string
	MatchAny bool
}

// DataLayerKeyEquals checks the page's event layer for an entry whose Key loosely
// equals Expected.
type DataLayerKeyEquals struct {
	AssertionMeta
	Key      string
	Expected any
}

func (RequestMatchRegex) Type() AssertionType  { return AssertRequestMatchRegex }
func (DataLayerKeyEquals) Type() AssertionType { return AssertMatchDataLayerKeyValue }

func (a RequestMatchRegex) Meta() AssertionMeta  { return a.AssertionMeta }
func (a DataLayerKeyEquals) Meta() AssertionMeta { return a.AssertionMeta }

func (RequestMatchRegex) assertion()  {}
func (DataLayerKeyEquals) assertion() {}
