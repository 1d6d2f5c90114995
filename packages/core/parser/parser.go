package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidInput marks documents that cannot be run. No browser is launched for them.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError is a single problem found in a test document.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" || e.Path == "(root)" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func invalid(errs ValidationErrors) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, errs)
}

type wireFile struct {
	Test    *wireTest    `json:"test"`
	Options *wireOptions `json:"options"`
}

type wireTest struct {
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables"`
	Steps     []wireStep        `json:"steps"`
}

type wireStep struct {
	Action  string          `json:"action"`
	Value   json.RawMessage `json:"value"`
	Element string          `json:"element"`
	Clear   bool            `json:"clear"`
	Test    *wireAssertion  `json:"test"`
	For     string          `json:"for"`
	Count   int             `json:"count"`
	Timeout float64         `json:"timeout"`
}

type wireMatch struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type wireAssertionOptions struct {
	MatchAnyRequest bool `json:"matchAnyRequest"`
}

type wireAssertion struct {
	ID          any                   `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Type        string                `json:"type"`
	For         string                `json:"for"`
	Match       *wireMatch            `json:"match"`
	Options     *wireAssertionOptions `json:"options"`
	Key         string                `json:"key"`
	Value       any                   `json:"value"`
}

type wireOptions struct {
	Headless      *bool           `json:"headless"`
	TrackRequests []TrackerConfig `json:"trackRequests"`
}

// ParseFile reads a JSON or YAML test document from disk.
func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(content, path)
}

// Parse decodes a test document. Files ending in .yaml or .yml are read as YAML,
// everything else as JSON.
func Parse(data []byte, filename string) (*File, error) {
	if IsYAML(filename) {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, invalid(ValidationErrors{{Message: fmt.Sprintf("yaml: %v", err)}})
		}
		data = converted
	}
	return ParseJSON(data, filename)
}

// ParseJSON validates and decodes a JSON test document.
func ParseJSON(data []byte, filename string) (*File, error) {
	if !json.Valid(data) {
		return nil, invalid(ValidationErrors{{Message: "document is not valid JSON"}})
	}
	if errs := validateStructure(data); len(errs) > 0 {
		return nil, invalid(errs)
	}

	var wf wireFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wf); err != nil {
		return nil, invalid(ValidationErrors{{Message: err.Error()}})
	}
	if wf.Test == nil {
		return nil, invalid(ValidationErrors{{Path: "test", Message: "test is required"}})
	}

	var errs ValidationErrors
	def := convertTest(wf.Test, &errs)
	opts := convertOptions(wf.Options, &errs)
	if len(errs) > 0 {
		return nil, invalid(errs)
	}

	return &File{Path: filename, Test: def, Options: opts}, nil
}

// IsYAML reports whether a file name carries a YAML extension.
func IsYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func convertTest(wt *wireTest, errs *ValidationErrors) *TestDefinition {
	def := &TestDefinition{
		Name:      wt.Name,
		Variables: wt.Variables,
		Steps:     make([]Step, 0, len(wt.Steps)),
	}
	for i, ws := range wt.Steps {
		step, err := convertStep(ws, fmt.Sprintf("test.steps.%d", i))
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		def.Steps = append(def.Steps, step)
	}
	return def
}

func convertStep(ws wireStep, path string) (Step, *ValidationError) {
	switch Action(ws.Action) {
	case ActionGoto:
		url, ok := rawString(ws.Value)
		if !ok || url == "" {
			return nil, &ValidationError{Path: path + ".value", Message: "goto needs a URL"}
		}
		return GotoStep{URL: url}, nil
	case ActionClick:
		if ws.Element == "" {
			return nil, &ValidationError{Path: path + ".element", Message: "click needs an element selector"}
		}
		return ClickStep{Selector: ws.Element}, nil
	case ActionWait:
		if sel, ok := rawString(ws.Value); ok {
			if sel == "" {
				return nil, &ValidationError{Path: path + ".value", Message: "wait selector is empty"}
			}
			return WaitStep{Selector: sel}, nil
		}
		var ms float64
		if err := json.Unmarshal(ws.Value, &ms); err != nil || ms < 0 {
			return nil, &ValidationError{Path: path + ".value", Message: "wait needs milliseconds or a selector"}
		}
		return WaitStep{Duration: millis(ms)}, nil
	case ActionType:
		text, ok := rawString(ws.Value)
		if ws.Element == "" || !ok {
			return nil, &ValidationError{Path: path, Message: "type needs an element selector and a string value"}
		}
		return TypeStep{Selector: ws.Element, Text: text, Clear: ws.Clear}, nil
	case ActionTest:
		if ws.Test == nil {
			return nil, &ValidationError{Path: path + ".test", Message: "test step needs an assertion"}
		}
		a, err := convertAssertion(ws.Test, path+".test")
		if err != nil {
			return nil, err
		}
		return TestStep{Assertion: a}, nil
	case ActionWaitForRequest:
		if ws.For == "" {
			return nil, &ValidationError{Path: path + ".for", Message: "waitForRequest needs a tracker name"}
		}
		count := ws.Count
		if count <= 0 {
			count = 1
		}
		return WaitForRequestStep{Tracker: ws.For, Count: count, Timeout: millis(ws.Timeout)}, nil
	default:
		return nil, &ValidationError{Path: path + ".action", Message: fmt.Sprintf("unrecognized action %q", ws.Action)}
	}
}

func convertAssertion(wa *wireAssertion, path string) (Assertion, *ValidationError) {
	meta := AssertionMeta{
		ID:          idString(wa.ID),
		Name:        wa.Name,
		Description: wa.Description,
	}
	switch AssertionType(wa.Type) {
	case AssertRequestMatchRegex:
		if wa.For == "" || wa.Match == nil || wa.Match.Key == "" || wa.Match.Value == nil {
			return nil, &ValidationError{Path: path, Message: "requestMatchRegex needs for, match.key and match.value"}
		}
		a := RequestMatchRegex{
			AssertionMeta: meta,
			Tracker:       wa.For,
			Key:           wa.Match.Key,
			Pattern:       fmt.Sprint(wa.Match.Value),
		}
		if wa.Options != nil {
			a.MatchAny = wa.Options.MatchAnyRequest
		}
		return a, nil
	case AssertMatchDataLayerKeyValue:
		if wa.Key == "" {
			return nil, &ValidationError{Path: path + ".key", Message: "matchDataLayerKeyValue needs a key"}
		}
		return DataLayerKeyEquals{AssertionMeta: meta, Key: wa.Key, Expected: plainValue(wa.Value)}, nil
	default:
		return nil, &ValidationError{Path: path + ".type", Message: fmt.Sprintf("unrecognized assertion type %q", wa.Type)}
	}
}

func convertOptions(wo *wireOptions, errs *ValidationErrors) *Options {
	opts := &Options{}
	if wo == nil {
		return opts
	}
	opts.Headless = wo.Headless
	seen := make(map[string]bool)
	for i, t := range wo.TrackRequests {
		path := fmt.Sprintf("options.trackRequests.%d", i)
		if t.Name == "" || t.URL == "" {
			*errs = append(*errs, &ValidationError{Path: path, Message: "tracker needs a name and a url"})
			continue
		}
		if seen[t.Name] {
			*errs = append(*errs, &ValidationError{Path: path + ".name", Message: fmt.Sprintf("duplicate tracker %q", t.Name)})
			continue
		}
		seen[t.Name] = true
		opts.TrackRequests = append(opts.TrackRequests, t)
	}
	return opts
}

// CheckTrackerReferences reports steps that name a tracker outside trackers.
func CheckTrackerReferences(def *TestDefinition, trackers []TrackerConfig) error {
	known := make(map[string]bool, len(trackers))
	for _, t := range trackers {
		known[t.Name] = true
	}

	var errs ValidationErrors
	for i, step := range def.Steps {
		var name string
		switch s := step.(type) {
		case TestStep:
			if a, ok := s.Assertion.(RequestMatchRegex); ok {
				name = a.Tracker
			}
		case WaitForRequestStep:
			name = s.Tracker
		}
		if name != "" && !known[name] {
			errs = append(errs, &ValidationError{
				Path:    fmt.Sprintf("test.steps.%d", i),
				Message: fmt.Sprintf("tracker %q is not configured", name),
			})
		}
	}
	if len(errs) > 0 {
		return invalid(errs)
	}
	return nil
}

// MergeTrackers overlays own on top of defaults; a tracker in own replaces the
// default with the same name. Order is defaults first, then new names from own.
func MergeTrackers(defaults, own []TrackerConfig) []TrackerConfig {
	if len(defaults) == 0 {
		return own
	}
	index := make(map[string]int, len(defaults))
	merged := make([]TrackerConfig, 0, len(defaults)+len(own))
	for _, t := range defaults {
		index[t.Name] = len(merged)
		merged = append(merged, t)
	}
	for _, t := range own {
		if i, ok := index[t.Name]; ok {
			merged[i] = t
			continue
		}
		index[t.Name] = len(merged)
		merged = append(merged, t)
	}
	return merged
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func idString(id any) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

// plainValue turns json.Number into int64 or float64 so comparisons see numbers.
func plainValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
