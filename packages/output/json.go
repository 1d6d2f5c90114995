package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/beaconspec/packages/assertions"
	"github.com/abdul-hamid-achik/beaconspec/packages/capture"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Runs     []JSONRun   `json:"runs"`
	Errors   []string    `json:"errors,omitempty"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

type JSONSummary struct {
	Runs    int `json:"runs"`
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// JSONRun is one run with its assertion results.
type JSONRun struct {
	ID       string                               `json:"id"`
	Name     string                               `json:"name"`
	File     string                               `json:"file,omitempty"`
	Passed   bool                                 `json:"passed"`
	Duration float64                              `json:"duration"`
	Error    string                               `json:"error,omitempty"`
	Results  []JSONResult                         `json:"results"`
	Steps    []*runner.StepRecord                 `json:"steps,omitempty"`
	Captured map[string][]capture.CapturedRequest `json:"captured,omitempty"`
}

type JSONResult struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Result   assertions.Outcome `json:"result"`
	Message  string             `json:"message,omitempty"`
	Expected any                `json:"expected,omitempty"`
	Actual   any                `json:"actual,omitempty"`
	Duration float64            `json:"duration"`
}

// JSONFormatter formats run results as JSON
type JSONFormatter struct {
	writer io.Writer
	runs   []JSONRun
	errors []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		runs:   make([]JSONRun, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	run := JSONRun{
		ID:       result.ID,
		Name:     result.Name,
		File:     result.File,
		Passed:   result.Success(),
		Duration: float64(result.Duration.Milliseconds()),
		Error:    result.Error,
		Results:  make([]JSONResult, 0, len(result.Results)),
		Steps:    result.Steps,
		Captured: result.Captured,
	}
	for _, r := range result.Results {
		run.Results = append(run.Results, JSONResult{
			ID:       r.ID,
			Name:     r.Name,
			Type:     r.Type,
			Result:   r.Outcome,
			Message:  r.Message,
			Expected: r.Expected,
			Actual:   r.Actual,
			Duration: float64(r.Duration.Milliseconds()),
		})
	}
	f.runs = append(f.runs, run)
}

func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	summary := JSONSummary{Runs: len(f.runs)}
	for _, run := range f.runs {
		for _, r := range run.Results {
			summary.Total++
			switch r.Result {
			case assertions.Pass:
				summary.Passed++
			case assertions.Fail:
				summary.Failed++
			default:
				summary.Errored++
			}
		}
	}

	output := JSONOutput{
		Summary:  summary,
		Runs:     f.runs,
		Errors:   f.errors,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
