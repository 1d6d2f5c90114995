package output

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/beaconspec/packages/assertions"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Running: "+suiteName(result)))
	if result.File != "" && result.Name != "" {
		fmt.Fprintf(f.writer, "  %s\n", result.Name)
	}
	fmt.Fprintf(f.writer, "\n")

	if f.verbose {
		for _, s := range result.Steps {
			mark := cyan("·")
			switch s.Status {
			case runner.StepFailed:
				mark = red("x")
			case runner.StepSkipped, runner.StepTimedOut:
				mark = yellow("-")
			}
			fmt.Fprintf(f.writer, "  %s %s %s %s\n", mark, s.Action, s.Target, cyan(fmt.Sprintf("(%dms)", s.Duration.Milliseconds())))
			if s.Status != runner.StepOK && s.Error != "" {
				fmt.Fprintf(f.writer, "      %s\n", s.Error)
			}
		}
		fmt.Fprintf(f.writer, "\n")
	}

	for _, r := range result.Results {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		switch r.Outcome {
		case assertions.Pass:
			fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
		case assertions.Fail:
			fmt.Fprintf(f.writer, "  %s %s\n", red("✗"), name)
			fmt.Fprintf(f.writer, "    %s %s\n", red("→"), r.Type)
			fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(r.Expected, 100))
			fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(r.Actual, 100))
			if r.Message != "" {
				fmt.Fprintf(f.writer, "      %s\n", r.Message)
			}
		default:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), name, red(fmt.Sprintf("(%s)", r.Message)))
		}
	}

	if result.Error != "" {
		fmt.Fprintf(f.writer, "\n  %s %s\n", red("Aborted:"), result.Error)
	}

	if f.verbose && len(result.Captured) > 0 {
		fmt.Fprintf(f.writer, "\n  Captured:\n")
		names := make([]string, 0, len(result.Captured))
		for name := range result.Captured {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(f.writer, "    %s: %d request(s)\n", name, len(result.Captured[name]))
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if result.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", result.Passed)))
	}
	if result.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	if result.Errored > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d errored", result.Errored)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(result.Results))
	fmt.Fprintf(f.writer, "Time:  %dms\n", result.Duration.Milliseconds())
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("beaconspec"), version)
}
