package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the steps and assertions of test documents",
	Long: `List the steps of every test document, with the trackers they use.

Examples:
  beaconspec list tests/home.yaml
  beaconspec list ./tests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no test documents found"))
	}

	out := cmd.OutOrStdout()
	for _, path := range files {
		f, err := parser.ParseFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", path, err)
			continue
		}

		fmt.Fprintf(out, "\n%s:\n", path)
		if f.Test.Name != "" {
			fmt.Fprintf(out, "  %s\n", f.Test.Name)
		}
		if names := f.Options.TrackerNames(); len(names) > 0 {
			fmt.Fprintf(out, "  trackers: %s\n", strings.Join(names, ", "))
		}
		for i, step := range f.Test.Steps {
			fmt.Fprintf(out, "  %2d. %s\n", i+1, stepLine(step))
		}
	}

	return nil
}

func stepLine(step parser.Step) string {
	switch s := step.(type) {
	case parser.GotoStep:
		return "goto " + s.URL
	case parser.ClickStep:
		return "click " + s.Selector
	case parser.WaitStep:
		if s.Selector != "" {
			return "wait for " + s.Selector
		}
		return "wait " + s.Duration.String()
	case parser.TypeStep:
		line := fmt.Sprintf("type %q into %s", s.Text, s.Selector)
		if s.Clear {
			line += " (clear first)"
		}
		return line
	case parser.WaitForRequestStep:
		return fmt.Sprintf("wait for %d %s request(s)", s.Count, s.Tracker)
	case parser.TestStep:
		meta := s.Assertion.Meta()
		name := meta.Name
		if name == "" {
			name = meta.ID
		}
		switch a := s.Assertion.(type) {
		case parser.RequestMatchRegex:
			scope := "last"
			if a.MatchAny {
				scope = "any"
			}
			return fmt.Sprintf("test %s: %s %s request %s =~ %s", name, scope, a.Tracker, a.Key, a.Pattern)
		case parser.DataLayerKeyEquals:
			return fmt.Sprintf("test %s: dataLayer %s == %v", name, a.Key, a.Expected)
		}
		return "test " + name
	}
	return string(step.Action())
}
