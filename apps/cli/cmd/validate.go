package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate test documents without running them",
	Long: `Validate test documents against the schema and check that every tracker
they reference is configured, without launching a browser.

Examples:
  beaconspec validate tests/home.yaml
  beaconspec validate ./tests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no test documents found"))
	}

	hasErrors := false
	for _, file := range files {
		if err := validateFile(file); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s:\n", file)
			var verrs parser.ValidationErrors
			if errors.As(err, &verrs) {
				for _, v := range verrs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", v)
				}
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", err)
			}
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return withExitCode(ExitParseError, fmt.Errorf("validation failed"))
	}

	return nil
}

// validateFile parses a document and checks its tracker references against the
// trackers it would run with.
func validateFile(path string) error {
	file, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	var own []parser.TrackerConfig
	if file.Options != nil {
		own = file.Options.TrackRequests
	}
	return parser.CheckTrackerReferences(file.Test, parser.MergeTrackers(appConfig.Trackers, own))
}
