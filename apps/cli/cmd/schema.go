package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of test documents",
	Long: `Print the JSON schema (draft-07) that test documents and server request
bodies are validated against. Editors can use it for completion.

Examples:
  beaconspec schema > beaconspec.schema.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(parser.Schema())
		return err
	},
}
