// Package cmd implements the beaconspec CLI commands using Cobra.
//
// Available commands:
//   - run: Execute browser tests and report assertion results
//   - serve: Accept test runs over HTTP
//   - validate: Check test documents without launching a browser
//   - list: Display the steps and assertions of test documents
//   - schema: Print the JSON schema test documents are validated against
//   - init: Create an example test and config file
//   - version: Show beaconspec version information
//
// Every flag can also be set through a BEACONSPEC_* environment variable.
package cmd
