package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/config"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new beaconspec project",
	Long: `Initialize a new beaconspec project in the current directory.

This creates:
  - beaconspec.yaml     - Configuration file with shared trackers
  - example.test.yaml   - Example test document

Examples:
  beaconspec init
  beaconspec init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleDocument = `test:
  name: Home page view
  variables:
    host: shop.example.com
  steps:
    - action: goto
      value: https://{{host}}/
    - action: waitForRequest
      for: GA
      timeout: 5000
    - action: test
      test:
        id: 1
        name: pageview sent
        type: requestMatchRegex
        for: GA
        match:
          key: t
          value: ^pageview$
    - action: click
      element: "#add-to-cart"
    - action: test
      test:
        id: 2
        name: cart event tracked
        type: requestMatchRegex
        for: GA
        options:
          matchAnyRequest: true
        match:
          key: ea
          value: add_to_cart
    - action: test
      test:
        id: 3
        name: page type in dataLayer
        type: matchDataLayerKeyValue
        key: pageType
        value: home
options:
  headless: true
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	return initProject(cmd, cwd)
}

func initProject(cmd *cobra.Command, dir string) error {
	configFile := filepath.Join(dir, "beaconspec.yaml")
	exampleFile := filepath.Join(dir, "example.test.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := &config.Config{
		Headless:           config.BoolPtr(true),
		SettleDelay:        config.IntPtr(config.DefaultSettleDelay),
		NavigationTimeout:  30000,
		RequestWaitTimeout: 10000,
		Trackers: []parser.TrackerConfig{
			{Name: "GA", URL: "google-analytics.com/collect"},
			{Name: "Pixel", URL: "facebook.com/tr", AbortRequest: true},
		},
	}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleDocument), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nbeaconspec project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'beaconspec run example.test.yaml' to execute the example test.\n")

	return nil
}
