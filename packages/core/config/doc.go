// Package config handles configuration loading and management for beaconspec.
//
// It provides functionality for:
//   - Loading configuration from .beaconspec.config.json or beaconspec.yaml files
//   - Default browser timings, trackers and logger settings
//   - Merging file values under command line flags
package config
