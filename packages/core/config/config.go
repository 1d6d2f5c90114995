package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

// Config represents the beaconspec configuration. Durations are milliseconds.
type Config struct {
	Headless           *bool                  `json:"headless,omitempty" yaml:"headless,omitempty"`
	SettleDelay        *int                   `json:"settleDelay,omitempty" yaml:"settleDelay,omitempty"`
	TypeDelay          *int                   `json:"typeDelay,omitempty" yaml:"typeDelay,omitempty"`
	NavigationTimeout  int                    `json:"navigationTimeout,omitempty" yaml:"navigationTimeout,omitempty"`
	ElementTimeout     int                    `json:"elementTimeout,omitempty" yaml:"elementTimeout,omitempty"`
	RequestWaitTimeout int                    `json:"requestWaitTimeout,omitempty" yaml:"requestWaitTimeout,omitempty"`
	RunTimeout         int                    `json:"runTimeout,omitempty" yaml:"runTimeout,omitempty"`
	DataLayer          string                 `json:"dataLayer,omitempty" yaml:"dataLayer,omitempty"`
	Trackers           []parser.TrackerConfig `json:"trackers,omitempty" yaml:"trackers,omitempty"`
	ChromeFlags        []string               `json:"chromeFlags,omitempty" yaml:"chromeFlags,omitempty"`
	ChromePath         string                 `json:"chromePath,omitempty" yaml:"chromePath,omitempty"`
	Output             string                 `json:"output,omitempty" yaml:"output,omitempty"`
	Bail               *bool                  `json:"bail,omitempty" yaml:"bail,omitempty"`
	Verbose            *bool                  `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor            *bool                  `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	Logger             LoggerConfig           `json:"logger,omitempty" yaml:"logger,omitempty"`
	Server             ServerConfig           `json:"server,omitempty" yaml:"server,omitempty"`
}

// LoggerConfig configures the process-wide logger.
type LoggerConfig struct {
	Level       string `json:"level,omitempty" yaml:"level,omitempty"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	File        string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSize     int    `json:"maxSize,omitempty" yaml:"maxSize,omitempty"` // megabytes
	MaxBackups  int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
	MaxAge      int    `json:"maxAge,omitempty" yaml:"maxAge,omitempty"` // days
	Compress    bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
}

// ServerConfig configures the invocation server.
type ServerConfig struct {
	Addr         string  `json:"addr,omitempty" yaml:"addr,omitempty"`
	RateLimit    float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"` // runs per second, 0 = unlimited
	Burst        int     `json:"burst,omitempty" yaml:"burst,omitempty"`
	MaxBodyBytes int64   `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// GetHeadless returns the headless setting, defaulting to true
func (c *Config) GetHeadless() bool {
	return getBool(c.Headless, true)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

func (c *Config) GetSettleDelay() time.Duration {
	if c.SettleDelay == nil {
		return millis(DefaultSettleDelay)
	}
	return millis(*c.SettleDelay)
}

func (c *Config) GetTypeDelay() time.Duration {
	if c.TypeDelay == nil {
		return millis(DefaultTypeDelay)
	}
	return millis(*c.TypeDelay)
}

func (c *Config) GetNavigationTimeout() time.Duration  { return millis(c.NavigationTimeout) }
func (c *Config) GetElementTimeout() time.Duration     { return millis(c.ElementTimeout) }
func (c *Config) GetRequestWaitTimeout() time.Duration { return millis(c.RequestWaitTimeout) }
func (c *Config) GetRunTimeout() time.Duration         { return millis(c.RunTimeout) }

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	".beaconspec.config.json",
	"beaconspec.config.json",
	".beaconspec.yaml",
	"beaconspec.yaml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	loaded := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, loaded)
	} else {
		err = json.Unmarshal(data, loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	config := DefaultConfig().Merge(loaded)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	for _, d := range []struct {
		name  string
		value *int
	}{{"settleDelay", c.SettleDelay}, {"typeDelay", c.TypeDelay}} {
		if d.value != nil && *d.value < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}
	if c.NavigationTimeout < 0 || c.ElementTimeout < 0 || c.RequestWaitTimeout < 0 || c.RunTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	seen := make(map[string]bool)
	for _, t := range c.Trackers {
		if t.Name == "" || t.URL == "" {
			return fmt.Errorf("tracker needs a name and a url")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tracker %q", t.Name)
		}
		seen[t.Name] = true
	}
	switch c.Output {
	case "", "console", "json", "junit":
	default:
		return fmt.Errorf("unknown output format %q", c.Output)
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.SettleDelay != nil {
		result.SettleDelay = other.SettleDelay
	}
	if other.TypeDelay != nil {
		result.TypeDelay = other.TypeDelay
	}
	if other.NavigationTimeout > 0 {
		result.NavigationTimeout = other.NavigationTimeout
	}
	if other.ElementTimeout > 0 {
		result.ElementTimeout = other.ElementTimeout
	}
	if other.RequestWaitTimeout > 0 {
		result.RequestWaitTimeout = other.RequestWaitTimeout
	}
	if other.RunTimeout > 0 {
		result.RunTimeout = other.RunTimeout
	}
	if other.DataLayer != "" {
		result.DataLayer = other.DataLayer
	}
	if other.ChromePath != "" {
		result.ChromePath = other.ChromePath
	}
	if other.Output != "" {
		result.Output = other.Output
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Headless != nil {
		result.Headless = other.Headless
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Trackers) > 0 {
		result.Trackers = parser.MergeTrackers(result.Trackers, other.Trackers)
	}
	if len(other.ChromeFlags) > 0 {
		result.ChromeFlags = append(append([]string(nil), result.ChromeFlags...), other.ChromeFlags...)
	}

	result.Logger = mergeLogger(result.Logger, other.Logger)
	result.Server = mergeServer(result.Server, other.Server)

	return &result
}

func mergeLogger(base, other LoggerConfig) LoggerConfig {
	if other.Level != "" {
		base.Level = other.Level
	}
	if other.Format != "" {
		base.Format = other.Format
	}
	if other.File != "" {
		base.File = other.File
	}
	if other.MaxSize > 0 {
		base.MaxSize = other.MaxSize
	}
	if other.MaxBackups > 0 {
		base.MaxBackups = other.MaxBackups
	}
	if other.MaxAge > 0 {
		base.MaxAge = other.MaxAge
	}
	if other.Compress {
		base.Compress = true
	}
	if other.ServiceName != "" {
		base.ServiceName = other.ServiceName
	}
	return base
}

func mergeServer(base, other ServerConfig) ServerConfig {
	if other.Addr != "" {
		base.Addr = other.Addr
	}
	if other.RateLimit > 0 {
		base.RateLimit = other.RateLimit
	}
	if other.Burst > 0 {
		base.Burst = other.Burst
	}
	if other.MaxBodyBytes > 0 {
		base.MaxBodyBytes = other.MaxBodyBytes
	}
	return base
}

// SaveConfig saves the configuration to a file, as YAML when the name says so
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
