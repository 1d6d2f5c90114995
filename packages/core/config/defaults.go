package config

const (
	DefaultSettleDelay        = 1000
	DefaultTypeDelay          = 200
	DefaultNavigationTimeout  = 30000
	DefaultElementTimeout     = 30000
	DefaultRequestWaitTimeout = 10000
	DefaultServerAddr         = ":8080"
	DefaultMaxBodyBytes       = 1 << 20
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Headless:           BoolPtr(true),
		SettleDelay:        IntPtr(DefaultSettleDelay),
		TypeDelay:          IntPtr(DefaultTypeDelay),
		NavigationTimeout:  DefaultNavigationTimeout,
		ElementTimeout:     DefaultElementTimeout,
		RequestWaitTimeout: DefaultRequestWaitTimeout,
		RunTimeout:         0, // no limit
		DataLayer:          "dataLayer",
		Output:             "console",
		Bail:               BoolPtr(false),
		Verbose:            BoolPtr(false),
		NoColor:            BoolPtr(false),
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      7,
			ServiceName: "beaconspec",
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			Burst:        1,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.GetHeadless() == d.GetHeadless() &&
		c.GetSettleDelay() == d.GetSettleDelay() &&
		c.GetTypeDelay() == d.GetTypeDelay() &&
		c.NavigationTimeout == d.NavigationTimeout &&
		c.ElementTimeout == d.ElementTimeout &&
		c.RequestWaitTimeout == d.RequestWaitTimeout &&
		c.RunTimeout == d.RunTimeout &&
		c.DataLayer == d.DataLayer &&
		len(c.Trackers) == 0 &&
		len(c.ChromeFlags) == 0 &&
		c.Output == d.Output &&
		c.GetBail() == d.GetBail() &&
		c.GetVerbose() == d.GetVerbose() &&
		c.GetNoColor() == d.GetNoColor()
}
