package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.True(t, c.GetHeadless())
	assert.Equal(t, time.Second, c.GetSettleDelay())
	assert.Equal(t, 200*time.Millisecond, c.GetTypeDelay())
	assert.Equal(t, 30*time.Second, c.GetNavigationTimeout())
	assert.Equal(t, 10*time.Second, c.GetRequestWaitTimeout())
	assert.Zero(t, c.GetRunTimeout())
	assert.True(t, c.IsDefault())
	assert.NoError(t, c.Validate())
}

func TestFindAndLoadConfig_NoFile(t *testing.T) {
	c, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, c.IsDefault())
}

func TestFindAndLoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"headless": false,
		"settleDelay": 0,
		"trackers": [{"name": "GA", "url": "/collect"}],
		"logger": {"level": "debug"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".beaconspec.config.json"), []byte(content), 0644))

	c, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.False(t, c.GetHeadless())
	assert.Zero(t, c.GetSettleDelay())
	assert.Equal(t, 200*time.Millisecond, c.GetTypeDelay())
	assert.Equal(t, []parser.TrackerConfig{{Name: "GA", URL: "/collect"}}, c.Trackers)
	assert.Equal(t, "debug", c.Logger.Level)
	assert.Equal(t, "console", c.Logger.Format)
	assert.False(t, c.IsDefault())
}

func TestFindAndLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	content := `
typeDelay: 50
navigationTimeout: 5000
trackers:
  - name: Pixel
    url: facebook.com/tr
    abortRequest: true
server:
  addr: ":9090"
  rateLimit: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beaconspec.yaml"), []byte(content), 0644))

	c, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, c.GetTypeDelay())
	assert.Equal(t, 5*time.Second, c.GetNavigationTimeout())
	require.Len(t, c.Trackers, 1)
	assert.True(t, c.Trackers[0].AbortRequest)
	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, 2.0, c.Server.RateLimit)
	assert.Equal(t, int64(DefaultMaxBodyBytes), c.Server.MaxBodyBytes)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "bad.json", `{"headless": `},
		{"negative delay", "neg.json", `{"settleDelay": -1}`},
		{"duplicate tracker", "dup.yaml", "trackers:\n  - {name: GA, url: /collect}\n  - {name: GA, url: /g}\n"},
		{"unknown output", "out.json", `{"output": "tap"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Trackers = []parser.TrackerConfig{{Name: "GA", URL: "/collect"}}

	merged := base.Merge(&Config{
		Headless:    BoolPtr(false),
		SettleDelay: IntPtr(250),
		Trackers:    []parser.TrackerConfig{{Name: "GA", URL: "/g/collect"}, {Name: "Pixel", URL: "facebook.com/tr"}},
		ChromeFlags: []string{"--lang=de"},
		Server:      ServerConfig{Addr: ":7000"},
	})

	assert.False(t, merged.GetHeadless())
	assert.Equal(t, 250*time.Millisecond, merged.GetSettleDelay())
	assert.Equal(t, []parser.TrackerConfig{
		{Name: "GA", URL: "/g/collect"},
		{Name: "Pixel", URL: "facebook.com/tr"},
	}, merged.Trackers)
	assert.Equal(t, []string{"--lang=de"}, merged.ChromeFlags)
	assert.Equal(t, ":7000", merged.Server.Addr)
	assert.Equal(t, int64(DefaultMaxBodyBytes), merged.Server.MaxBodyBytes)

	// The receiver is left untouched.
	assert.True(t, base.GetHeadless())
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfig_RoundTripsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beaconspec.yaml")
	c := DefaultConfig()
	c.Trackers = []parser.TrackerConfig{{Name: "GA", URL: "/collect"}}
	require.NoError(t, c.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c.Trackers, loaded.Trackers)
	assert.Equal(t, c.GetSettleDelay(), loaded.GetSettleDelay())
}
