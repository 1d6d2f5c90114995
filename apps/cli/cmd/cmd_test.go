package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/beaconspec/packages/browser/browsertest"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/config"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
	"github.com/abdul-hamid-achik/beaconspec/packages/output"
)

const homeURL = "https://shop.example.com/"

func document(pattern string) string {
	return fmt.Sprintf(`test:
  name: home
  steps:
    - action: goto
      value: %s
    - action: test
      test: {id: 1, name: pageview, type: requestMatchRegex, for: GA, match: {key: t, value: %s}}
options:
  trackRequests:
    - {name: GA, url: google-analytics.com/collect}
`, homeURL, pattern)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitParseError, exitCode(withExitCode(ExitParseError, errors.New("bad"))))
	assert.Equal(t, ExitConfigError, exitCode(fmt.Errorf("wrapped: %w", withExitCode(ExitConfigError, errors.New("bad")))))
	assert.Equal(t, ExitUsageError, exitCode(errors.New("unknown flag")))

	err := withExitCode(ExitBrowserError, context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"host=shop.example.com", "query=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"host": "shop.example.com", "query": "a=b", "empty": ""}, vars)

	for _, bad := range []string{"novalue", "=x", " =x"} {
		_, err := parseVars([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "")
	b := writeFile(t, dir, "nested/b.json", "")
	writeFile(t, dir, "beaconspec.yaml", "")
	writeFile(t, dir, "package.json", "")
	writeFile(t, dir, "notes.txt", "")
	writeFile(t, dir, ".git/c.yaml", "")
	writeFile(t, dir, "node_modules/d.json", "")

	files, err := collectFiles([]string{dir})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, files)

	// An explicitly named file is taken even when a walk would skip it.
	cfgFile := filepath.Join(dir, "beaconspec.yaml")
	files, err = collectFiles([]string{cfgFile})
	require.NoError(t, err)
	assert.Equal(t, []string{cfgFile}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestRunFiles(t *testing.T) {
	dir := t.TempDir()
	pass := writeFile(t, dir, "1-pass.yaml", document("pageview"))
	fail := writeFile(t, dir, "2-fail.yaml", document("event"))
	broken := writeFile(t, dir, "3-broken.yaml", "test: {steps: [{action: scroll}]}")

	cfg := runner.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.TypeDelay = 0

	tests := []struct {
		name     string
		files    []string
		bail     bool
		wantCode int
		wantRuns int
	}{
		{"pass", []string{pass}, false, ExitSuccess, 1},
		{"worst code wins", []string{pass, fail, broken}, false, ExitParseError, 2},
		{"bail stops at first failure", []string{pass, fail, broken}, true, ExitTestFailure, 2},
		{"parse error only", []string{broken}, false, ExitParseError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &browsertest.Launcher{
				Routes: map[string][]string{homeURL: {"https://www.google-analytics.com/collect?v=1&t=pageview"}},
			}
			r := runner.NewRunner(cfg, runner.WithLauncher(launcher))

			var buf bytes.Buffer
			f := output.NewJSONFormatter(output.JSONWithWriter(&buf))
			code := runFiles(context.Background(), r, tt.files, f, tt.bail)
			require.NoError(t, f.Flush(0))

			assert.Equal(t, tt.wantCode, code)
			var out output.JSONOutput
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			assert.Len(t, out.Runs, tt.wantRuns)
			assert.Len(t, launcher.Launches(), tt.wantRuns)
		})
	}
}

func TestRunOne_BrowserError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "home.yaml", document("pageview"))

	launcher := &browsertest.Launcher{LaunchErr: errors.New("no chrome")}
	r := runner.NewRunner(runner.DefaultConfig(), runner.WithLauncher(launcher))

	var buf bytes.Buffer
	f := output.NewJSONFormatter(output.JSONWithWriter(&buf))
	assert.Equal(t, ExitBrowserError, runOne(context.Background(), r, path, f))
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, initProject(cmd, dir))
	assert.Contains(t, out.String(), "beaconspec project initialized!")

	cfg, err := config.LoadConfig(filepath.Join(dir, "beaconspec.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Trackers, 2)
	assert.True(t, cfg.Trackers[1].AbortRequest)

	// The example document only validates against the generated trackers.
	saved := appConfig
	t.Cleanup(func() { appConfig = saved })
	appConfig = config.DefaultConfig()
	assert.Error(t, validateFile(filepath.Join(dir, "example.test.yaml")))
	appConfig = cfg
	assert.NoError(t, validateFile(filepath.Join(dir, "example.test.yaml")))

	err = initProject(cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestRunnerConfig_ProcessEnvironment(t *testing.T) {
	rc, err := runnerConfig(runCmd, config.DefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, rc.UseOSEnv)

	rc, err = serveRunnerConfig(serveCmd, config.DefaultConfig())
	require.NoError(t, err)
	assert.False(t, rc.UseOSEnv)
}
