package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpryc/nbp-mcp-server/internal/nbp"
)

func TestSaveConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbp-mcp", "config.yaml")

	cfg := defaultFileConfig()
	cfg.Server.Transport = transportStreamableHTTP
	cfg.Usage.Driver = "sqlite"
	cfg.Usage.DB = "/var/lib/nbp/usage.db"
	cfg.Usage.Granularities = configStringSlice{"1h", "1d"}

	require.NoError(t, saveConfigFile(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, nbp.DefaultBaseURL, loaded.API.URL)
	assert.True(t, loaded.API.TimeoutSet)
	assert.Equal(t, nbp.DefaultTimeout, loaded.API.TimeoutDuration)
	assert.Equal(t, transportStreamableHTTP, loaded.Server.Transport)
	assert.Equal(t, defaultPort, loaded.Server.Port)
	assert.Equal(t, "sqlite", loaded.Usage.Driver)
	assert.Equal(t, "1h,1d", loaded.Usage.Granularities.Joined())
}

func TestLoadConfigFileParsesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  timeout: 5s
  range_concurrency: 2
server:
  transport: HTTP
  port: 9100
usage:
  granularities: "1m, 1h ,,1d"
  buffer_duration: 2s
`), 0o600))

	cfg, err := loadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.API.TimeoutDuration)
	assert.Equal(t, 2, cfg.API.RangeConcurrency)
	assert.Equal(t, transportStreamableHTTP, cfg.Server.Transport)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, configStringSlice{"1m", "1h", "1d"}, cfg.Usage.Granularities)
	assert.Equal(t, 2*time.Second, cfg.Usage.BufferDurationValue)
}

func TestLoadConfigFileRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"timeout":   "api:\n  timeout: soon\n",
		"transport": "server:\n  transport: carrier-pigeon\n",
		"yaml":      "api: [\n",
	}

	for name, contents := range cases {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
		_, err := loadConfigFile(path)
		assert.Error(t, err, name)
	}
}

func TestLoadConfigFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	cfg, err := loadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, &fileConfig{}, cfg)
}

func TestMergeSettingsPrecedence(t *testing.T) {
	t.Setenv("NBP_PORT", "")
	t.Setenv("NBP_HOST", "")
	t.Setenv("NBP_TRANSPORT", "")
	t.Setenv("NBP_API_URL", "https://mirror.example.com/api")
	t.Setenv("NBP_TIMEOUT", "3s")
	t.Setenv("NBP_USAGE_DRIVER", "redis")

	cfg := &fileConfig{
		API:    apiConfig{URL: "https://file.example.com/api", TimeoutDuration: time.Minute, TimeoutSet: true},
		Server: serverConfig{Port: 9000},
		Usage:  usageConfig{Driver: "sqlite", Prefix: "nbp:"},
	}

	s, err := mergeSettings(cfg, "/etc/nbp-mcp/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/etc/nbp-mcp/config.yaml", s.ConfigPath)
	assert.Equal(t, "https://mirror.example.com/api", s.APIURL)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, 9000, s.Port)
	assert.Equal(t, defaultHost, s.Host)
	assert.Equal(t, transportStdio, s.Transport)
	assert.Equal(t, "0.0.0.0:9000", s.address())
	assert.Equal(t, "redis", s.Usage.Driver)
	assert.Equal(t, "nbp:", s.Usage.Prefix)
	assert.Equal(t, defaultRangeConcurrency, s.RangeConcurrency)
}

func TestMergeSettingsRejectsBadEnv(t *testing.T) {
	t.Setenv("NBP_PORT", "eighty")

	_, err := mergeSettings(nil, "")
	assert.ErrorContains(t, err, "NBP_PORT")
}

func TestFindConfigPath(t *testing.T) {
	t.Parallel()

	path, explicit, err := findConfigPath([]string{"serve", "--config", "/tmp/a.yaml"})
	require.NoError(t, err)
	assert.True(t, explicit)
	assert.Equal(t, "/tmp/a.yaml", path)

	path, explicit, err = findConfigPath([]string{"--config=/tmp/b.yaml", "tools"})
	require.NoError(t, err)
	assert.True(t, explicit)
	assert.Equal(t, "/tmp/b.yaml", path)

	_, explicit, err = findConfigPath([]string{"call", "--", "--config", "x"})
	require.NoError(t, err)
	assert.False(t, explicit)

	_, _, err = findConfigPath([]string{"--config"})
	assert.Error(t, err)
}

func TestResolveConfigMissingFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("NBP_MCP_CONFIG", "")

	cfg, path, err := resolveConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, &fileConfig{}, cfg)
	assert.Equal(t, filepath.Join(dir, "nbp-mcp", "config.yaml"), path)

	t.Setenv("NBP_MCP_CONFIG", filepath.Join(dir, "missing.yaml"))
	_, _, err = resolveConfig(nil)
	assert.Error(t, err)
}

func TestNormalizeTransport(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]string{
		"":                transportStdio,
		"STDIO":           transportStdio,
		"streamable-http": transportStreamableHTTP,
		"http":            transportStreamableHTTP,
	} {
		got, err := normalizeTransport(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := normalizeTransport("sse")
	assert.Error(t, err)
}
