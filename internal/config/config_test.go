package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("KOLONY_BASE_URL", "")

	cfg, err := Parse(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321", cfg.KolonyBaseURL)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 60, cfg.RateLimitPerMin)
	assert.False(t, cfg.A2AEnabled)
	assert.False(t, cfg.TrustForwardedFor)
}

func TestParsePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kolony.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kolony_base_url: https://file.supabase.co
access_token: from-file
request_timeout: 30s
log_format: json
rate_limit_per_min: 5
trust_forwarded_for: true
`), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("KOLONY_ACCESS_TOKEN", "from-env")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Parse(newFlagSet(), []string{"-rate-limit", "7"})
	require.NoError(t, err)
	assert.Equal(t, "https://file.supabase.co", cfg.KolonyBaseURL)
	assert.Equal(t, "from-env", cfg.AccessToken)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 7, cfg.RateLimitPerMin)
	assert.True(t, cfg.TrustForwardedFor)
}

func TestParseMissingFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Parse(newFlagSet(), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := defaults()
	require.NoError(t, good.Validate())

	tests := map[string]func(*Config){
		"empty base":     func(c *Config) { c.KolonyBaseURL = "" },
		"relative base":  func(c *Config) { c.KolonyBaseURL = "functions/v1" },
		"zero timeout":   func(c *Config) { c.RequestTimeout = 0 },
		"negative limit": func(c *Config) { c.RateLimitPerMin = -1 },
		"bad a2a port":   func(c *Config) { c.A2AEnabled = true; c.A2APort = 70000 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := defaults()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "-5s")
	assert.True(t, getEnvBool("X_BOOL", false))
	assert.Equal(t, 3, getEnvInt("X_INT", 3))
	assert.Equal(t, time.Minute, getEnvDuration("X_DUR", time.Minute))
}
