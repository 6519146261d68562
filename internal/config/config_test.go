package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{"PORT", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL", "ANTHROPIC_AUTH_TOKEN", "VERCEL_TOKEN"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "claude", cfg.Agent.CLIPath)
	assert.Equal(t, "bypassPermissions", cfg.Agent.PermissionMode)
	assert.Equal(t, []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"}, cfg.Agent.AllowedTools)
	assert.Equal(t, 256, cfg.Agent.QueueSize)
	assert.Equal(t, "/project", cfg.Session.DefaultWorkdir)
	assert.Equal(t, 16, cfg.Session.HistorySize)
	assert.Equal(t, 10*time.Millisecond, cfg.Stream.ReplayDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Stream.PollInterval)
	assert.Equal(t, []string{"Read", "Glob"}, cfg.Filter.ReadOnlyTools)
	assert.Equal(t, 5*time.Minute, cfg.Deploy.Timeout)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9001")
	t.Setenv("ANTHROPIC_MODEL", "claude-sonnet")
	t.Setenv("VERCEL_TOKEN", "vercel-secret-token")
	t.Setenv("SANDBOX_AGENT_SESSION_DEFAULT_WORKDIR", "/srv/app")
	t.Setenv("SANDBOX_AGENT_STREAM_POLL_INTERVAL", "250ms")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "claude-sonnet", cfg.Agent.Model)
	assert.Equal(t, "vercel-secret-token", cfg.Deploy.Token)
	assert.Equal(t, "/srv/app", cfg.Session.DefaultWorkdir)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.PollInterval)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9001")
	t.Setenv("SANDBOX_AGENT_SERVER_PORT", "9002")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 9002, cfg.Server.Port)
}

func TestLoadFileAndDotEnv(t *testing.T) {
	isolate(t)
	dir, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sandbox-agent.yaml"), []byte(`
server:
  port: 8100
filter:
  suppress_kinds: [thinking]
stream:
  replay_delay: 0s
logging:
  format: json
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANTHROPIC_AUTH_TOKEN=from-dotenv\nANTHROPIC_MODEL=dotenv-model\n"), 0o644))
	t.Setenv("ANTHROPIC_MODEL", "real-env-model")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Unsetenv("ANTHROPIC_AUTH_TOKEN") })

	assert.Equal(t, 8100, cfg.Server.Port)
	assert.Equal(t, []string{"thinking"}, cfg.Filter.SuppressKinds)
	assert.Equal(t, time.Duration(0), cfg.Stream.ReplayDelay)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "from-dotenv", cfg.Agent.AuthToken)
	assert.Equal(t, "real-env-model", cfg.Agent.Model)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load(viper.New(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "poll interval", mutate: func(c *Config) { c.Stream.PollInterval = 0 }},
		{name: "heartbeat", mutate: func(c *Config) { c.Stream.HeartbeatInterval = -time.Second }},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "history", mutate: func(c *Config) { c.Session.HistorySize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestYAMLMasksSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "sk-ant-0123456789abcdef")
	t.Setenv("VERCEL_TOKEN", "short")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	out, err := cfg.YAML()
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, "sk-ant-0123456789abcdef")
	assert.Contains(t, text, "sk-a...cdef")
	assert.NotContains(t, text, "short")
	assert.Contains(t, text, "replay_delay: 10ms")
	assert.Equal(t, "sk-ant-0123456789abcdef", cfg.Agent.AuthToken)
}
