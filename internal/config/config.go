// Package config loads service configuration from defaults, an optional YAML
// file, an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"sandboxagent/internal/observability"
)

const (
	EnvPrefix      = "SANDBOX_AGENT"
	configFileName = "sandbox-agent"
)

type Config struct {
	Server  ServerConfig                `mapstructure:"server" yaml:"server"`
	Agent   AgentConfig                 `mapstructure:"agent" yaml:"agent"`
	Session SessionConfig               `mapstructure:"session" yaml:"session"`
	Stream  StreamConfig                `mapstructure:"stream" yaml:"stream"`
	Filter  FilterConfig                `mapstructure:"filter" yaml:"filter"`
	Deploy  DeployConfig                `mapstructure:"deploy" yaml:"deploy"`
	Logging LoggingConfig               `mapstructure:"logging" yaml:"logging"`
	Metrics observability.MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AgentConfig struct {
	Model            string   `mapstructure:"model" yaml:"model"`
	CLIPath          string   `mapstructure:"cli_path" yaml:"cli_path"`
	BaseURL          string   `mapstructure:"base_url" yaml:"base_url"`
	AuthToken        string   `mapstructure:"auth_token" yaml:"auth_token"`
	PermissionMode   string   `mapstructure:"permission_mode" yaml:"permission_mode"`
	AllowedTools     []string `mapstructure:"allowed_tools" yaml:"allowed_tools"`
	SystemPromptFile string   `mapstructure:"system_prompt_file" yaml:"system_prompt_file"`
	QueueSize        int      `mapstructure:"queue_size" yaml:"queue_size"`
}

type SessionConfig struct {
	DefaultWorkdir string `mapstructure:"default_workdir" yaml:"default_workdir"`
	HistorySize    int    `mapstructure:"history_size" yaml:"history_size"`
}

type StreamConfig struct {
	ReplayDelay       time.Duration `mapstructure:"replay_delay" yaml:"replay_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

type FilterConfig struct {
	SuppressKinds []string `mapstructure:"suppress_kinds" yaml:"suppress_kinds"`
	ReadOnlyTools []string `mapstructure:"read_only_tools" yaml:"read_only_tools"`
}

type DeployConfig struct {
	CLIPath string        `mapstructure:"cli_path" yaml:"cli_path"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

var defaults = map[string]any{
	"server.host":            "0.0.0.0",
	"server.port":            8000,
	"server.allowed_origins": []string{"*"},

	"agent.model":              "",
	"agent.cli_path":           "claude",
	"agent.base_url":           "https://api.novita.ai/anthropic",
	"agent.auth_token":         "",
	"agent.permission_mode":    "bypassPermissions",
	"agent.allowed_tools":      []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"},
	"agent.system_prompt_file": "",
	"agent.queue_size":         256,

	"session.default_workdir": "/project",
	"session.history_size":    16,

	"stream.replay_delay":       10 * time.Millisecond,
	"stream.poll_interval":      100 * time.Millisecond,
	"stream.heartbeat_interval": 15 * time.Second,

	"filter.suppress_kinds":  []string{},
	"filter.read_only_tools": []string{"Read", "Glob"},

	"deploy.cli_path": "vercel",
	"deploy.token":    "",
	"deploy.timeout":  5 * time.Minute,

	"logging.level":  "info",
	"logging.format": "text",

	"metrics.enabled": false,

	"tracing.enabled":         false,
	"tracing.exporter":        "otlp",
	"tracing.otlp_endpoint":   "localhost:4318",
	"tracing.zipkin_endpoint": "http://localhost:9411/api/v2/spans",
	"tracing.sample_rate":     1.0,
	"tracing.service_name":    "sandbox-agent",
}

// legacyEnv maps keys to the unprefixed variable names deployments already set.
var legacyEnv = map[string][]string{
	"server.port":      {"PORT"},
	"agent.model":      {"ANTHROPIC_MODEL"},
	"agent.base_url":   {"ANTHROPIC_BASE_URL"},
	"agent.auth_token": {"ANTHROPIC_AUTH_TOKEN"},
	"deploy.token":     {"VERCEL_TOKEN"},
}

// Load resolves configuration into v and decodes it. An empty path searches
// the working directory and $HOME/.sandbox-agent; a missing file is not an
// error unless path names it explicitly.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		canonical := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, canonical}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sandbox-agent"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// loadDotEnv exports variables from a dotenv file without overriding the
// real environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Stream.ReplayDelay < 0 {
		errs = append(errs, errors.New("stream.replay_delay must not be negative"))
	}
	if c.Stream.PollInterval <= 0 {
		errs = append(errs, errors.New("stream.poll_interval must be positive"))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("stream.heartbeat_interval must be positive"))
	}
	if c.Deploy.Timeout <= 0 {
		errs = append(errs, errors.New("deploy.timeout must be positive"))
	}
	if c.Session.HistorySize <= 0 {
		errs = append(errs, errors.New("session.history_size must be positive"))
	}
	if c.Agent.QueueSize <= 0 {
		errs = append(errs, errors.New("agent.queue_size must be positive"))
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if format := strings.ToLower(c.Logging.Format); format != "text" && format != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Masked returns a copy with credentials obscured.
func (c Config) Masked() Config {
	c.Agent.AuthToken = observability.MaskSecret(c.Agent.AuthToken)
	c.Deploy.Token = observability.MaskSecret(c.Deploy.Token)
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	c.Agent.AllowedTools = append([]string(nil), c.Agent.AllowedTools...)
	return c
}

// YAML renders the masked configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Masked())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
