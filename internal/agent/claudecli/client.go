// Package claudecli runs the claude CLI as the agent collaborator and adapts
// its stream-json output to the collaborator ports.
package claudecli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"sandboxagent/internal/agent/ports"
	"sandboxagent/internal/logging"
)

const (
	defaultCLIPath        = "claude"
	defaultPermissionMode = "bypassPermissions"
)

// Config describes how to launch the CLI.
type Config struct {
	CLIPath        string
	BaseURL        string
	AuthToken      string
	PermissionMode string
	// Env is appended to the inherited environment.
	Env map[string]string
}

// Client implements ports.Collaborator by spawning one CLI process per query.
type Client struct {
	config Config
	logger logging.Logger
}

var _ ports.Collaborator = (*Client)(nil)

func New(config Config, logger logging.Logger) *Client {
	if config.CLIPath == "" {
		config.CLIPath = defaultCLIPath
	}
	if config.PermissionMode == "" {
		config.PermissionMode = defaultPermissionMode
	}
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ClaudeCLI")
	}
	return &Client{config: config, logger: logger}
}

// BuildArgs returns the CLI arguments for opts.
func (c *Client) BuildArgs(opts ports.QueryOptions) []string {
	args := []string{
		"-p", opts.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", c.config.PermissionMode,
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	return args
}

// BuildEnv returns the child environment for opts.
func (c *Client) BuildEnv(opts ports.QueryOptions) []string {
	env := os.Environ()
	if c.config.BaseURL != "" {
		env = append(env, "ANTHROPIC_BASE_URL="+c.config.BaseURL)
	}
	if c.config.AuthToken != "" {
		env = append(env, "ANTHROPIC_API_KEY="+c.config.AuthToken)
	}
	if opts.Model != "" {
		env = append(env, "ANTHROPIC_MODEL="+opts.Model)
	}
	for k, v := range c.config.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Query starts the CLI and returns a stream over its output. The process is
// stopped when the stream is closed.
func (c *Client) Query(ctx context.Context, opts ports.QueryOptions) (ports.MessageStream, error) {
	if opts.WorkDir != "" {
		if info, err := os.Stat(opts.WorkDir); err != nil || !info.IsDir() {
			return nil, &ProcessError{Message: fmt.Sprintf("workdir %q is not a directory", opts.WorkDir), Cause: err}
		}
	}

	cmd := exec.CommandContext(ctx, c.config.CLIPath, c.BuildArgs(opts)...)
	cmd.Dir = opts.WorkDir
	cmd.Env = c.BuildEnv(opts)
	setProcessGroup(cmd)

	proc := newProcess(cmd)
	if err := proc.start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, &CLINotFoundError{Path: c.config.CLIPath, Cause: err}
		}
		return nil, &ProcessError{Message: "failed to start CLI process", Cause: err}
	}
	c.logger.Debug("claude started pid=%d workdir=%s", cmd.Process.Pid, opts.WorkDir)

	if prompter, ok := opts.Hooks.(ports.PromptHooks); ok {
		prompter.UserPromptSubmit(ctx, opts.Prompt)
	}

	return newStream(proc, opts.Hooks, c.logger), nil
}
