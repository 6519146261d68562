// Package deploy publishes a generated project with the Vercel CLI.
package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"sandboxagent/internal/logging"
)

const (
	defaultCLIPath = "vercel"
	defaultTimeout = 5 * time.Minute

	// waitDelay bounds how long Run waits for output pipes after the process
	// is killed, e.g. when a grandchild still holds stdout.
	waitDelay = time.Second
)

var (
	// ErrMissingToken is returned when no Vercel token is configured.
	ErrMissingToken = errors.New("vercel token not configured")
	// ErrInvalidURL is returned when the CLI output is not a deployment URL.
	ErrInvalidURL = errors.New("deployment returned an invalid URL")
)

// CommandResult is the outcome of one CLI invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes name with args in dir.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

// Config configures VercelDeployer.
type Config struct {
	CLIPath string
	Token   string
	Timeout time.Duration
}

// VercelDeployer runs `vercel -t <token> deploy --prod --yes` in a workdir.
type VercelDeployer struct {
	config Config
	runner CommandRunner
	logger logging.Logger
}

func NewVercelDeployer(config Config, runner CommandRunner, logger logging.Logger) *VercelDeployer {
	if config.CLIPath == "" {
		config.CLIPath = defaultCLIPath
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("VercelDeployer")
	}
	return &VercelDeployer{config: config, runner: runner, logger: logger}
}

// Configured reports whether a token is available.
func (d *VercelDeployer) Configured() bool {
	return d.config.Token != ""
}

// Deploy returns the production URL printed by the CLI.
func (d *VercelDeployer) Deploy(ctx context.Context, workdir string) (string, error) {
	if !d.Configured() {
		return "", ErrMissingToken
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	d.logger.Info("starting vercel deployment in %s", workdir)
	result, err := d.runner.Run(ctx, workdir, d.config.CLIPath, "-t", d.config.Token, "deploy", "--prod", "--yes")
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("deployment timed out after %s: %w", d.config.Timeout, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("run vercel: %w", err)
	}
	if result.ExitCode != 0 {
		d.logger.Error("vercel deployment failed (exit code %d): %s", result.ExitCode, result.Stderr)
		return "", fmt.Errorf("deployment failed (exit code %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	url := strings.TrimSpace(result.Stdout)
	if url == "" {
		return "", fmt.Errorf("deployment succeeded but returned empty URL: %w", ErrInvalidURL)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	d.logger.Info("deployment successful: %s", url)
	return url, nil
}
