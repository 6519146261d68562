package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxagent/internal/logging"
)

type fakeRunner struct {
	result CommandResult
	err    error
	block  bool

	dir  string
	name string
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
	f.dir, f.name, f.args = dir, name, args
	if f.block {
		<-ctx.Done()
		return CommandResult{}, ctx.Err()
	}
	return f.result, f.err
}

func TestDeployReturnsURL(t *testing.T) {
	runner := &fakeRunner{result: CommandResult{Stdout: "https://app-abc.vercel.app\n"}}
	d := NewVercelDeployer(Config{Token: "tok"}, runner, logging.Nop())

	url, err := d.Deploy(context.Background(), "/tmp/proj")
	require.NoError(t, err)
	assert.Equal(t, "https://app-abc.vercel.app", url)
	assert.Equal(t, "/tmp/proj", runner.dir)
	assert.Equal(t, "vercel", runner.name)
	assert.Equal(t, []string{"-t", "tok", "deploy", "--prod", "--yes"}, runner.args)
}

func TestDeployFailures(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		runner  *fakeRunner
		target  error
		message string
	}{
		{name: "missing token", config: Config{}, runner: &fakeRunner{}, target: ErrMissingToken},
		{name: "non-zero exit", config: Config{Token: "t"}, runner: &fakeRunner{result: CommandResult{ExitCode: 1, Stderr: "not linked"}}, message: "not linked"},
		{name: "empty url", config: Config{Token: "t"}, runner: &fakeRunner{result: CommandResult{Stdout: "  "}}, target: ErrInvalidURL},
		{name: "bad url", config: Config{Token: "t"}, runner: &fakeRunner{result: CommandResult{Stdout: "Deployed!"}}, target: ErrInvalidURL},
		{name: "exec error", config: Config{Token: "t"}, runner: &fakeRunner{err: errors.New("exec: not found")}, message: "run vercel"},
		{name: "timeout", config: Config{Token: "t", Timeout: 10 * time.Millisecond}, runner: &fakeRunner{block: true}, target: context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewVercelDeployer(tt.config, tt.runner, logging.Nop())
			_, err := d.Deploy(context.Background(), t.TempDir())
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func writeFakeVercel(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable on windows")
	}
	path := filepath.Join(t.TempDir(), "vercel")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecRunnerDeploy(t *testing.T) {
	cli := writeFakeVercel(t, "echo https://app.vercel.app\n")
	deployer := NewVercelDeployer(Config{CLIPath: cli, Token: "tok"}, ExecRunner{}, logging.Nop())

	url, err := deployer.Deploy(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "https://app.vercel.app", url)
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	cli := writeFakeVercel(t, "echo 'not logged in' >&2\nexit 3\n")
	deployer := NewVercelDeployer(Config{CLIPath: cli, Token: "tok"}, ExecRunner{}, logging.Nop())

	_, err := deployer.Deploy(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "not logged in")
}

func TestExecRunnerTimesOut(t *testing.T) {
	cli := writeFakeVercel(t, "sleep 5\n")
	deployer := NewVercelDeployer(Config{CLIPath: cli, Token: "tok", Timeout: 100 * time.Millisecond}, ExecRunner{}, logging.Nop())

	start := time.Now()
	_, err := deployer.Deploy(context.Background(), t.TempDir())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, elapsed, 4*time.Second)
}
