package claudecli

import (
	"bufio"
	"errors"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	maxLineSize    = 16 << 20
	stderrTailSize = 4 << 10
	stopGrace      = 2 * time.Second
)

type lineResult struct {
	line []byte
	err  error
}

// process owns one CLI child and its stdout line feed.
type process struct {
	cmd    *exec.Cmd
	stdout *io.PipeReader
	stderr *tailBuffer

	lines chan lineResult
	quit  chan struct{}

	waitDone chan struct{}
	waitErr  error
	stopOnce sync.Once
}

func newProcess(cmd *exec.Cmd) *process {
	return &process{
		cmd:      cmd,
		stderr:   &tailBuffer{limit: stderrTailSize},
		lines:    make(chan lineResult),
		quit:     make(chan struct{}),
		waitDone: make(chan struct{}),
	}
}

func (p *process) start() error {
	pr, pw := io.Pipe()
	p.stdout = pr
	p.cmd.Stdout = pw
	p.cmd.Stderr = p.stderr
	p.cmd.Cancel = func() error {
		return signalGroup(p.cmd.Process, syscall.SIGTERM)
	}

	if err := p.cmd.Start(); err != nil {
		_ = pw.Close()
		return err
	}

	go func() {
		p.waitErr = p.cmd.Wait()
		_ = pw.Close()
		close(p.waitDone)
	}()
	go p.readLines()
	return nil
}

func (p *process) readLines() {
	defer close(p.lines)
	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case p.lines <- lineResult{line: line}:
		case <-p.quit:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		select {
		case p.lines <- lineResult{err: err}:
		case <-p.quit:
		}
	}
}

// wait blocks until the child has exited and returns its exit error.
func (p *process) wait() error {
	<-p.waitDone
	return p.waitErr
}

// stop terminates the process group: SIGTERM, then SIGKILL after a grace period.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		_ = p.stdout.CloseWithError(io.ErrClosedPipe)
		select {
		case <-p.waitDone:
			return
		default:
		}

		_ = signalGroup(p.cmd.Process, syscall.SIGTERM)
		select {
		case <-p.waitDone:
			return
		case <-time.After(stopGrace):
		}

		_ = signalGroup(p.cmd.Process, syscall.SIGKILL)
		<-p.waitDone
	})
}

// exitCode returns the child's exit status, or -1 when unknown.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
