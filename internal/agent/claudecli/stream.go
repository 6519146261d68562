package claudecli

import (
	"context"
	"io"
	"strings"
	"sync"

	"sandboxagent/internal/agent/ports"
	"sandboxagent/internal/logging"
)

type toolRef struct {
	name  string
	input map[string]any
}

// stream adapts CLI output lines to ports messages and fires tool hooks for
// tool_use and tool_result blocks before handing their message out.
type stream struct {
	proc   *process
	hooks  ports.ToolHooks
	logger logging.Logger

	tools     map[string]toolRef
	gotResult bool

	closeOnce sync.Once
}

func newStream(proc *process, hooks ports.ToolHooks, logger logging.Logger) *stream {
	return &stream{
		proc:   proc,
		hooks:  hooks,
		logger: logging.OrNop(logger),
		tools:  make(map[string]toolRef),
	}
}

func (s *stream) Next(ctx context.Context) (ports.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res, ok := <-s.proc.lines:
			if !ok {
				return nil, s.finish()
			}
			if res.err != nil {
				return nil, &ProcessError{Message: "failed to read CLI output", Cause: res.err}
			}
			msg, err := decodeLine(res.line)
			if err != nil {
				s.logger.Debug("skipping undecodable line: %v", err)
				continue
			}
			if msg == nil {
				continue
			}
			s.fireHooks(ctx, msg)
			return msg, nil
		}
	}
}

func (s *stream) finish() error {
	err := s.proc.wait()
	if err == nil || s.gotResult {
		return io.EOF
	}
	code := exitCode(err)
	return &ProcessError{
		Message:  "CLI exited without a result",
		ExitCode: code,
		Stderr:   strings.TrimSpace(s.proc.stderr.String()),
		Cause:    err,
	}
}

func (s *stream) fireHooks(ctx context.Context, msg ports.Message) {
	switch m := msg.(type) {
	case ports.ResultMessage:
		s.gotResult = true
	case ports.ContentMessage:
		for _, block := range m.Blocks {
			switch b := block.(type) {
			case ports.ToolUseBlock:
				s.tools[b.ID] = toolRef{name: b.Name, input: b.Input}
				if s.hooks != nil {
					s.hooks.PreToolUse(ctx, ports.ToolHookInput{ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input})
				}
			case ports.ToolResultBlock:
				ref := s.tools[b.ToolUseID]
				delete(s.tools, b.ToolUseID)
				if s.hooks != nil {
					s.hooks.PostToolUse(ctx, ports.ToolHookInput{
						ToolUseID:    b.ToolUseID,
						ToolName:     ref.name,
						ToolInput:    ref.input,
						ToolResponse: b.Content,
						IsError:      b.IsError,
					})
				}
			}
		}
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.proc.stop()
		s.logger.Debug("claude stopped: %s", describeExit(s.proc.waitErr))
	})
	return nil
}

func describeExit(err error) string {
	if err == nil {
		return "exit 0"
	}
	return err.Error()
}
