// Package agenttest provides a deterministic collaborator for tests.
package agenttest

import (
	"context"
	"io"
	"sync"
	"time"

	"sandboxagent/internal/agent/ports"
)

type stepKind int

const (
	stepPre stepKind = iota
	stepPost
	stepPrompt
	stepMessage
	stepError
	stepPanic
	stepGate
	stepDelay
)

// Step is one scripted action performed by the collaborator stream.
type Step struct {
	kind    stepKind
	hook    ports.ToolHookInput
	prompt  string
	message ports.Message
	err     error
	value   any
	gate    <-chan struct{}
	delay   time.Duration
}

// Pre fires the pre-tool hook.
func Pre(input ports.ToolHookInput) Step { return Step{kind: stepPre, hook: input} }

// Post fires the post-tool hook.
func Post(input ports.ToolHookInput) Step { return Step{kind: stepPost, hook: input} }

// Prompt fires the user prompt hook when the hooks support it.
func Prompt(text string) Step { return Step{kind: stepPrompt, prompt: text} }

// Message yields msg from Next.
func Message(msg ports.Message) Step { return Step{kind: stepMessage, message: msg} }

// Fail makes Next return err.
func Fail(err error) Step { return Step{kind: stepError, err: err} }

// Panic makes Next panic with value.
func Panic(value any) Step { return Step{kind: stepPanic, value: value} }

// Gate blocks the stream until ch is closed or the context ends.
func Gate(ch <-chan struct{}) Step { return Step{kind: stepGate, gate: ch} }

// Delay pauses the stream.
func Delay(d time.Duration) Step { return Step{kind: stepDelay, delay: d} }

// Text is shorthand for an assistant message with a single text block.
func Text(text string) Step {
	return Message(ports.ContentMessage{Role: "assistant", Blocks: []ports.ContentBlock{ports.TextBlock{Text: text}}})
}

// Collaborator replays Steps for every Query.
type Collaborator struct {
	Steps    []Step
	QueryErr error

	mu      sync.Mutex
	queries []ports.QueryOptions
}

var _ ports.Collaborator = (*Collaborator)(nil)

// New returns a collaborator that runs steps on each query.
func New(steps ...Step) *Collaborator {
	return &Collaborator{Steps: steps}
}

func (c *Collaborator) Query(_ context.Context, opts ports.QueryOptions) (ports.MessageStream, error) {
	c.mu.Lock()
	c.queries = append(c.queries, opts)
	c.mu.Unlock()

	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	return &stream{steps: append([]Step(nil), c.Steps...), hooks: opts.Hooks}, nil
}

// Queries reports how many times Query was called.
func (c *Collaborator) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// LastOptions returns the options of the most recent query.
func (c *Collaborator) LastOptions() ports.QueryOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queries) == 0 {
		return ports.QueryOptions{}
	}
	return c.queries[len(c.queries)-1]
}

type stream struct {
	steps []Step
	hooks ports.ToolHooks
}

func (s *stream) Next(ctx context.Context) (ports.Message, error) {
	for len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]

		switch step.kind {
		case stepPre:
			if s.hooks != nil {
				s.hooks.PreToolUse(ctx, step.hook)
			}
		case stepPost:
			if s.hooks != nil {
				s.hooks.PostToolUse(ctx, step.hook)
			}
		case stepPrompt:
			if prompter, ok := s.hooks.(ports.PromptHooks); ok {
				prompter.UserPromptSubmit(ctx, step.prompt)
			}
		case stepMessage:
			return step.message, nil
		case stepError:
			return nil, step.err
		case stepPanic:
			panic(step.value)
		case stepGate:
			select {
			case <-step.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case stepDelay:
			select {
			case <-time.After(step.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, io.EOF
}

func (s *stream) Close() error {
	s.steps = nil
	return nil
}
