// Package runner merges collaborator messages and tool callbacks into a single
// causally ordered event log.
package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"io"
	"runtime/debug"
	"time"

	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/agent/hooks"
	"sandboxagent/internal/agent/ports"
	"sandboxagent/internal/logging"
)

const unknownModel = "unknown"

// EventSink receives merged events in order.
type EventSink interface {
	Append(event domain.Event)
}

// Options are the run parameters that do not vary per session.
type Options struct {
	Model        string
	SystemPrompt string
	AllowedTools []string
	QueueSize    int
}

// Request identifies the work for one run.
type Request struct {
	Prompt  string
	WorkDir string
}

// Runner drives one collaborator run per call to Run.
type Runner struct {
	collaborator ports.Collaborator
	opts         Options
	logger       logging.Logger
	clock        func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock overrides the time source used for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.OrNop(logger)
	}
}

func New(collaborator ports.Collaborator, opts Options, options ...Option) *Runner {
	r := &Runner{
		collaborator: collaborator,
		opts:         opts,
		logger:       logging.NewComponentLogger("Runner"),
		clock:        time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Model returns the model reported in started events.
func (r *Runner) Model() string {
	if r.opts.Model == "" {
		return unknownModel
	}
	return r.opts.Model
}

// Run executes one agent run. The first event appended is started and the
// last is completed on success or error on failure.
func (r *Runner) Run(ctx context.Context, req Request, sink EventSink) error {
	started := r.clock()
	sink.Append(domain.NewStartedEvent(r.Model(), req.Prompt, req.WorkDir, started))

	bridge := hooks.NewBridge(hooks.NewQueue(r.opts.QueueSize), r.clock)
	flush := func() {
		for _, event := range bridge.Drain() {
			sink.Append(event)
		}
	}

	if err := r.consume(ctx, req, bridge, sink, flush); err != nil {
		r.logger.Warn("agent run failed: %v", err)
		bridge.OnError(err)
		flush()
		return fmt.Errorf("agent run: %w", err)
	}

	// A start whose after callback never arrived still gets its terminal event.
	bridge.CloseOutstanding()
	flush()

	finished := r.clock()
	sink.Append(domain.NewCompletedEvent(finished.Sub(started), finished))
	return nil
}

func (r *Runner) consume(ctx context.Context, req Request, bridge *hooks.Bridge, sink EventSink, flush func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered, Stack: string(debug.Stack())}
		}
	}()

	stream, err := r.collaborator.Query(ctx, ports.QueryOptions{
		Prompt:       req.Prompt,
		WorkDir:      req.WorkDir,
		Model:        r.opts.Model,
		SystemPrompt: r.opts.SystemPrompt,
		AllowedTools: append([]string(nil), r.opts.AllowedTools...),
		Hooks:        bridge,
	})
	if err != nil {
		return fmt.Errorf("query collaborator: %w", err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			r.logger.Debug("close message stream: %v", closeErr)
		}
	}()

	for {
		msg, nextErr := stream.Next(ctx)
		// Callback events fired while producing msg precede it.
		flush()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}
		if nextErr != nil {
			return nextErr
		}
		for _, event := range r.translate(msg) {
			sink.Append(event)
		}
	}
}

func (r *Runner) translate(msg ports.Message) []domain.Event {
	now := r.clock()
	switch m := msg.(type) {
	case ports.ContentMessage:
		return r.translateBlocks(m.Blocks, now)
	case *ports.ContentMessage:
		return r.translateBlocks(m.Blocks, now)
	case ports.ResultMessage:
		return []domain.Event{resultEvent(m, now)}
	case *ports.ResultMessage:
		return []domain.Event{resultEvent(*m, now)}
	case ports.SystemMessage:
		return []domain.Event{domain.NewSystemEvent(m.Subtype, m.Data, now)}
	case *ports.SystemMessage:
		return []domain.Event{domain.NewSystemEvent(m.Subtype, m.Data, now)}
	case nil:
		return nil
	default:
		r.logger.Debug("skipping unsupported message %T", msg)
		return nil
	}
}

func (r *Runner) translateBlocks(blocks []ports.ContentBlock, now time.Time) []domain.Event {
	events := make([]domain.Event, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case ports.TextBlock:
			if b.Text != "" {
				events = append(events, domain.NewTextEvent(b.Text, now))
			}
		case ports.ThinkingBlock:
			if b.Thinking != "" {
				events = append(events, domain.NewThinkingEvent(b.Thinking, now))
			}
		case ports.ToolUseBlock:
			input := maps.Clone(b.Input)
			if input == nil {
				input = map[string]any{}
			}
			events = append(events, domain.NewToolUseEvent(b.ID, b.Name, input, now))
		case ports.ToolResultBlock:
			events = append(events, domain.NewToolResultEvent(b.ToolUseID, b.Content, b.IsError, now))
		default:
			r.logger.Debug("skipping unsupported content block %T", block)
		}
	}
	return events
}

func resultEvent(m ports.ResultMessage, now time.Time) domain.Event {
	return domain.NewResultEvent(domain.ResultSummary{
		Subtype:       m.Subtype,
		DurationMs:    m.DurationMs,
		DurationAPIMs: m.DurationAPIMs,
		IsError:       m.IsError,
		NumTurns:      m.NumTurns,
		SessionID:     m.SessionID,
		TotalCostUSD:  m.TotalCostUSD,
		Usage:         m.Usage,
		Result:        m.Result,
	}, now)
}

// PanicError reports a panic raised by the collaborator during a run.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("collaborator panic: %v", e.Value)
}

func (e *PanicError) ErrorType() string { return "PanicError" }
