package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/observability"
)

const (
	defaultReplayDelay  = 10 * time.Millisecond
	defaultPollInterval = 100 * time.Millisecond
)

// EmitFunc delivers one event to a subscriber. An error detaches the
// subscriber.
type EmitFunc func(domain.Event) error

// StreamConfig tunes replay pacing and tail polling.
type StreamConfig struct {
	ReplayDelay  time.Duration
	PollInterval time.Duration
}

// DefaultStreamConfig paces replay at 10ms per event and polls every 100ms.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{ReplayDelay: defaultReplayDelay, PollInterval: defaultPollInterval}
}

// StreamPublisher replays a session's filtered history to one subscriber and
// then tails new events until the run finishes.
type StreamPublisher struct {
	policy  *FilterPolicy
	config  StreamConfig
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
}

func NewStreamPublisher(policy *FilterPolicy, config StreamConfig, metrics *observability.MetricsCollector, tracer *observability.TracerProvider) *StreamPublisher {
	if policy == nil {
		policy = DefaultFilterPolicy()
	}
	if config.ReplayDelay < 0 {
		config.ReplayDelay = 0
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if tracer == nil {
		tracer = observability.NoopTracerProvider()
	}
	return &StreamPublisher{policy: policy, config: config, metrics: metrics, tracer: tracer}
}

// Publish streams session to emit. It returns nil once the run has finished
// and every forwarded event was delivered, ctx.Err() on cancellation, or the
// first emit error.
func (p *StreamPublisher) Publish(ctx context.Context, session *Session, emit EmitFunc) (err error) {
	ctx = observability.ContextWithSessionID(ctx, session.ID())
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanStreamSubscriber)
	p.metrics.RecordSubscriber(ctx, 1)
	delivered := 0
	defer func() {
		p.metrics.RecordSubscriber(ctx, -1)
		observability.EndSpan(span, err, attribute.Int(observability.AttrEvents, delivered))
	}()

	send := func(event domain.Event) error {
		if !p.policy.Forward(event) {
			return nil
		}
		if err := emit(event); err != nil {
			return err
		}
		delivered++
		p.metrics.RecordPublished(ctx)
		return nil
	}

	snapshot := session.Snapshot()
	cursor := len(snapshot)
	for _, event := range snapshot {
		if !p.policy.Forward(event) {
			continue
		}
		if err := send(event); err != nil {
			return err
		}
		if err := sleepCtx(ctx, p.config.ReplayDelay); err != nil {
			return err
		}
	}

	for {
		// Status is read before the log so a finished run is fully drained.
		running := session.Running()
		pending := session.EventsFrom(cursor)
		cursor += len(pending)
		for _, event := range pending {
			if err := send(event); err != nil {
				return err
			}
		}
		if !running {
			return nil
		}
		if err := sleepCtx(ctx, p.config.PollInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
