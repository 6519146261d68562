package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/agent/runner"
	"sandboxagent/internal/async"
	"sandboxagent/internal/deploy"
	"sandboxagent/internal/logging"
	"sandboxagent/internal/observability"
)

const defaultWorkdir = "/project"

// AgentRunner executes one agent run, appending events to sink.
type AgentRunner interface {
	Run(ctx context.Context, req runner.Request, sink runner.EventSink) error
	Model() string
}

// Deployer publishes a finished workdir and returns its public URL.
type Deployer interface {
	Deploy(ctx context.Context, workdir string) (string, error)
}

// StartRequest is the input to SessionService.Start.
type StartRequest struct {
	Prompt  string
	Workdir string
}

// SessionServiceConfig holds the service's tunables.
type SessionServiceConfig struct {
	DefaultWorkdir string
}

// SessionService starts agent runs and attaches stream subscribers to them.
type SessionService struct {
	baseCtx   context.Context
	registry  *SessionRegistry
	runner    AgentRunner
	publisher *StreamPublisher
	deployer  Deployer
	metrics   *observability.MetricsCollector
	tracer    *observability.TracerProvider
	logger    logging.Logger
	config    SessionServiceConfig

	runs sync.WaitGroup
}

// SessionServiceOption customizes a SessionService.
type SessionServiceOption func(*SessionService)

func WithDeployer(d Deployer) SessionServiceOption {
	return func(s *SessionService) { s.deployer = d }
}

func WithMetrics(m *observability.MetricsCollector) SessionServiceOption {
	return func(s *SessionService) { s.metrics = m }
}

func WithTracer(t *observability.TracerProvider) SessionServiceOption {
	return func(s *SessionService) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithLogger(l logging.Logger) SessionServiceOption {
	return func(s *SessionService) { s.logger = logging.OrNop(l) }
}

// NewSessionService wires the service. Background runs inherit baseCtx, not
// the context of the request that started them.
func NewSessionService(baseCtx context.Context, registry *SessionRegistry, agent AgentRunner, publisher *StreamPublisher, config SessionServiceConfig, opts ...SessionServiceOption) *SessionService {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if config.DefaultWorkdir == "" {
		config.DefaultWorkdir = defaultWorkdir
	}
	s := &SessionService{
		baseCtx:   baseCtx,
		registry:  registry,
		runner:    agent,
		publisher: publisher,
		config:    config,
		tracer:    observability.NoopTracerProvider(),
		logger:    logging.NewComponentLogger("SessionService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the model name used for runs.
func (s *SessionService) Model() string {
	return s.runner.Model()
}

// Start validates req and returns the active session, launching a new run
// unless one is already in flight.
func (s *SessionService) Start(_ context.Context, req StartRequest) (*Session, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ValidationError("prompt is required")
	}
	workdir := strings.TrimSpace(req.Workdir)
	if workdir == "" {
		workdir = s.config.DefaultWorkdir
	}
	workdir = filepath.Clean(workdir)
	info, err := os.Stat(workdir)
	switch {
	case err != nil:
		return nil, ValidationError(fmt.Sprintf("workdir %s does not exist", workdir))
	case !info.IsDir():
		return nil, ValidationError(fmt.Sprintf("workdir %s is not a directory", workdir))
	}

	session, _ := s.registry.GetOrCreate(prompt, workdir)
	launched := session.Launch(func() {
		s.runs.Add(1)
		async.Go(s.logger, "session-run-"+session.ID(), func() {
			defer s.runs.Done()
			s.run(session)
		})
	})
	if launched {
		s.logger.Info("session %s started in %s", session.ID(), workdir)
	} else {
		s.logger.Debug("session %s already running, start ignored", session.ID())
	}
	return session, nil
}

func (s *SessionService) run(session *Session) {
	ctx := observability.ContextWithSessionID(s.baseCtx, session.ID())
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanSessionRun,
		attribute.String(observability.AttrWorkdir, session.Workdir()),
		attribute.String(observability.AttrModel, s.runner.Model()),
	)
	s.metrics.RecordSessionStarted(ctx)
	sink := &sessionSink{ctx: ctx, session: session, metrics: s.metrics}

	var err error
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("session run panic: %v", recovered)
			sink.Append(domain.NewErrorEvent(err.Error(), "PanicError", time.Now()))
		}
		status := SessionCompleted
		if err != nil {
			status = SessionError
		}
		session.Finish(status, err)
		s.metrics.RecordSessionFinished(ctx, string(status))
		observability.EndSpan(span, err,
			attribute.String(observability.AttrStatus, string(status)),
			attribute.Int(observability.AttrEvents, session.Len()),
		)
		if err != nil {
			s.logger.Warn("session %s failed: %v", session.ID(), err)
			return
		}
		s.logger.Info("session %s completed with %d events", session.ID(), session.Len())
	}()

	err = s.runner.Run(ctx, runner.Request{Prompt: session.Prompt(), WorkDir: session.Workdir()}, sink)
}

// Subscribe streams the active session to emit.
func (s *SessionService) Subscribe(ctx context.Context, emit EmitFunc) error {
	session, err := s.ActiveSession()
	if err != nil {
		return err
	}
	return s.Stream(ctx, session, emit)
}

// Stream replays and tails session for one subscriber.
func (s *SessionService) Stream(ctx context.Context, session *Session, emit EmitFunc) error {
	return s.publisher.Publish(ctx, session, emit)
}

// ActiveSession returns the current or most recent session.
func (s *SessionService) ActiveSession() (*Session, error) {
	session := s.registry.Active()
	if session == nil {
		return nil, NotFoundError("no active session")
	}
	return session, nil
}

// Current summarizes the active session.
func (s *SessionService) Current() (SessionSummary, error) {
	session, err := s.ActiveSession()
	if err != nil {
		return SessionSummary{}, err
	}
	return session.Summary(), nil
}

// Get summarizes a recently created session.
func (s *SessionService) Get(sessionID string) (SessionSummary, error) {
	session, ok := s.registry.Lookup(sessionID)
	if !ok {
		return SessionSummary{}, NotFoundError(fmt.Sprintf("session %s not found", sessionID))
	}
	return session.Summary(), nil
}

// Recent summarizes remembered sessions, newest first.
func (s *SessionService) Recent() []SessionSummary {
	sessions := s.registry.Recent()
	out := make([]SessionSummary, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		out = append(out, sessions[i].Summary())
	}
	return out
}

// Deploy publishes the active session's workdir.
func (s *SessionService) Deploy(ctx context.Context) (string, error) {
	session := s.registry.Active()
	if session == nil {
		return "", ValidationError("no session available; generate an app first")
	}
	if session.Running() {
		return "", ConflictError(fmt.Sprintf("session %s is still running", session.ID()))
	}
	if s.deployer == nil {
		return "", UnavailableError("deployment is not configured", nil)
	}

	url, err := s.deployer.Deploy(ctx, session.Workdir())
	if err != nil {
		if errors.Is(err, deploy.ErrMissingToken) {
			return "", UnavailableError("deployment token is not configured", err)
		}
		return "", fmt.Errorf("deploy %s: %w", session.ID(), err)
	}
	s.logger.Info("session %s deployed to %s", session.ID(), url)
	return url, nil
}

// Wait blocks until every background run has finished or ctx ends.
func (s *SessionService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sessionSink appends merged events to the session log and records metrics.
type sessionSink struct {
	ctx     context.Context
	session *Session
	metrics *observability.MetricsCollector
}

func (k *sessionSink) Append(event domain.Event) {
	if !k.session.Append(event) {
		return
	}
	k.metrics.RecordEvent(k.ctx, event.Kind().String())
	switch event.Kind() {
	case domain.KindToolEnd, domain.KindToolError:
		ms, _ := event.Get("duration_ms")
		if millis, ok := ms.(float64); ok {
			k.metrics.RecordToolDuration(k.ctx, event.Data().String("tool"), event.Kind() == domain.KindToolEnd,
				time.Duration(millis*float64(time.Millisecond)))
		}
	}
}

var _ runner.EventSink = (*sessionSink)(nil)
