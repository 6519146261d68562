// Package bootstrap wires configuration into a running HTTP service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"sandboxagent/internal/agent/claudecli"
	"sandboxagent/internal/agent/ports"
	"sandboxagent/internal/agent/runner"
	"sandboxagent/internal/config"
	"sandboxagent/internal/deploy"
	"sandboxagent/internal/logging"
	"sandboxagent/internal/observability"
	serverApp "sandboxagent/internal/server/app"
	serverHTTP "sandboxagent/internal/server/http"
)

const shutdownTimeout = 10 * time.Second

// Server is the assembled service.
type Server struct {
	Config  config.Config
	Service *serverApp.SessionService
	Handler http.Handler
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider

	logger     logging.Logger
	cancelRuns context.CancelFunc
}

// Option customises Build.
type Option func(*buildOptions)

type buildOptions struct {
	collaborator ports.Collaborator
	deployRunner deploy.CommandRunner
}

// WithCollaborator replaces the CLI-backed collaborator.
func WithCollaborator(c ports.Collaborator) Option {
	return func(o *buildOptions) { o.collaborator = c }
}

// WithDeployRunner replaces the process runner used for deployments.
func WithDeployRunner(r deploy.CommandRunner) Option {
	return func(o *buildOptions) { o.deployRunner = r }
}

// Build assembles the service graph from cfg. Logging must already be configured.
func Build(cfg config.Config, version string, opts ...Option) (*Server, error) {
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}
	logger := logging.NewComponentLogger("Bootstrap")

	metrics, err := observability.NewMetricsCollector(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	tracingConfig := cfg.Tracing
	tracingConfig.ServiceVersion = version
	tracer, err := observability.NewTracerProvider(tracingConfig)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	systemPrompt, err := loadSystemPrompt(cfg.Agent.SystemPromptFile)
	if err != nil {
		return nil, err
	}

	collaborator := options.collaborator
	if collaborator == nil {
		collaborator = claudecli.New(claudecli.Config{
			CLIPath:        cfg.Agent.CLIPath,
			BaseURL:        cfg.Agent.BaseURL,
			AuthToken:      cfg.Agent.AuthToken,
			PermissionMode: cfg.Agent.PermissionMode,
		}, logging.NewComponentLogger("ClaudeCLI"))
	}
	agent := runner.New(collaborator, runner.Options{
		Model:        cfg.Agent.Model,
		SystemPrompt: systemPrompt,
		AllowedTools: cfg.Agent.AllowedTools,
		QueueSize:    cfg.Agent.QueueSize,
	}, runner.WithLogger(logging.NewComponentLogger("Runner")))

	registry, err := serverApp.NewSessionRegistry(cfg.Session.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("session registry: %w", err)
	}
	policy, err := serverApp.NewFilterPolicy(serverApp.FilterConfig{
		SuppressKinds: cfg.Filter.SuppressKinds,
		ReadOnlyTools: cfg.Filter.ReadOnlyTools,
	})
	if err != nil {
		return nil, fmt.Errorf("event filter: %w", err)
	}
	publisher := serverApp.NewStreamPublisher(policy, serverApp.StreamConfig{
		ReplayDelay:  cfg.Stream.ReplayDelay,
		PollInterval: cfg.Stream.PollInterval,
	}, metrics, tracer)

	deployer := deploy.NewVercelDeployer(deploy.Config{
		CLIPath: cfg.Deploy.CLIPath,
		Token:   cfg.Deploy.Token,
		Timeout: cfg.Deploy.Timeout,
	}, options.deployRunner, logging.NewComponentLogger("Deploy"))

	runCtx, cancelRuns := context.WithCancel(context.Background())
	service := serverApp.NewSessionService(runCtx, registry, agent, publisher,
		serverApp.SessionServiceConfig{DefaultWorkdir: cfg.Session.DefaultWorkdir},
		serverApp.WithDeployer(deployer),
		serverApp.WithMetrics(metrics),
		serverApp.WithTracer(tracer),
		serverApp.WithLogger(logging.NewComponentLogger("SessionService")),
	)

	health := serverApp.NewHealthChecker(
		serverApp.NewBinaryProbe("agent_cli", cfg.Agent.CLIPath, options.collaborator == nil),
		serverApp.NewBinaryProbe("deploy", cfg.Deploy.CLIPath, deployer.Configured()),
		serverApp.NewSessionProbe(registry),
	)

	gin.SetMode(gin.ReleaseMode)
	router := serverHTTP.NewRouter(serverHTTP.RouterDeps{
		Service:           service,
		Health:            health,
		Metrics:           metrics,
		Logger:            logging.NewComponentLogger("HTTP"),
		Version:           version,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
	})

	logger.Info("model=%s cli=%s base_url=%s auth_token=%s deploy_configured=%t metrics=%t tracing=%t",
		agent.Model(), cfg.Agent.CLIPath, cfg.Agent.BaseURL, observability.MaskSecret(cfg.Agent.AuthToken),
		deployer.Configured(), metrics.Enabled(), cfg.Tracing.Enabled)

	return &Server{
		Config:     cfg,
		Service:    service,
		Handler:    router,
		Metrics:    metrics,
		Tracer:     tracer,
		logger:     logger,
		cancelRuns: cancelRuns,
	}, nil
}

// Listen binds the configured address, naming the port when it is taken.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("address %s is already in use; stop the other process or set server.port", addr)
		}
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown: %w", err))
		}
		s.cancelRuns()
		if err := s.Service.Wait(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("wait for runs: %w", err))
		}
		if err := s.Metrics.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
		if err := s.Tracer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		s.logger.Info("Server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

// RunServer builds the service, binds the port and serves until SIGINT or SIGTERM.
func RunServer(cfg config.Config, version string, opts ...Option) error {
	ln, err := Listen(cfg.Server.Addr())
	if err != nil {
		return err
	}
	server, err := Build(cfg, version, opts...)
	if err != nil {
		_ = ln.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, ln)
}
