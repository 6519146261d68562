package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"sandboxagent/internal/logging"
	"sandboxagent/internal/observability"
	"sandboxagent/internal/server/app"
)

// RouterDeps bundles what the router wires into handlers.
type RouterDeps struct {
	Service           SessionAPI
	Health            *app.HealthChecker
	Metrics           *observability.MetricsCollector
	Logger            logging.Logger
	Version           string
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

// NewRouter builds the gin engine serving the public API.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("HTTP")
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware(deps.AllowedOrigins))

	api := NewAPIHandler(deps.Service, deps.Health, deps.Version, logger)
	sse := NewSSEHandler(deps.Service, logger, WithHeartbeatInterval(deps.HeartbeatInterval))
	ws := NewWSHandler(deps.Service, logger)

	engine.GET("/", api.HandleRoot)
	engine.GET("/health", api.HandleHealth)
	engine.POST("/generate", api.HandleGenerate)
	engine.GET("/stream", sse.HandleSSEStream)
	engine.GET("/ws", ws.HandleWebSocket)
	engine.POST("/deploy", api.HandleDeploy)

	sessions := engine.Group("/sessions")
	sessions.GET("", api.HandleListSessions)
	sessions.GET("/current", api.HandleCurrentSession)
	sessions.GET("/:id", api.HandleGetSession)

	if deps.Metrics.Enabled() {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return engine
}
