package http

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"sandboxagent/internal/logging"
	"sandboxagent/internal/server/app"
)

// SessionAPI is the service surface the transport depends on.
type SessionAPI interface {
	Start(ctx context.Context, req app.StartRequest) (*app.Session, error)
	ActiveSession() (*app.Session, error)
	Stream(ctx context.Context, session *app.Session, emit app.EmitFunc) error
	Current() (app.SessionSummary, error)
	Get(sessionID string) (app.SessionSummary, error)
	Recent() []app.SessionSummary
	Deploy(ctx context.Context) (string, error)
	Model() string
}

// APIHandler serves the JSON endpoints.
type APIHandler struct {
	service   SessionAPI
	logger    logging.Logger
	version   string
	startedAt time.Time
	self      *process.Process
	health    *app.HealthChecker
}

func NewAPIHandler(service SessionAPI, health *app.HealthChecker, version string, logger logging.Logger) *APIHandler {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("APIHandler")
	}
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Debug("process stats unavailable: %v", err)
	}
	return &APIHandler{
		service:   service,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
		self:      self,
		health:    health,
	}
}

type generateRequest struct {
	Prompt  string `json:"prompt"`
	Workdir string `json:"workdir"`
}

type generateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

type deployResponse struct {
	VercelURL string `json:"vercelUrl"`
}

type healthResponse struct {
	Status   string  `json:"status"`
	Model    string  `json:"model"`
	Uptime   float64 `json:"uptime"`
	RSSBytes uint64  `json:"rss_bytes,omitempty"`

	Components []app.ComponentHealth `json:"components,omitempty"`
}

// HandleRoot describes the service.
func (h *APIHandler) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "Sandbox Agent",
		"version": h.version,
		"endpoints": gin.H{
			"POST /generate":        "Start code generation (returns session id)",
			"GET /stream":           "SSE stream of generation events",
			"GET /ws":               "WebSocket stream of generation events",
			"GET /sessions":         "Recently created sessions",
			"GET /sessions/current": "Active session summary",
			"GET /sessions/:id":     "Session summary by id",
			"GET /health":           "Health check",
			"POST /deploy":          "Deploy to Vercel",
		},
	})
}

func (h *APIHandler) HandleHealth(c *gin.Context) {
	resp := healthResponse{
		Status: "ok",
		Model:  h.service.Model(),
		Uptime: time.Since(h.startedAt).Seconds(),

		Components: h.health.CheckAll(c.Request.Context()),
	}
	if h.self != nil {
		if mem, err := h.self.MemoryInfo(); err == nil && mem != nil {
			resp.RSSBytes = mem.RSS
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGenerate starts a run, or reports the one already in flight.
func (h *APIHandler) HandleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeJSONError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.logger.Info("received generate request workdir=%s", req.Workdir)

	session, err := h.service.Start(c.Request.Context(), app.StartRequest{Prompt: req.Prompt, Workdir: req.Workdir})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, generateResponse{Success: true, SessionID: session.ID()})
}

func (h *APIHandler) HandleCurrentSession(c *gin.Context) {
	summary, err := h.service.Current()
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *APIHandler) HandleGetSession(c *gin.Context) {
	summary, err := h.service.Get(c.Param("id"))
	if err != nil {
		h.writeJSONError(c, statusForError(err), "Session not found", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *APIHandler) HandleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.service.Recent()})
}

func (h *APIHandler) HandleDeploy(c *gin.Context) {
	url, err := h.service.Deploy(c.Request.Context())
	if err != nil {
		h.writeJSONError(c, statusForError(err), "Deployment failed", err)
		return
	}
	c.JSON(http.StatusOK, deployResponse{VercelURL: url})
}
