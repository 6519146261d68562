package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/async"
	"sandboxagent/internal/logging"
	"sandboxagent/internal/server/app"
)

const defaultHeartbeatInterval = 15 * time.Second

// SSEHandler streams session events as Server-Sent Events.
type SSEHandler struct {
	service   SessionAPI
	logger    logging.Logger
	heartbeat time.Duration
}

type SSEOption func(*SSEHandler)

// WithHeartbeatInterval sets how often an idle stream gets a comment line.
func WithHeartbeatInterval(d time.Duration) SSEOption {
	return func(h *SSEHandler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func NewSSEHandler(service SessionAPI, logger logging.Logger, opts ...SSEOption) *SSEHandler {
	h := &SSEHandler{
		service:   service,
		logger:    logging.OrNop(logger),
		heartbeat: defaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSSEStream replays the active session and tails it until the run ends
// or the client goes away.
func (h *SSEHandler) HandleSSEStream(c *gin.Context) {
	session, err := h.service.ActiveSession()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, apiErrorResponse{Error: "No active session", Details: err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiErrorResponse{Error: "Streaming not supported"})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, streamDone := pumpStream(ctx, h.service, session, h.logger, "sse-stream")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Info("SSE subscriber attached to session %s", session.ID())
	for {
		select {
		case event, open := <-events:
			if !open {
				if err := <-streamDone; err != nil && ctx.Err() == nil {
					h.logger.Warn("SSE stream for session %s ended: %v", session.ID(), err)
				}
				return
			}
			if err := writeSSEEvent(c.Writer, flusher, event); err != nil {
				h.logger.Debug("SSE write failed: %v", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			h.logger.Debug("SSE client for session %s disconnected", session.ID())
			return
		}
	}
}

var errStreamAborted = errors.New("stream aborted")

// pumpStream runs Stream in the background and hands events to the caller.
// The error channel always receives exactly one value before events closes,
// including when Stream panics.
func pumpStream(ctx context.Context, service SessionAPI, session *app.Session, logger logging.Logger, name string) (<-chan domain.Event, <-chan error) {
	events := make(chan domain.Event)
	done := make(chan error, 1)
	async.Go(logger, name, func() {
		err := errStreamAborted
		defer func() {
			done <- err
			close(events)
		}()
		err = service.Stream(ctx, session, func(event domain.Event) error {
			select {
			case events <- event:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	return events, done
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
