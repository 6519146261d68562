package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sandboxagent/internal/async"
	"sandboxagent/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSHandler serves the session stream over a WebSocket, one JSON text frame
// per event.
type WSHandler struct {
	service  SessionAPI
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service SessionAPI, logger logging.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	session, err := h.service.ActiveSession()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, apiErrorResponse{Error: "No active session", Details: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The read pump only watches for the peer going away.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	async.Go(h.logger, "ws-read-pump", func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, streamDone := pumpStream(ctx, h.service, session, h.logger, "ws-stream")

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	h.logger.Info("websocket subscriber attached to session %s", session.ID())
	for {
		select {
		case event, open := <-events:
			if !open {
				if err := <-streamDone; err != nil && ctx.Err() == nil {
					h.logger.Warn("websocket stream for session %s ended: %v", session.ID(), err)
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
