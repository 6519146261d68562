package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sandboxagent/internal/server/app"
)

type apiErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusForError maps service sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, app.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeJSONError(c *gin.Context, status int, message string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		h.logger.Error("HTTP %d - %s: %v", status, message, err)
	} else if err != nil {
		h.logger.Warn("HTTP %d - %s: %v", status, message, err)
	} else {
		h.logger.Warn("HTTP %d - %s", status, message)
	}

	resp := apiErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// writeServiceError reports err with the status its sentinel maps to.
func (h *APIHandler) writeServiceError(c *gin.Context, err error) {
	status := statusForError(err)
	message := http.StatusText(status)
	switch status {
	case http.StatusBadRequest:
		message = "Invalid request"
	case http.StatusNotFound:
		message = "No active session"
	case http.StatusInternalServerError:
		message = "Request failed"
	}
	h.writeJSONError(c, status, message, err)
}
