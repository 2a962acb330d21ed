package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/sleepstars/deepbridge/internal/forwarder"
	"github.com/sleepstars/deepbridge/internal/modelbridge"
	"github.com/sleepstars/deepbridge/internal/models"
)

const contentTypeJSON = "application/json"

var internalError = models.ErrorResponse{Error: "Internal Server Error"}

// writeJSON encodes v with sonic and sends it as application/json
func writeJSON(c *gin.Context, status int, v interface{}) {
	body, err := sonic.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error"}`)
	}
	c.Data(status, contentTypeJSON, body)
}

func (s *Server) listModels(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.models)
}

func (s *Server) chatCompletions(c *gin.Context) {
	ctx := c.Request.Context()
	log := s.logger.WithRequestID(requestID(c))

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.WithError(err).Error("Error reading chat completion body")
		writeJSON(c, http.StatusInternalServerError, internalError)
		return
	}

	resp, err := s.forwarder.Forward(ctx, requestID(c), raw)
	if err != nil {
		var notFound *modelbridge.ModelNotFoundError
		if errors.As(err, &notFound) {
			writeJSON(c, http.StatusBadRequest, models.ErrorResponse{Error: notFound.Error()})
			return
		}
		log.WithError(err).Error("Error processing chat completion")
		writeJSON(c, http.StatusInternalServerError, internalError)
		return
	}

	written, err := s.forwarder.Relay(ctx, c.Writer, resp)
	switch {
	case err == nil:
		log.Debug("Relayed %d bytes with status %d", written, resp.StatusCode)
	case errors.Is(err, context.Canceled), errors.Is(err, forwarder.ErrClientGone):
		log.Info("Client went away after %d bytes, upstream released", written)
	default:
		log.WithError(err).Warn("Upstream stream broke after %d bytes, response truncated", written)
	}
}

func (s *Server) notFound(c *gin.Context) {
	c.String(http.StatusNotFound, "Not Found")
}
