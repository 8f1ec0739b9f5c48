package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botte/botte-service/internal/tasks"
)

// StreamResponse acknowledges a delivered batch
type StreamResponse struct {
	Records int `json:"records"`
}

// StreamTasks delivers a change-stream batch pushed over HTTP
//
//	@Summary		Deliver a task stream batch
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Security		ApiKeyAuth
//	@Param			request	body		tasks.Event	true	"Stream batch"
//	@Success		200		{object}	StreamResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/stream/tasks [post]
func (h *Handlers) StreamTasks(c *gin.Context) {
	body, problem := readBody(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: problem})
		return
	}

	event, err := tasks.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.Stream.HandleStreamEvent(c.Request.Context(), event); err != nil {
		if tasks.IsValidationError(err) {
			h.logger().Warn().Err(err).Int("records", len(event.Records)).Msg("Rejected invalid stream batch")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger().Error().Err(err).Int("records", len(event.Records)).Msg("Failed to deliver stream batch")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, StreamResponse{Records: len(event.Records)})
}
