package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botte/botte-service/internal/database"
	"github.com/botte/botte-service/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	Database  string              `json:"database,omitempty"`
	Pool      *database.PoolStats `json:"pool,omitempty"`
}

// Health handles the health check endpoint
//
//	@Summary		Health check
//	@Tags			introspection
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handlers) Health(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	h.logger().Debug().Msg("Health check")

	if h.Database != nil {
		if err := h.Database(c.Request.Context()); err != nil {
			h.logger().Error().Err(err).Msg("Database health check failed")
			response.Status = "degraded"
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
		if h.Stats != nil {
			response.Pool = h.Stats()
		}
	}

	h.logger().Info().Str("timestamp", response.Timestamp).Msg("Healthy")
	c.JSON(http.StatusOK, response)
}

// Version returns the build info
//
//	@Summary		Version info
//	@Tags			introspection
//	@Produce		json
//	@Security		ApiKeyAuth
//	@Success		200	{object}	version.Info
//	@Router			/version [get]
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

// Unhealth logs at every level and fails. It exercises alerting end to end.
//
//	@Summary		Failing endpoint
//	@Tags			introspection
//	@Produce		json
//	@Security		ApiKeyAuth
//	@Failure		500	{object}	ErrorResponse
//	@Router			/unhealth [get]
func (h *Handlers) Unhealth(c *gin.Context) {
	logger := h.logger()
	logger.Trace().Msg("Unhealth trace")
	logger.Debug().Msg("Unhealth debug")
	logger.Info().Msg("Unhealth info")
	logger.Warn().Msg("Unhealth warn")
	logger.Error().Msg("Unhealth error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Unhealthy"})
}
