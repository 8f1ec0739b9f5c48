// Package handlers implements the Botte HTTP API.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/botte/botte-service/internal/database"
	"github.com/botte/botte-service/internal/relay"
	"github.com/botte/botte-service/internal/tasks"
	"github.com/botte/botte-service/internal/telegram"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// Error messages returned with a 400.
const (
	ErrBodyRequired = "Body required"
	ErrBodyNotJSON  = "Body must be JSON encoded"
	ErrTextRequired = "Body parameter 'text' required"
)

// MessageSender sends a text to the owner's chat.
type MessageSender interface {
	SendText(ctx context.Context, entrypoint, senderApp, text string) (*telegram.Message, error)
}

// Invoker handles direct invocation payloads.
type Invoker interface {
	Invoke(ctx context.Context, payload map[string]any) (relay.InvokeResponse, error)
}

// StreamHandler delivers a change-stream batch.
type StreamHandler interface {
	HandleStreamEvent(ctx context.Context, event tasks.Event) error
}

// UpdateProcessor handles a bot webhook update.
type UpdateProcessor interface {
	ProcessUpdate(ctx context.Context, update telegram.Update) error
}

// Pinger reports database health. Optional.
type Pinger func(ctx context.Context) error

// Handlers holds the dependencies of the API handlers. The relay usually
// serves as MessageSender, Invoker and StreamHandler.
type Handlers struct {
	Messages MessageSender
	Invoker  Invoker
	Stream   StreamHandler
	Updates  UpdateProcessor
	Database Pinger
	Stats    func() *database.PoolStats
	Logger   *zerolog.Logger
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) logger() *zerolog.Logger {
	if h.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return h.Logger
}

// Register mounts the routes. The protected chain runs before the message,
// invoke, stream, webhook, version and unhealth routes; health, metrics and
// docs stay open for probes and scrapers.
func (h *Handlers) Register(router gin.IRouter, protected ...gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/")
	api.Use(protected...)
	{
		api.GET("/version", h.Version)
		api.GET("/unhealth", h.Unhealth)
		api.POST("/message", h.SendMessage)
		api.POST("/invoke/message", h.InvokeMessage)
		api.POST("/stream/tasks", h.StreamTasks)
		api.POST("/telegram/webhook", h.TelegramWebhook)
	}
}

// NotFound is the fallback for unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
}

// readBody returns the request body, or a 400 message when it is empty or
// too large.
func readBody(c *gin.Context) ([]byte, string) {
	if c.Request.Body == nil {
		return nil, ErrBodyRequired
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "Body too large"
		}
		return nil, ErrBodyRequired
	}
	if len(body) == 0 {
		return nil, ErrBodyRequired
	}
	return body, ""
}
