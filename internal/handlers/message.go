package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botte/botte-service/internal/relay"
)

// MessageRequest is the body of POST /message
type MessageRequest struct {
	Text      string `json:"text" example:"Build finished"`
	SenderApp string `json:"sender_app,omitempty" example:"BOTTE_CLI"`
}

// SendMessage sends a text to the owner's chat and returns the sent message
//
//	@Summary		Send a message
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Security		ApiKeyAuth
//	@Param			request	body		MessageRequest	true	"Message"
//	@Success		200		{object}	telegram.Message
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/message [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	body, problem := readBody(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: problem})
		return
	}

	var req MessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrBodyNotJSON})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrTextRequired})
		return
	}

	msg, err := h.Messages.SendText(c.Request.Context(), relay.EntrypointHTTP, req.SenderApp, req.Text)
	if err != nil {
		h.logger().Error().Err(err).Str("sender_app", req.SenderApp).Msg("Failed to send message")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	if len(msg.Raw) > 0 {
		c.Data(http.StatusOK, "application/json; charset=utf-8", msg.Raw)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// InvokeMessage runs a direct invocation over HTTP. The HTTP status is 200
// whenever the invocation ran; its own status is in the response.
//
//	@Summary		Invoke the message function
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Security		ApiKeyAuth
//	@Param			request	body		MessageRequest	true	"Invocation payload"
//	@Success		200		{object}	relay.InvokeResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/invoke/message [post]
func (h *Handlers) InvokeMessage(c *gin.Context) {
	body, problem := readBody(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: problem})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrBodyNotJSON})
		return
	}

	resp, err := h.Invoker.Invoke(c.Request.Context(), payload)
	if err != nil {
		h.logger().Error().Err(err).Msg("Invocation failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
