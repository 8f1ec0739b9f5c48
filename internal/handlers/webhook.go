package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botte/botte-service/internal/telegram"
)

// WebhookResponse is returned for every accepted update
type WebhookResponse struct {
	OK bool `json:"ok"`
}

// TelegramWebhook processes a bot update. Processing failures are logged and
// still answered with 200 so the bot API does not redeliver the update.
//
//	@Summary		Bot webhook
//	@Tags			bot
//	@Accept			json
//	@Produce		json
//	@Param			X-Telegram-Bot-Api-Secret-Token	header		string			true	"Webhook secret"
//	@Param			update							body		telegram.Update	true	"Update"
//	@Success		200								{object}	WebhookResponse
//	@Failure		400								{object}	ErrorResponse
//	@Router			/telegram/webhook [post]
func (h *Handlers) TelegramWebhook(c *gin.Context) {
	body, problem := readBody(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: problem})
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrBodyNotJSON})
		return
	}

	if err := h.Updates.ProcessUpdate(c.Request.Context(), update); err != nil {
		h.logger().Error().Err(err).Int("update_id", update.UpdateID).Msg("Failed to process update")
	}
	c.JSON(http.StatusOK, WebhookResponse{OK: true})
}
