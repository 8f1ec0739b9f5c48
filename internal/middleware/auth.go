package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/botte/botte-service/config"
)

// Headers that may carry the API token. Telegram sends the webhook secret in
// the second one.
const (
	HeaderAuthorization       = "Authorization"
	HeaderTelegramSecretToken = "X-Telegram-Bot-Api-Secret-Token"
)

// Authorizer accepts requests carrying the API token in one of the token
// headers and rejects the rest with 403. When disabled every request passes.
func Authorizer(enabled bool, token *config.SecretSource) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		expected, err := token.Get()
		if err != nil {
			log.Error().Err(err).Msg("API authorizer token not available")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "server misconfigured: authorizer token not set",
			})
			return
		}

		for _, header := range []string{HeaderAuthorization, HeaderTelegramSecretToken} {
			value := c.GetHeader(header)
			if value != "" && subtle.ConstantTimeCompare([]byte(value), []byte(expected)) == 1 {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"message": "Forbidden",
		})
	}
}
