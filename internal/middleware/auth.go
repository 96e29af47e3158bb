package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tasvirbox/api/internal/service"
)

const (
	ContextAccount      = "current_account"
	ContextSession      = "current_session"
	ContextSessionToken = "session_token"
)

func Auth(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		account, session, err := sessions.Validate(c.Request.Context(), token, service.DeviceInfo{
			UserAgent: c.GetHeader("User-Agent"),
			IPAddress: c.ClientIP(),
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(ContextSessionToken, token)
		c.Set(ContextSession, session)
		c.Set(ContextAccount, account)

		c.Next()
	}
}
