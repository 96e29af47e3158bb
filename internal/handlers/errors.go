package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tasvirbox/api/internal/apperr"
)

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindAttemptsExceeded, apperr.KindLocked:
		return http.StatusTooManyRequests
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	body := gin.H{
		"error":   string(appErr.Kind),
		"message": appErr.Message,
	}
	if appErr.RemainingAttempts >= 0 {
		body["remainingAttempts"] = appErr.RemainingAttempts
	}

	c.JSON(statusForKind(appErr.Kind), body)
}
