package middleware

import (
	"github.com/gin-gonic/gin"

	"tasvirbox/api/internal/ids"
	"tasvirbox/api/internal/service"
)

const (
	ContextFingerprint = "guest_fingerprint"

	deviceCookieName   = "tbx_device"
	deviceCookieMaxAge = 365 * 24 * 60 * 60
)

// GuestFingerprint issues a device cookie on first contact and derives the
// quota fingerprint from it plus client signals.
func GuestFingerprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceCookie, err := c.Cookie(deviceCookieName)
		if err != nil || deviceCookie == "" {
			deviceCookie = ids.New()
			c.SetCookie(deviceCookieName, deviceCookie, deviceCookieMaxAge, "/", "", false, true)
		}

		fingerprint := service.Fingerprint(service.FingerprintInput{
			DeviceCookie:   deviceCookie,
			UserAgent:      c.GetHeader("User-Agent"),
			AcceptLanguage: c.GetHeader("Accept-Language"),
			IPAddress:      c.ClientIP(),
		})

		c.Set(ContextFingerprint, fingerprint)

		c.Next()
	}
}
