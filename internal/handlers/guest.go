package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"tasvirbox/api/internal/middleware"
	"tasvirbox/api/internal/service"
)

type guestLimitResponse struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Tier      string `json:"tier"`
	Reason    string `json:"reason,omitempty"`
}

func (h HandlerSet) GuestLimit(c *gin.Context) {
	fingerprint := c.GetString(middleware.ContextFingerprint)

	ext := c.Query("ext")
	if ext == "" && len(h.cfg.Guest.AllowedExtensions) > 0 {
		ext = h.cfg.Guest.AllowedExtensions[0]
	}

	var size int64
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size parameter"})
			return
		}
		size = parsed
	}

	decision, err := h.guests.CheckLimit(c.Request.Context(), fingerprint, size, ext)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, guestLimitResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		Tier:      string(decision.Tier),
		Reason:    string(decision.Reason),
	})
}

type guestUploadResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
	Remaining int    `json:"remaining"`
	Tier      string `json:"tier"`
}

func (h HandlerSet) GuestUpload(c *gin.Context) {
	fingerprint := c.GetString(middleware.ContextFingerprint)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	record, err := h.guests.RecordUpload(c.Request.Context(), service.RecordUploadInput{
		Fingerprint: fingerprint,
		IPAddress:   c.ClientIP(),
		FileName:    fileHeader.Filename,
		Extension:   filepath.Ext(fileHeader.Filename),
		SizeBytes:   fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		var quotaErr *service.QuotaError
		if errors.As(err, &quotaErr) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     string(quotaErr.Reason),
				"remaining": quotaErr.Remaining,
				"tier":      string(service.UpgradeMessageTier(quotaErr.Remaining)),
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, guestUploadResponse{
		ID:        record.Upload.ID,
		URL:       record.URL,
		FileName:  record.Upload.FileName,
		SizeBytes: record.Upload.SizeBytes,
		Remaining: record.Remaining,
		Tier:      string(record.Tier),
	})
}
