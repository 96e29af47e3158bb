package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tasvirbox/api/internal/middleware"
	"tasvirbox/api/internal/models"
	"tasvirbox/api/internal/service"
)

type registerRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	Mobile      string `json:"mobile" binding:"required"`
	Password    string `json:"password" binding:"required,min=6"`
}

type registerResponse struct {
	AccountID string `json:"accountId"`
	Mobile    string `json:"mobile"`
	Status    string `json:"status"`
}

func (h HandlerSet) RegisterAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.accounts.Register(c.Request.Context(), service.RegisterInput{
		DisplayName: req.DisplayName,
		Mobile:      req.Mobile,
		Password:    req.Password,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		AccountID: result.AccountID,
		Mobile:    result.Mobile,
		Status:    string(models.AccountStatusPending),
	})
}

type verifyRequest struct {
	Mobile string `json:"mobile" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

type authResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   accountResponse `json:"account"`
}

type accountResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mobile      string `json:"mobile"`
	Status      string `json:"status"`
}

func (h HandlerSet) VerifyCode(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.accounts.VerifyOTP(c.Request.Context(), service.VerifyInput{
		Mobile:    req.Mobile,
		Code:      req.Code,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResultResponse(result))
}

type resendRequest struct {
	Mobile string `json:"mobile" binding:"required"`
}

func (h HandlerSet) ResendCode(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.accounts.ResendCode(c.Request.Context(), req.Mobile); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

type loginRequest struct {
	Mobile   string `json:"mobile" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), service.LoginInput{
		Mobile:    req.Mobile,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResultResponse(result))
}

func (h HandlerSet) Logout(c *gin.Context) {
	token := c.GetString(middleware.ContextSessionToken)

	if err := h.accounts.Logout(c.Request.Context(), token); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h HandlerSet) Me(c *gin.Context) {
	account, ok := c.MustGet(middleware.ContextAccount).(models.Account)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, accountResponse{
		ID:          account.ID,
		DisplayName: account.DisplayName,
		Mobile:      account.Mobile,
		Status:      string(account.Status),
	})
}

func authResultResponse(result service.AuthResult) authResponse {
	return authResponse{
		Token:     result.SessionToken,
		ExpiresAt: result.ExpiresAt,
		Account: accountResponse{
			ID:          result.AccountID,
			DisplayName: result.DisplayName,
			Mobile:      result.Mobile,
			Status:      string(models.AccountStatusActive),
		},
	}
}
