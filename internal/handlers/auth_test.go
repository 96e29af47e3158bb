package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindRegisterRequest(t *testing.T, body string) (registerRequest, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req registerRequest
	err := c.ShouldBindJSON(&req)
	return req, err
}

func TestRegisterBindingAcceptsSixCharPassword(t *testing.T) {
	req, err := bindRegisterRequest(t,
		`{"displayName":"Sara","mobile":"09123456789","password":"secret1"}`)
	require.NoError(t, err)
	assert.Equal(t, "secret1", req.Password)
}

func TestRegisterBindingRejectsShortPassword(t *testing.T) {
	_, err := bindRegisterRequest(t,
		`{"displayName":"Sara","mobile":"09123456789","password":"abc12"}`)
	assert.Error(t, err)
}
