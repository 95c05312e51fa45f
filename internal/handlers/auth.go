package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/auth"
)

const tokenTTL = 24 * time.Hour

// AuthHandler issues tenant tokens for dashboard clients that present the
// shared provisioning secret.
type AuthHandler struct {
	jwtSecret string
}

func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/token", h.IssueToken)
}

type issueTokenRequest struct {
	TenantID string `json:"tenant_id"`
	Secret   string `json:"secret"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) IssueToken(c echo.Context) error {
	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id is required")
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.jwtSecret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}
	token, expiresAt, err := auth.GenerateToken(strings.TrimSpace(req.TenantID), h.jwtSecret, tokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, issueTokenResponse{Token: token, ExpiresAt: expiresAt})
}
