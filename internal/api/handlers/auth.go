package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/auth"
	"github.com/troikatech/voice-bridge/pkg/errors"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates the operator account configured in the environment.
// The bridge has no user store; a single admin identity guards the API.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	if h.cfg.AdminEmail == "" || h.cfg.AdminPassHash == "" {
		errors.Forbidden(c, "operator login is not configured")
		return
	}

	if req.Email != h.cfg.AdminEmail {
		errors.Unauthorized(c, "invalid credentials")
		return
	}

	if err := auth.VerifyPassword(h.cfg.AdminPassHash, req.Password); err != nil {
		errors.Unauthorized(c, "invalid credentials")
		return
	}

	accessToken, expiresAt, err := auth.GenerateAccessToken(
		"admin",
		h.cfg.AdminEmail,
		"admin",
		h.cfg.JWTSecret,
		h.cfg.JWTIssuer,
		h.cfg.JWTAudience,
		h.cfg.AccessTTLMin,
	)
	if err != nil {
		h.logger.Error("Failed to generate access token", zap.Error(err))
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	})
}
