package http

import (
	"net/http"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/auth/token", h.IssueToken)
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required,max=256"`
		Username string `json:"username" binding:"required,max=256"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.GenerateToken(domain.UserID(req.UserID), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
