package http

import (
	"errors"
	"net/http"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	sessionService ports.SessionService
	healthChecker  *monitoring.HealthChecker
}

func NewRoomHandler(
	sessionService ports.SessionService,
	healthChecker *monitoring.HealthChecker,
) *RoomHandler {
	return &RoomHandler{
		sessionService: sessionService,
		healthChecker:  healthChecker,
	}
}

// SetupRoutes registers the control-plane endpoints. authMW guards the
// mutating room endpoints; pass nil to leave them open.
func (h *RoomHandler) SetupRoutes(router *gin.Engine, authMW gin.HandlerFunc) {
	room := router.Group("/room")
	if authMW != nil {
		room.Use(authMW)
	}
	{
		room.POST("/create", h.CreateRoom)
		room.POST("/:room_id/stop", h.StopRoom)
	}

	router.GET("/room/:room_id/stats", h.RoomStats)
	router.GET("/stats", h.ServerStats)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		PostID     string `json:"post_id" binding:"required,max=256"`
		HostUserID string `json:"host_user_id" binding:"required,max=256"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomID, err := h.sessionService.CreateRoom(c.Request.Context(), req.PostID, domain.UserID(req.HostUserID))
	if err != nil {
		if errors.Is(err, domain.ErrRoomLimit) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room_id": roomID,
		"post_id": req.PostID,
	})
}

func (h *RoomHandler) StopRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("room_id"))

	if err := h.sessionService.DeleteRoom(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "stopped",
		"room_id": roomID,
	})
}

func (h *RoomHandler) RoomStats(c *gin.Context) {
	roomID := domain.RoomID(c.Param("room_id"))

	room, err := h.sessionService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":      room.ID,
		"post_id":      room.PostID,
		"is_active":    room.Active,
		"viewer_count": room.ViewerCount,
		"has_host":     room.HasHost,
	})
}

func (h *RoomHandler) ServerStats(c *gin.Context) {
	stats, err := h.sessionService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *RoomHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "media_server",
	})
}

func (h *RoomHandler) Ready(c *gin.Context) {
	status := h.healthChecker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
