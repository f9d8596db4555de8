package respond

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for the emergency audit trail
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new emergency handler
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes sets up emergency routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:userId/emergencies", h.ListEmergencies)
}

// ListEmergencies handles GET /users/:userId/emergencies
func (h *Handler) ListEmergencies(c *gin.Context) {
	userID := c.Param("userId")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	events, err := h.store.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list emergencies", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "emergency_error",
			"message": "Failed to retrieve emergency events",
		})
		return
	}
	if events == nil {
		events = []*Event{}
	}

	c.JSON(http.StatusOK, gin.H{
		"emergencies": events,
		"count":       len(events),
	})
}
