package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"health-chat/internal/service"
)

// QuickActionHandler sirve los atajos tematicos.
type QuickActionHandler struct {
	logger *zap.Logger
	chat   *service.ConversationService
}

func NewQuickActionHandler(logger *zap.Logger, chat *service.ConversationService) *QuickActionHandler {
	return &QuickActionHandler{
		logger: logger,
		chat:   chat,
	}
}

// ListQuickActions maneja GET /quick-actions.
func (h *QuickActionHandler) ListQuickActions(c *gin.Context) {
	c.JSON(http.StatusOK, service.QuickActions())
}

// QuickAction maneja POST /quick-actions.
func (h *QuickActionHandler) QuickAction(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid quick action request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reply, err := h.chat.QuickAction(c.Request.Context(), req.Action)
	if err != nil {
		respondError(c, h.logger, err, "could not run quick action")
		return
	}
	c.JSON(http.StatusOK, reply)
}
