package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"health-chat/internal/domain"
	"health-chat/internal/service"
)

// ConversationHandler mantiene dependencias para endpoints de conversaciones y mensajes.
type ConversationHandler struct {
	logger *zap.Logger
	chat   *service.ConversationService
}

// NewConversationHandler crea una instancia de ConversationHandler con dependencias necesarias.
func NewConversationHandler(logger *zap.Logger, chat *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		logger: logger,
		chat:   chat,
	}
}

// CreateConversation maneja POST /conversations.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
		Title  string `json:"title"`
	}
	// Un cuerpo vacio es valido: se aplican los defaults.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid create conversation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	conversation, err := h.chat.CreateConversation(c.Request.Context(), domain.InsertConversation{
		UserID: req.UserID,
		Title:  req.Title,
	})
	if err != nil {
		respondError(c, h.logger, err, "could not create conversation")
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

// GetConversation maneja GET /conversations/:id.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conversation, err := h.chat.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "could not fetch conversation")
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// ListMessages maneja GET /conversations/:id/messages.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	messages, err := h.chat.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "could not fetch messages")
		return
	}
	c.JSON(http.StatusOK, messages)
}

// PostMessage maneja POST /conversations/:id/messages y devuelve la respuesta del asistente.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reply, err := h.chat.PostMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, h.logger, err, "could not post message")
		return
	}

	c.JSON(http.StatusCreated, reply)
}
