package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"health-chat/internal/domain"
	"health-chat/internal/repository"
)

const (
	defaultUpstreamTimeout = 30 * time.Second
	defaultHistoryLimit    = 20
)

// GenerationObserver recibe la latencia y el resultado de cada llamada al generador.
type GenerationObserver interface {
	ObserveGeneration(kind string, elapsed time.Duration, err error)
}

// ConversationSettings agrupa los parametros operativos del servicio.
type ConversationSettings struct {
	UpstreamTimeout time.Duration
	HistoryLimit    int
}

// ConversationService orquesta conversaciones, mensajes y respuestas del asistente.
type ConversationService struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	responder     ResponseGenerator
	limiter       RequestLimiter
	observer      GenerationObserver
	settings      ConversationSettings
}

func NewConversationService(
	logger *zap.Logger,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	responder ResponseGenerator,
	limiter RequestLimiter,
	observer GenerationObserver,
	settings ConversationSettings,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.UpstreamTimeout <= 0 {
		settings.UpstreamTimeout = defaultUpstreamTimeout
	}
	if settings.HistoryLimit <= 0 {
		settings.HistoryLimit = defaultHistoryLimit
	}
	return &ConversationService{
		logger:        logger,
		conversations: conversations,
		messages:      messages,
		responder:     responder,
		limiter:       limiter,
		observer:      observer,
		settings:      settings,
	}
}

var ErrConversationServiceNotConfigured = errors.New("conversation service not configured")

func (s *ConversationService) configured() bool {
	return s != nil && s.conversations != nil && s.messages != nil
}

// CreateConversation inserta una conversacion con id y fecha asignados por el servidor.
func (s *ConversationService) CreateConversation(ctx context.Context, in domain.InsertConversation) (domain.Conversation, error) {
	if !s.configured() {
		return domain.Conversation{}, ErrConversationServiceNotConfigured
	}
	in, err := normalizeConversation(in)
	if err != nil {
		return domain.Conversation{}, err
	}

	conversation := domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		s.logger.Error("create conversation failed", zap.Error(err))
		return domain.Conversation{}, storageError("create conversation", err)
	}
	return conversation, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	if !s.configured() {
		return domain.Conversation{}, ErrConversationServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", ErrNotFound)
	}
	conversation, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return domain.Conversation{}, storageError("get conversation", err)
	}
	return conversation, nil
}

// ListMessages devuelve el historial ordenado por seq. Falla con ErrNotFound si la
// conversacion no existe, en vez de devolver una lista vacia.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	conversation, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversationID(ctx, conversation.ID)
	if err != nil {
		return nil, storageError("list messages", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// PostMessage persiste el mensaje del usuario, genera la respuesta y la persiste.
// Si el generador falla el mensaje del usuario queda guardado con IsTyping=true.
func (s *ConversationService) PostMessage(ctx context.Context, conversationID, content string) (domain.Message, error) {
	if !s.configured() || s.responder == nil {
		return domain.Message{}, ErrConversationServiceNotConfigured
	}
	in, err := normalizeMessage(domain.InsertMessage{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		IsTyping:       true,
	})
	if err != nil {
		return domain.Message{}, err
	}

	conversation, err := s.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, conversation.ID) {
		return domain.Message{}, ErrRateLimited
	}

	userMsg, err := s.messages.Append(ctx, in)
	if err != nil {
		s.logger.Error("persist user message failed", zap.Error(err), zap.String("conversation_id", conversation.ID))
		return domain.Message{}, storageError("persist user message", err)
	}

	history, err := s.messages.ListByConversationID(ctx, conversation.ID)
	if err != nil {
		return domain.Message{}, storageError("load history", err)
	}
	history = historyUpTo(history, userMsg.Seq, s.settings.HistoryLimit)

	reply, err := s.generate(ctx, "reply", func(genCtx context.Context) (string, error) {
		return s.responder.GenerateReply(genCtx, conversation, history)
	})
	if err != nil {
		s.logger.Warn("response generation failed",
			zap.Error(err),
			zap.String("conversation_id", conversation.ID),
			zap.String("message_id", userMsg.ID),
		)
		return domain.Message{}, err
	}

	assistantIn, err := normalizeMessage(domain.InsertMessage{
		ConversationID: conversation.ID,
		Role:           domain.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: invalid reply: %v", ErrUpstream, err)
	}
	assistantMsg, err := s.messages.Append(ctx, assistantIn)
	if err != nil {
		s.logger.Error("persist assistant message failed", zap.Error(err), zap.String("conversation_id", conversation.ID))
		return domain.Message{}, storageError("persist assistant message", err)
	}

	if err := s.messages.ClearTyping(ctx, userMsg.ID); err != nil {
		s.logger.Warn("clear pending flag failed", zap.Error(err), zap.String("message_id", userMsg.ID))
	}

	return assistantMsg, nil
}

// QuickAction devuelve el texto informativo del atajo. No crea ni modifica conversaciones.
func (s *ConversationService) QuickAction(ctx context.Context, action string) (domain.QuickActionReply, error) {
	if s == nil || s.responder == nil {
		return domain.QuickActionReply{}, ErrConversationServiceNotConfigured
	}
	tag, ok := normalizeQuickActionTag(action)
	if !ok {
		return domain.QuickActionReply{}, validationError(fmt.Sprintf("unknown quick action %q", strings.TrimSpace(action)))
	}

	content, err := s.generate(ctx, "quick_action", func(genCtx context.Context) (string, error) {
		return s.responder.GenerateQuickActionText(genCtx, tag)
	})
	if err != nil {
		s.logger.Warn("quick action generation failed", zap.Error(err), zap.String("action", tag))
		return domain.QuickActionReply{}, err
	}
	return domain.QuickActionReply{Content: content}, nil
}

// generate invoca al generador con timeout y traduce cualquier fallo a ErrUpstream.
func (s *ConversationService) generate(ctx context.Context, kind string, fn func(context.Context) (string, error)) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.settings.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	text, err := fn(genCtx)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if s.observer != nil {
		s.observer.ObserveGeneration(kind, time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: response generator timed out after %s", ErrUpstream, s.settings.UpstreamTimeout)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return strings.TrimSpace(text), nil
}

// historyUpTo recorta el historial al mensaje recien persistido y al limite configurado.
func historyUpTo(history []domain.Message, seq int64, limit int) []domain.Message {
	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Seq <= seq {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
