package chatclient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"health-chat/internal/domain"
)

var (
	ErrClosed       = errors.New("chat session closed")
	ErrNotReady     = errors.New("chat session not ready")
	ErrBusy         = errors.New("request already in flight")
	ErrEmptyMessage = errors.New("message content is empty")
)

// State es el estado del ciclo de vida de una Session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Backend es la parte de la API que consume una Session. APIClient la implementa.
type Backend interface {
	CreateConversation(ctx context.Context, userID, title string) (domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	PostMessage(ctx context.Context, conversationID, content string) (domain.Message, error)
	QuickAction(ctx context.Context, action string) (string, error)
}

// SessionOptions configura una Session nueva.
type SessionOptions struct {
	UserID string
	Title  string
	// ConversationID retoma una conversacion existente en lugar de crear una.
	ConversationID string
}

type entry struct {
	msg   domain.Message
	local bool
	// anchor es el seq del servidor tras el cual se muestra una entrada local.
	anchor int64
	order  int
}

// Session mantiene el estado del cliente de chat: conversacion, borrador, indicador
// de escritura y el log de mensajes mostrado.
type Session struct {
	api    Backend
	logger *zap.Logger
	opts   SessionOptions

	mu             sync.Mutex
	state          State
	conversationID string
	entries        []entry
	maxSeq         int64
	localCount     int
	draft          string
	initializing   bool
	sending        bool
	quickPending   bool
	notice         string
	now            func() time.Time
}

func NewSession(api Backend, logger *zap.Logger, opts SessionOptions) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		api:            api,
		logger:         logger,
		opts:           opts,
		state:          StateIdle,
		conversationID: opts.ConversationID,
		now:            time.Now,
	}
}

// Init crea la conversacion si aun no hay una y carga su historial.
// Si falla la sesion queda en Initializing; llamar Init de nuevo reintenta.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateReady:
		s.mu.Unlock()
		return nil
	}
	if s.initializing {
		s.mu.Unlock()
		return ErrBusy
	}
	s.initializing = true
	s.state = StateInitializing
	s.notice = ""
	convID := s.conversationID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.initializing = false
		s.mu.Unlock()
	}()

	if convID == "" {
		conv, err := s.api.CreateConversation(ctx, s.opts.UserID, s.opts.Title)
		if err != nil {
			s.fail("could not start a conversation", err)
			return err
		}
		convID = conv.ID
		s.mu.Lock()
		s.conversationID = convID
		s.mu.Unlock()
	}

	history, err := s.api.ListMessages(ctx, convID)
	if err != nil {
		s.fail("could not load conversation history", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	s.applyServer(history)
	s.state = StateReady
	s.logger.Debug("chat session ready", zap.String("conversation_id", convID), zap.Int("messages", len(history)))
	return nil
}

// Send envia un mensaje del usuario. En caso de error el borrador se conserva.
func (s *Session) Send(ctx context.Context, text string) (domain.Message, error) {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return domain.Message{}, err
	}
	content := strings.TrimSpace(text)
	if content == "" {
		s.mu.Unlock()
		return domain.Message{}, ErrEmptyMessage
	}
	if s.sending {
		s.mu.Unlock()
		return domain.Message{}, ErrBusy
	}
	s.draft = text
	s.sending = true
	convID := s.conversationID
	s.mu.Unlock()

	reply, err := s.api.PostMessage(ctx, convID, content)
	if err != nil {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
		s.fail("failed to send message, please try again", err)
		return domain.Message{}, err
	}

	history, listErr := s.api.ListMessages(ctx, convID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
	if s.state == StateClosed {
		return reply, ErrClosed
	}
	s.draft = ""
	if listErr != nil {
		// Sin historial fresco se aplica al menos la respuesta recibida.
		s.logger.Warn("refresh after send failed", zap.Error(listErr))
		s.notice = "message sent but history could not be refreshed"
		s.applyServer(append(s.serverMessagesLocked(), reply))
		return reply, nil
	}
	s.applyServer(history)
	return reply, nil
}

// QuickAction pide el texto de un atajo y lo agrega como mensaje local del asistente.
func (s *Session) QuickAction(ctx context.Context, tag string) (domain.Message, error) {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return domain.Message{}, err
	}
	if s.quickPending {
		s.mu.Unlock()
		return domain.Message{}, ErrBusy
	}
	s.quickPending = true
	convID := s.conversationID
	s.mu.Unlock()

	content, err := s.api.QuickAction(ctx, tag)

	s.mu.Lock()
	s.quickPending = false
	if err != nil {
		s.mu.Unlock()
		s.fail("quick action failed, please try again", err)
		return domain.Message{}, err
	}
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return domain.Message{}, ErrClosed
	}
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           domain.RoleAssistant,
		Content:        content,
		Timestamp:      s.now().UTC(),
	}
	s.applyLocal(msg)
	return msg, nil
}

// Refresh vuelve a cargar el historial del servidor.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	convID := s.conversationID
	s.mu.Unlock()

	history, err := s.api.ListMessages(ctx, convID)
	if err != nil {
		s.fail("could not load conversation history", err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	s.applyServer(history)
	return nil
}

// applyServer reemplaza las entradas del servidor por history. Las entradas
// locales se conservan en su posicion relativa.
func (s *Session) applyServer(history []domain.Message) {
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.local {
			kept = append(kept, e)
		}
	}
	for _, m := range history {
		kept = append(kept, entry{msg: m, anchor: m.Seq})
		if m.Seq > s.maxSeq {
			s.maxSeq = m.Seq
		}
	}
	s.apply(kept)
}

func (s *Session) applyLocal(msg domain.Message) {
	s.localCount++
	entries := append(s.entries, entry{msg: msg, local: true, anchor: s.maxSeq, order: s.localCount})
	s.apply(entries)
}

func (s *Session) apply(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.anchor != b.anchor {
			return a.anchor < b.anchor
		}
		if a.local != b.local {
			return !a.local
		}
		return a.order < b.order
	})
	s.entries = entries
}

func (s *Session) serverMessagesLocked() []domain.Message {
	var out []domain.Message
	for _, e := range s.entries {
		if !e.local {
			out = append(out, e.msg)
		}
	}
	return out
}

func (s *Session) readyLocked() error {
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateReady:
		return nil
	default:
		return ErrNotReady
	}
}

func (s *Session) fail(notice string, err error) {
	s.logger.Warn(notice, zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.notice = notice
	}
}

// Messages devuelve una copia del log ordenado.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.msg
	}
	return out
}

// Unanswered devuelve los mensajes del usuario que quedaron sin respuesta.
func (s *Session) Unanswered() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, e := range s.entries {
		if !e.local && e.msg.Role == domain.RoleUser && e.msg.IsTyping {
			out = append(out, e.msg)
		}
	}
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Typing es true mientras haya un envio o un atajo en curso.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending || s.quickPending
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

func (s *Session) DismissNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = ""
}

// Close termina la sesion. Las llamadas posteriores devuelven ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.entries = nil
	s.draft = ""
	s.notice = ""
}
