package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"health-chat/internal/domain"
)

// MemoryStore implementa los tres repositorios en memoria. Se usa en tests y
// cuando el servicio arranca sin DATABASE_URL.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]domain.User
	conversations map[string]*memoryConversation
	messageIndex  map[string]messageRef
	now           func() time.Time
}

type memoryConversation struct {
	conversation domain.Conversation
	lastSeq      int64
	messages     []domain.Message
}

type messageRef struct {
	conversationID string
	pos            int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		conversations: make(map[string]*memoryConversation),
		messageIndex:  make(map[string]messageRef),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Conversations expone el store como ConversationRepository.
func (s *MemoryStore) Conversations() ConversationRepository { return memoryConversations{s} }

// Messages expone el store como MessageRepository.
func (s *MemoryStore) Messages() MessageRepository { return memoryMessages{s} }

// Users expone el store como UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Ping cumple el chequeo de salud del servidor.
func (s *MemoryStore) Ping(context.Context) error { return nil }

type memoryConversations struct{ s *MemoryStore }

func (m memoryConversations) Create(_ context.Context, conversation domain.Conversation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.conversations[conversation.ID]; ok {
		return ErrDuplicate
	}
	m.s.conversations[conversation.ID] = &memoryConversation{conversation: conversation}
	return nil
}

func (m memoryConversations) GetByID(_ context.Context, id string) (domain.Conversation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.conversations[id]
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	return c.conversation, nil
}

type memoryMessages struct{ s *MemoryStore }

func (m memoryMessages) Append(_ context.Context, message domain.InsertMessage) (domain.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.conversations[message.ConversationID]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	c.lastSeq++
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: message.ConversationID,
		Seq:            c.lastSeq,
		Role:           message.Role,
		Content:        message.Content,
		Timestamp:      m.s.now(),
		IsTyping:       message.IsTyping,
	}
	c.messages = append(c.messages, msg)
	m.s.messageIndex[msg.ID] = messageRef{conversationID: msg.ConversationID, pos: len(c.messages) - 1}
	return msg, nil
}

func (m memoryMessages) ListByConversationID(_ context.Context, conversationID string) ([]domain.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []domain.Message{}
	c, ok := m.s.conversations[conversationID]
	if !ok {
		return out, nil
	}
	// Los mensajes se agregan bajo el lock en orden de seq.
	out = append(out, c.messages...)
	return out, nil
}

func (m memoryMessages) ClearTyping(_ context.Context, messageID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ref, ok := m.s.messageIndex[messageID]
	if !ok {
		return ErrNotFound
	}
	m.s.conversations[ref.conversationID].messages[ref.pos].IsTyping = false
	return nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Username == user.Username {
			return ErrDuplicate
		}
	}
	m.s.users[user.ID] = user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}
