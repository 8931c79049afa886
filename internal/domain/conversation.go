package domain

import "time"

const (
	// AnonymousUserID se usa para sesiones sin usuario registrado.
	AnonymousUserID = "anonymous"
	// DefaultConversationTitle es el titulo cuando el cliente no envia uno.
	DefaultConversationTitle = "Health Consultation"
)

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsertConversation es el subconjunto de campos aceptado al crear una conversacion.
type InsertConversation struct {
	UserID string
	Title  string
}
