package domain

import "time"

// Role identifica quien aporta un turno en la conversacion.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid indica si el rol es uno de los valores admitidos.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message es un turno persistido. Seq lo asigna el servidor al persistir y define
// el orden causal dentro de la conversacion.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Seq            int64     `json:"seq"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	// IsTyping marca un mensaje de usuario cuya respuesta todavia no se persistio.
	IsTyping bool `json:"isTyping"`
}

// InsertMessage es el subconjunto de campos aceptado al crear un mensaje.
type InsertMessage struct {
	ConversationID string
	Role           Role
	Content        string
	IsTyping       bool
}
