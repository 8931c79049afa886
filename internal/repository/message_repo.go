package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"health-chat/internal/domain"
)

// MessageRepository define el contrato de persistencia para mensajes.
// Append asigna id, timestamp y el siguiente seq de la conversacion.
type MessageRepository interface {
	Append(ctx context.Context, message domain.InsertMessage) (domain.Message, error)
	ListByConversationID(ctx context.Context, conversationID string) ([]domain.Message, error)
	ClearTyping(ctx context.Context, messageID string) error
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Append(ctx context.Context, message domain.InsertMessage) (domain.Message, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// La fila de la conversacion queda bloqueada hasta el commit y serializa los seq.
	var seq int64
	err = tx.QueryRow(ctx, `
		UPDATE conversations
		SET last_seq = last_seq + 1
		WHERE id = $1
		RETURNING last_seq
	`, message.ConversationID).Scan(&seq)
	if err != nil {
		return domain.Message{}, translateError(err)
	}

	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: message.ConversationID,
		Seq:            seq,
		Role:           message.Role,
		Content:        message.Content,
		Timestamp:      time.Now().UTC(),
		IsTyping:       message.IsTyping,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, content, is_typing, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		msg.ID,
		msg.ConversationID,
		msg.Seq,
		string(msg.Role),
		msg.Content,
		msg.IsTyping,
		msg.Timestamp,
	)
	if err != nil {
		return domain.Message{}, translateError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

func (r *PgMessageRepository) ListByConversationID(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const query = `
		SELECT id, conversation_id, seq, role, content, is_typing, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string

		err = rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Seq,
			&role,
			&msg.Content,
			&msg.IsTyping,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *PgMessageRepository) ClearTyping(ctx context.Context, messageID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET is_typing = FALSE WHERE id = $1`, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
