package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courier-chat/courier/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO private_messages (id, conversation_id, sender_id, receiver_id, message, time, file_url, file_type, filename, offline_delete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body,
		msg.Time, msg.FileURL, msg.FileType, msg.Filename, msg.DeleteMarker,
	)
	return err
}

func (r *MessageRepo) ListPending(ctx context.Context, receiverID string) ([]domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.receiver_id, m.message,
			m.time, m.file_url, m.file_type, m.filename, m.offline_delete,
			c.participant_low, c.participant_high
		FROM private_messages m
		JOIN private_conversations c ON m.conversation_id = c.id
		WHERE m.receiver_id = $1 AND m.offline_delete = FALSE
		ORDER BY m.time ASC`
	return r.list(ctx, query, receiverID)
}

func (r *MessageRepo) DeletePending(ctx context.Context, ids []uuid.UUID) error {
	return r.deleteByID(ctx, ids)
}

func (r *MessageRepo) ListDeleteMarkers(ctx context.Context, receiverID string) ([]domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.receiver_id, m.message,
			m.time, m.file_url, m.file_type, m.filename, m.offline_delete,
			c.participant_low, c.participant_high
		FROM private_messages m
		JOIN private_conversations c ON m.conversation_id = c.id
		WHERE m.receiver_id = $1 AND m.offline_delete = TRUE
		ORDER BY m.time ASC`
	return r.list(ctx, query, receiverID)
}

func (r *MessageRepo) DeleteDeleteMarkers(ctx context.Context, ids []uuid.UUID) error {
	return r.deleteByID(ctx, ids)
}

func (r *MessageRepo) deleteByID(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM private_messages WHERE id = ANY($1)`, ids)
	return err
}

func (r *MessageRepo) MarkDeleted(ctx context.Context, conversationID uuid.UUID, receiverID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE private_messages
		SET offline_delete = TRUE
		WHERE conversation_id = $1 AND receiver_id = $2 AND time = $3 AND offline_delete = FALSE`,
		conversationID, receiverID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID, &msg.Body,
			&msg.Time, &msg.FileURL, &msg.FileType, &msg.Filename, &msg.DeleteMarker,
			&msg.ParticipantLow, &msg.ParticipantHigh,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
