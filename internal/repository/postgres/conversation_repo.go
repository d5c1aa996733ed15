package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courier-chat/courier/internal/domain"
	"github.com/courier-chat/courier/internal/protocol"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// GetOrCreate inserts the sorted pair behind the table's unique constraint,
// so two users first-messaging each other at the same instant race down to a
// single row; the loser of the insert reads the winner's row back.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	low, high := protocol.SortPair(userA, userB)

	insert := `
		INSERT INTO private_conversations (id, participant_low, participant_high, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_low, participant_high) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, uuid.New(), low, high, time.Now()); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	query := `
		SELECT id, participant_low, participant_high, created_at
		FROM private_conversations
		WHERE participant_low = $1 AND participant_high = $2`
	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, low, high).Scan(
		&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh, &conv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s/%s vanished after insert", low, high)
	}
	return &conv, err
}
