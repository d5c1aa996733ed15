package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatLogRepo struct {
	pool *pgxpool.Pool
}

func NewChatLogRepo(pool *pgxpool.Pool) *ChatLogRepo {
	return &ChatLogRepo{pool: pool}
}

// Append upserts the sender's head row (refreshing the stored username) and
// adds one entry under it, in one transaction.
func (r *ChatLogRepo) Append(ctx context.Context, userID, username, body string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chat log tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var headID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages (id, user_id, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING id`,
		uuid.New(), userID, username,
	).Scan(&headID)
	if err != nil {
		return fmt.Errorf("upserting chat log head: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_message_entries (id, chat_message_id, message, time)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), headID, body, at,
	)
	if err != nil {
		return fmt.Errorf("inserting chat log entry: %w", err)
	}

	return tx.Commit(ctx)
}
