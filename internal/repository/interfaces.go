package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/domain"
)

type ConversationRepository interface {
	// GetOrCreate resolves the conversation for an unordered participant
	// pair, creating it if absent. Safe under concurrent resolution of the
	// same pair: at most one row per pair ever exists.
	GetOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListPending returns undelivered real messages (not delete markers)
	// addressed to receiverID, oldest first, with the conversation's
	// participant pair joined in.
	ListPending(ctx context.Context, receiverID string) ([]domain.Message, error)
	// DeletePending removes exactly the listed delivered rows. Rows
	// persisted after the sweep's listing must survive for the next one.
	DeletePending(ctx context.Context, ids []uuid.UUID) error
	// ListDeleteMarkers returns pending delete-marker rows for receiverID
	// with the participant pair joined in.
	ListDeleteMarkers(ctx context.Context, receiverID string) ([]domain.Message, error)
	// DeleteDeleteMarkers removes exactly the listed delivered marker rows.
	DeleteDeleteMarkers(ctx context.Context, ids []uuid.UUID) error
	// MarkDeleted flips the delete-marker flag on the persisted message with
	// the exact conversation, receiver and timestamp. Reports whether a row
	// matched.
	MarkDeleted(ctx context.Context, conversationID uuid.UUID, receiverID string, at time.Time) (bool, error)
}

type ChatLogRepository interface {
	// Append records one public broadcast chat line under the sender's head
	// row, updating the stored username if it changed.
	Append(ctx context.Context, userID, username, body string, at time.Time) error
}
