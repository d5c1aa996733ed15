package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a persisted private message. Rows only exist for messages that
// could not be delivered live: either real content awaiting the receiver's
// next session, or, when DeleteMarker is set, a pending delete-for-everyone
// intent for the message at Time.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Body           *string   `json:"message,omitempty"`
	Time           time.Time `json:"time"`
	FileURL        *string   `json:"file_url,omitempty"`
	FileType       *string   `json:"file_type,omitempty"`
	Filename       *string   `json:"filename,omitempty"`
	DeleteMarker   bool      `json:"offline_delete"`
	// Joined fields
	ParticipantLow  string `json:"-"`
	ParticipantHigh string `json:"-"`
}

// ChatEntry is one line of the public broadcast chat log, grouped under a
// per-sender head row.
type ChatEntry struct {
	ID       uuid.UUID `json:"id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Body     string    `json:"message"`
	Time     time.Time `json:"time"`
}

// DeleteRequestBody is the placeholder body of a synthetic delete-marker row
// inserted when no persisted message matched the requested timestamp.
const DeleteRequestBody = "DELETE_REQUEST"
