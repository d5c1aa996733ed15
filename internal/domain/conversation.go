package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the unordered pair of participants of a private chat.
// Participants are stored sorted (low < high lexicographically) so the pair
// has exactly one canonical row.
type Conversation struct {
	ID              uuid.UUID `json:"id"`
	ParticipantLow  string    `json:"participant_low"`
	ParticipantHigh string    `json:"participant_high"`
	CreatedAt       time.Time `json:"created_at"`
}
