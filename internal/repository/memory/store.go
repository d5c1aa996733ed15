// Package memory holds in-memory repository implementations used in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/domain"
	"github.com/courier-chat/courier/internal/protocol"
)

type ConversationStore struct {
	mu    sync.Mutex
	pairs map[string]*domain.Conversation // "low|high" → conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{pairs: make(map[string]*domain.Conversation)}
}

func (s *ConversationStore) GetOrCreate(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	low, high := protocol.SortPair(userA, userB)
	key := low + "|" + high

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.pairs[key]; ok {
		c := *conv
		return &c, nil
	}
	conv := &domain.Conversation{
		ID:              uuid.New(),
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       time.Now(),
	}
	s.pairs[key] = conv
	c := *conv
	return &c, nil
}

// Len reports how many conversations exist.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pairs)
}

type MessageStore struct {
	mu            sync.Mutex
	messages      []domain.Message
	conversations *ConversationStore

	failCreate error // when set, Create returns this error
}

func NewMessageStore(conversations *ConversationStore) *MessageStore {
	return &MessageStore{conversations: conversations}
}

// FailCreates makes every subsequent Create return err.
func (s *MessageStore) FailCreates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = err
}

func (s *MessageStore) Create(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MessageStore) ListPending(_ context.Context, receiverID string) ([]domain.Message, error) {
	return s.collect(receiverID, false), nil
}

func (s *MessageStore) DeletePending(_ context.Context, ids []uuid.UUID) error {
	s.remove(ids)
	return nil
}

func (s *MessageStore) ListDeleteMarkers(_ context.Context, receiverID string) ([]domain.Message, error) {
	return s.collect(receiverID, true), nil
}

func (s *MessageStore) DeleteDeleteMarkers(_ context.Context, ids []uuid.UUID) error {
	s.remove(ids)
	return nil
}

func (s *MessageStore) MarkDeleted(_ context.Context, conversationID uuid.UUID, receiverID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.ConversationID == conversationID && m.ReceiverID == receiverID &&
			m.Time.Equal(at) && !m.DeleteMarker {
			m.DeleteMarker = true
			return true, nil
		}
	}
	return false, nil
}

// All returns a copy of every stored row.
func (s *MessageStore) All() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *MessageStore) collect(receiverID string, markers bool) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && m.DeleteMarker == markers {
			m.ParticipantLow, m.ParticipantHigh = s.pairOf(m.ConversationID)
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func (s *MessageStore) remove(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.messages[:0]
	for _, m := range s.messages {
		if _, ok := drop[m.ID]; ok {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
}

func (s *MessageStore) pairOf(conversationID uuid.UUID) (low, high string) {
	if s.conversations == nil {
		return "", ""
	}
	s.conversations.mu.Lock()
	defer s.conversations.mu.Unlock()
	for _, conv := range s.conversations.pairs {
		if conv.ID == conversationID {
			return conv.ParticipantLow, conv.ParticipantHigh
		}
	}
	return "", ""
}

type ChatLogStore struct {
	mu      sync.Mutex
	entries []domain.ChatEntry
}

func NewChatLogStore() *ChatLogStore {
	return &ChatLogStore{}
}

func (s *ChatLogStore) Append(_ context.Context, userID, username, body string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.ChatEntry{
		ID:       uuid.New(),
		UserID:   userID,
		Username: username,
		Body:     body,
		Time:     at,
	})
	return nil
}

func (s *ChatLogStore) Entries() []domain.ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
