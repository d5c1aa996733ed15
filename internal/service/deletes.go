package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/domain"
	"github.com/courier-chat/courier/internal/protocol"
)

// DeleteForEveryone distributes a delete intent to both participants of the
// chatKey's conversation. Reachable participants (the initiator included) get
// the event relayed verbatim; for unreachable ones the intent is made
// durable, either by flagging the matching persisted message or by inserting
// a synthetic marker row per timestamp.
func (r *Router) DeleteForEveryone(ctx context.Context, peer Peer, f protocol.DeleteForEveryone) error {
	idA, idB, ok := protocol.ParseChatKey(f.ChatKey)
	if !ok {
		return fmt.Errorf("bad chatKey %q", f.ChatKey)
	}

	relay := protocol.DeleteForEveryone{
		Type:       protocol.TypeDeleteForEveryone,
		ChatKey:    f.ChatKey,
		Timestamps: f.Timestamps,
	}

	for _, userID := range []string{idA, idB} {
		if target, online := r.registry.Lookup(userID); online {
			target.Send(relay)
			continue
		}
		if err := r.deferDelete(ctx, peer, idA, idB, userID, f.Timestamps); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) deferDelete(ctx context.Context, peer Peer, idA, idB, receiverID string, timestamps []string) error {
	conv, err := r.conversations.GetOrCreate(ctx, idA, idB)
	if err != nil {
		return fmt.Errorf("resolving conversation for deferred delete: %w", err)
	}

	senderID := idA
	if sender, ok := r.registry.IdentityOf(peer); ok {
		senderID = sender.UserID
	}

	for _, ts := range timestamps {
		at, err := protocol.ParseClock(ts, r.now())
		if err != nil {
			log.Printf("router: skipping unparseable delete timestamp %q: %v", ts, err)
			continue
		}

		matched, err := r.messages.MarkDeleted(ctx, conv.ID, receiverID, at)
		if err != nil {
			return fmt.Errorf("flagging message for delete: %w", err)
		}
		if matched {
			continue
		}

		body := domain.DeleteRequestBody
		marker := &domain.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Body:           &body,
			Time:           at,
			DeleteMarker:   true,
		}
		if err := r.messages.Create(ctx, marker); err != nil {
			return fmt.Errorf("storing delete marker: %w", err)
		}
	}
	return nil
}
