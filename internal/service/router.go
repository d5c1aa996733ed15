package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/domain"
	"github.com/courier-chat/courier/internal/protocol"
	"github.com/courier-chat/courier/internal/repository"
)

// SystemUsername signs server-generated chat messages.
const SystemUsername = "System"

// Router drives the per-connection event flow: identification, private
// message routing (live delivery vs store-and-forward), typing relay, plain
// broadcast chat and delete-for-everyone propagation. Store failures abandon
// the single operation and leave the connection open.
type Router struct {
	registry      *Registry
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	chatLog       repository.ChatLogRepository
	reconciler    *Reconciler

	now func() time.Time
}

func NewRouter(
	registry *Registry,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	chatLog repository.ChatLogRepository,
	reconciler *Reconciler,
) *Router {
	return &Router{
		registry:      registry,
		conversations: conversations,
		messages:      messages,
		chatLog:       chatLog,
		reconciler:    reconciler,
		now:           time.Now,
	}
}

// Identify admits the connection under the claimed identity, greets it, and
// drains its offline mailbox. Reconciliation is best-effort and never fails
// the admission.
func (r *Router) Identify(ctx context.Context, peer Peer, f protocol.Identify) {
	identity := domain.Identity{UserID: f.UserID, Username: f.Username}
	res := r.registry.Admit(peer, identity)

	now := r.now()
	switch {
	case res.First:
		peer.Send(r.systemChat(now, fmt.Sprintf("Welcome to the chat, %s!", identity.Username)))
		r.registry.Broadcast(r.systemChat(now, fmt.Sprintf("%s has joined the chat.", identity.Username)), peer)
	case res.UsernameChanged:
		peer.Send(r.systemChat(now, fmt.Sprintf("Your profile has been updated, %s!", identity.Username)))
		r.registry.Broadcast(r.systemChat(now, fmt.Sprintf("%s has updated their profile to %s!", res.PrevUsername, identity.Username)), peer)
	}

	r.reconciler.Drain(ctx, peer, identity.UserID)
}

// Disconnect evicts the connection and, if it had identified, announces the
// departure.
func (r *Router) Disconnect(peer Peer) {
	identity, identified := r.registry.Evict(peer)
	if !identified {
		return
	}
	r.registry.Broadcast(r.systemChat(r.now(), fmt.Sprintf("%s has left the chat.", identity.Username)), nil)
}

// Private routes one private message: resolve the conversation, deliver live
// if the recipient is reachable, persist otherwise, and always echo the
// finalized payload back to the sender.
func (r *Router) Private(ctx context.Context, peer Peer, f protocol.PrivateMessageSend) error {
	sender, ok := r.registry.IdentityOf(peer)
	if !ok {
		// Unidentified connections cannot send private messages.
		return nil
	}

	conv, err := r.conversations.GetOrCreate(ctx, sender.UserID, f.ToUserID)
	if err != nil {
		return fmt.Errorf("resolving conversation: %w", err)
	}

	// Whole seconds, so the stored time survives the clock-string round
	// trip used by delete-marker matching.
	now := r.now().Truncate(time.Second)

	payload := protocol.PrivateMessage{
		Type:         protocol.TypePrivateMessage,
		FromUserID:   sender.UserID,
		ToUserID:     f.ToUserID,
		FromUsername: sender.Username,
		Message:      f.Message,
		Time:         protocol.FormatClock(now),
		ChatKey:      protocol.ChatKey(sender.UserID, f.ToUserID),
		FileURL:      f.FileURL,
		FileType:     f.FileType,
		Filename:     f.Filename,
	}

	if target, online := r.registry.Lookup(f.ToUserID); online {
		target.Send(payload)
	} else {
		msg := &domain.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       sender.UserID,
			ReceiverID:     f.ToUserID,
			Body:           f.Message,
			Time:           now,
			FileURL:        f.FileURL,
			FileType:       f.FileType,
			Filename:       f.Filename,
		}
		if err := r.messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("persisting offline message: %w", err)
		}
	}

	peer.Send(payload)
	return nil
}

// Typing relays a typing or stop-typing event to a single recipient, or to
// everyone else when no recipient is named. Never persisted.
func (r *Router) Typing(peer Peer, f protocol.Typing) {
	if f.ToUserID != "" {
		if target, ok := r.registry.Lookup(f.ToUserID); ok {
			target.Send(protocol.Typing{
				Type:       f.Type,
				FromUserID: f.FromUserID,
				Username:   f.Username,
			})
		}
		return
	}
	r.registry.Broadcast(protocol.Typing{Type: f.Type, Username: f.Username}, peer)
}

// PlainChat handles a legacy plain-text frame: append it to the sender's
// durable chat log and broadcast it to every connection, sender included. A
// failed append is logged and does not block the broadcast.
func (r *Router) PlainChat(ctx context.Context, peer Peer, text string) {
	sender, ok := r.registry.IdentityOf(peer)
	if !ok {
		sender = domain.Identity{UserID: "Unknown", Username: "Unknown"}
	}

	now := r.now()
	if err := r.chatLog.Append(ctx, sender.UserID, sender.Username, text, now); err != nil {
		log.Printf("router: saving chat message from %s: %v", sender.UserID, err)
	}

	r.registry.Broadcast(protocol.ChatMessage{
		Type:     protocol.TypeChatMessage,
		UserID:   sender.UserID,
		Username: sender.Username,
		Time:     now.UTC().Format(time.RFC3339),
		Message:  text,
	}, nil)
}

func (r *Router) systemChat(now time.Time, message string) protocol.ChatMessage {
	return protocol.ChatMessage{
		Type:     protocol.TypeChatMessage,
		Username: SystemUsername,
		Time:     now.UTC().Format(time.RFC3339),
		Message:  message,
	}
}
