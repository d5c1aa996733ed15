package service

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/protocol"
	"github.com/courier-chat/courier/internal/repository"
)

// Reconciler flushes a user's offline mailbox on (re)identification: first
// the pending messages, then the pending delete markers. Each sweep is
// best-effort; a store failure logs, abandons that sweep and leaves the rows
// for the next identify. Delivery is at-least-once: a crash between send and
// delete redelivers on reconnect.
type Reconciler struct {
	messages repository.MessageRepository
}

func NewReconciler(messages repository.MessageRepository) *Reconciler {
	return &Reconciler{messages: messages}
}

// Drain runs both sweeps for userID against the freshly admitted connection.
func (r *Reconciler) Drain(ctx context.Context, peer Peer, userID string) {
	r.drainMailbox(ctx, peer, userID)
	r.drainDeleteMarkers(ctx, peer, userID)
}

func (r *Reconciler) drainMailbox(ctx context.Context, peer Peer, userID string) {
	pending, err := r.messages.ListPending(ctx, userID)
	if err != nil {
		log.Printf("reconciler: listing pending messages for %s: %v", userID, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(pending))
	for _, msg := range pending {
		// Redelivered frames carry only the persisted fields. FromUsername
		// and ChatKey stay empty on this path; the client resolves both
		// from its own contact state.
		peer.Send(protocol.PrivateMessage{
			Type:       protocol.TypePrivateMessage,
			FromUserID: msg.SenderID,
			ToUserID:   msg.ReceiverID,
			Message:    msg.Body,
			Time:       protocol.FormatClock(msg.Time),
			FileURL:    msg.FileURL,
			FileType:   msg.FileType,
			Filename:   msg.Filename,
		})
		ids = append(ids, msg.ID)
	}

	if len(ids) == 0 {
		return
	}
	// Delete only the rows just delivered. Messages persisted while the
	// sweep was running stay queued for the next identify.
	if err := r.messages.DeletePending(ctx, ids); err != nil {
		log.Printf("reconciler: clearing delivered messages for %s: %v", userID, err)
	}
}

func (r *Reconciler) drainDeleteMarkers(ctx context.Context, peer Peer, userID string) {
	markers, err := r.messages.ListDeleteMarkers(ctx, userID)
	if err != nil {
		log.Printf("reconciler: listing delete markers for %s: %v", userID, err)
		return
	}
	if len(markers) == 0 {
		return
	}

	// One event per conversation, carrying all of its timestamps.
	groups := make(map[string][]string)
	var order []string
	ids := make([]uuid.UUID, 0, len(markers))
	for _, m := range markers {
		key := protocol.ChatKey(m.ParticipantLow, m.ParticipantHigh)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], protocol.FormatClock(m.Time))
		ids = append(ids, m.ID)
	}

	for _, key := range order {
		peer.Send(protocol.DeleteForEveryone{
			Type:       protocol.TypeDeleteForEveryone,
			ChatKey:    key,
			Timestamps: groups[key],
		})
	}

	if err := r.messages.DeleteDeleteMarkers(ctx, ids); err != nil {
		log.Printf("reconciler: clearing delete markers for %s: %v", userID, err)
	}
}
