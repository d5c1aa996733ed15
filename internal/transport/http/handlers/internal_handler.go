package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/courier-chat/courier/internal/protocol"
	"github.com/courier-chat/courier/internal/service"
)

// InternalHandler fans REST-layer events out to every live connection. The
// REST process owns profiles and accounts; this is its trusted path into the
// message server.
type InternalHandler struct {
	registry *service.Registry
}

func NewInternalHandler(registry *service.Registry) *InternalHandler {
	return &InternalHandler{registry: registry}
}

type profileUpdateInput struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	OldUsername string `json:"oldUsername"`
}

// BroadcastProfileUpdate pushes profile-update and friend-profile-update
// frames to all connections.
func (h *InternalHandler) BroadcastProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var input profileUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "userId is required")
		return
	}

	log.Printf("internal: broadcasting profile update for %s", input.UserID)
	for _, typ := range []string{protocol.TypeProfileUpdate, protocol.TypeFriendProfileUpdate} {
		h.registry.Broadcast(protocol.ProfileUpdate{
			Type:        typ,
			UserID:      input.UserID,
			Username:    input.Username,
			OldUsername: input.OldUsername,
		}, nil)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Broadcasted"})
}

type accountDeletedInput struct {
	DeletedUserID string `json:"deletedUserId"`
}

// BroadcastAccountDeleted pushes an account-deleted frame to all connections.
func (h *InternalHandler) BroadcastAccountDeleted(w http.ResponseWriter, r *http.Request) {
	var input accountDeletedInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.DeletedUserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "deletedUserId is required")
		return
	}

	log.Printf("internal: broadcasting account deletion for %s", input.DeletedUserID)
	h.registry.Broadcast(protocol.AccountDeleted{
		Type:          protocol.TypeAccountDeleted,
		DeletedUserID: input.DeletedUserID,
		Message:       fmt.Sprintf("User %s has deleted their account", input.DeletedUserID),
	}, nil)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Broadcasted"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
