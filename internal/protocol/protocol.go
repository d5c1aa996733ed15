// Package protocol defines the wire format spoken over the persistent chat
// connection. Every frame is a UTF-8 JSON object carrying a "type"
// discriminator; payloads that do not parse as a typed object are legacy
// plain broadcast chat.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/courier-chat/courier/internal/domain"
)

// Frame types, client → server.
const (
	TypeIdentify          = "identify"
	TypeTyping            = "typing"
	TypeStopTyping        = "stop-typing"
	TypePrivateMessage    = "private-message"
	TypeDeleteForEveryone = "delete-message-for-everyone"
)

// Frame types, server → client.
const (
	TypeChatMessage         = "chat-message"
	TypeOnlineUsers         = "online-users"
	TypeForceLogout         = "force-logout"
	TypeProfileUpdate       = "profile-update"
	TypeFriendProfileUpdate = "friend-profile-update"
	TypeAccountDeleted      = "account-deleted"
)

// ErrUnknownType reports a JSON object frame whose "type" is not part of the
// protocol. Such frames are dropped, never reclassified as chat.
var ErrUnknownType = errors.New("unknown frame type")

// --- Client → server frames ---

type Identify struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type Typing struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId,omitempty"`
	ToUserID   string `json:"toUserId,omitempty"`
	Username   string `json:"username,omitempty"`
}

type PrivateMessageSend struct {
	Type     string  `json:"type"`
	ToUserID string  `json:"toUserId"`
	Message  *string `json:"message,omitempty"`
	FileURL  *string `json:"fileUrl,omitempty"`
	FileType *string `json:"fileType,omitempty"`
	Filename *string `json:"filename,omitempty"`
}

type DeleteForEveryone struct {
	Type       string   `json:"type"`
	ChatKey    string   `json:"chatKey"`
	Timestamps []string `json:"timestamps"`
}

// PlainText is a legacy frame: anything that is not a typed JSON object.
type PlainText struct {
	Text string
}

// --- Server → client frames ---

type ChatMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
	Time     string `json:"time"`
	Message  string `json:"message"`
}

type OnlineUsers struct {
	Type  string            `json:"type"`
	Users []domain.Identity `json:"users"`
}

type PrivateMessage struct {
	Type         string  `json:"type"`
	FromUserID   string  `json:"fromUserId"`
	ToUserID     string  `json:"toUserId"`
	FromUsername string  `json:"fromUsername,omitempty"`
	Message      *string `json:"message"`
	Time         string  `json:"time"`
	ChatKey      string  `json:"chatKey,omitempty"`
	FileURL      *string `json:"fileUrl"`
	FileType     *string `json:"fileType"`
	Filename     *string `json:"filename"`
}

type ForceLogout struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ProfileUpdate struct {
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	OldUsername string `json:"oldUsername,omitempty"`
}

type AccountDeleted struct {
	Type          string `json:"type"`
	DeletedUserID string `json:"deletedUserId"`
	Message       string `json:"message"`
}

// Decode classifies one inbound frame.
//
// Non-JSON payloads, JSON non-objects and objects without a "type" field are
// legacy plain chat and decode to PlainText. Objects with a recognized type
// decode to the matching frame struct; a recognized type with an invalid
// schema, or an unrecognized type, is an error and the frame is dropped by
// the caller.
func Decode(data []byte) (any, error) {
	var env struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == nil {
		return PlainText{Text: string(data)}, nil
	}

	switch *env.Type {
	case TypeIdentify:
		var f Identify
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding identify: %w", err)
		}
		if f.UserID == "" {
			return nil, errors.New("identify: missing userId")
		}
		return f, nil

	case TypeTyping, TypeStopTyping:
		var f Typing
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", *env.Type, err)
		}
		return f, nil

	case TypePrivateMessage:
		var f PrivateMessageSend
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding private-message: %w", err)
		}
		if f.ToUserID == "" {
			return nil, errors.New("private-message: missing toUserId")
		}
		return f, nil

	case TypeDeleteForEveryone:
		var f DeleteForEveryone
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding delete-message-for-everyone: %w", err)
		}
		if _, _, ok := ParseChatKey(f.ChatKey); !ok {
			return nil, fmt.Errorf("delete-message-for-everyone: bad chatKey %q", f.ChatKey)
		}
		return f, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *env.Type)
	}
}
