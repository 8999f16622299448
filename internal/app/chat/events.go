/*
Package chat contains the real-time messaging core: connection admission,
presence tracking, room-scoped routing, and the message delivery-status pipeline.

This file defines the connection-level event surface. The event names are the
externally observed protocol and are preserved verbatim; clients depend on them.
*/
package chat

import (
	"encoding/json"

	"hubchat/internal/app/identity"
	"hubchat/internal/app/store"
)

// EventType names one event on the wire, in either direction.
type EventType string

// Client -> server events.
const (
	EventSendMessage EventType = "send_message"
	EventTyping      EventType = "typing"
	EventMarkAsRead  EventType = "mark_as_read"
)

// Server -> client events. All but the last three are room broadcasts;
// message_ack and error are direct replies to the initiating connection, and
// initial_online_users is a one-time connection-scoped snapshot for newly
// admitted hub operators.
const (
	EventMessageReceived    EventType = "message_received"
	EventUserStatus         EventType = "user_status"
	EventTypingStatus       EventType = "typing_status"
	EventMessageRead        EventType = "message_read"
	EventInitialOnlineUsers EventType = "initial_online_users"
	EventMessageAck         EventType = "message_ack"
	EventError              EventType = "error"
)

// Envelope is the wire frame wrapping every event. TempID is a client-chosen
// correlation id: the client attaches it to send_message and the server echoes
// it on the message_ack (or error) direct reply so the client can reconcile
// its optimistic local echo.
type Envelope struct {
	Event   EventType       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TempID  string          `json:"tempId,omitempty"`
}

// EncodeEvent marshals an outbound event frame.
func EncodeEvent(event EventType, payload any) ([]byte, error) {
	return EncodeReply(event, payload, "")
}

// EncodeReply marshals an outbound event frame echoing the client's tempId.
func EncodeReply(event EventType, payload any, tempID string) ([]byte, error) {
	frame := struct {
		Event   EventType `json:"event"`
		Payload any       `json:"payload,omitempty"`
		TempID  string    `json:"tempId,omitempty"`
	}{
		Event:   event,
		Payload: payload,
		TempID:  tempID,
	}
	return json.Marshal(frame)
}

// SendMessagePayload is the body of a send_message event. TargetUserID is
// required for hub senders and ignored for spoke senders.
type SendMessagePayload struct {
	Content      string `json:"content"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

// TypingPayload is the body of a typing event.
type TypingPayload struct {
	IsTyping     bool   `json:"isTyping"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

// MarkAsReadPayload is the body of a mark_as_read event.
type MarkAsReadPayload struct {
	TargetUserID string `json:"targetUserId,omitempty"`
}

// Presence status wire values.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// UserStatusPayload announces a spoke user's presence change to the hub room.
type UserStatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// OnlineUser is one entry of the initial_online_users snapshot.
type OnlineUser struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// TypingStatusPayload relays an ephemeral typing signal. The core keeps no
// typing state and provides no TTL; receivers time the signal out locally.
type TypingStatusPayload struct {
	UserID   string        `json:"userId"`
	IsTyping bool          `json:"isTyping"`
	Role     identity.Role `json:"role"`
}

// MessageReadPayload notifies the other party that a conversation was read.
type MessageReadPayload struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

// MessageEvent is the message_received payload: the persisted message enriched
// with the sender's role and the spoke user id owning the conversation, which
// recipients need to route the event to the correct conversation view.
type MessageEvent struct {
	store.Message
	SenderRole         identity.Role `json:"senderRole"`
	ConversationUserID string        `json:"conversationUserId"`
}

// ErrorPayload is the body of an error direct reply.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
