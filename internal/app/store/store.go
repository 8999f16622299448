/*
Package store defines the durable conversation store: the narrow CRUD contract the
messaging core reads and writes through, plus its Postgres and in-memory implementations.

The store, not the core, is the source of the one-conversation-per-spoke-user
guarantee: GetOrCreateConversation must be safe under concurrent duplicate calls
for the same user id.
*/
package store

import (
	"context"
	"time"
)

// Status is the delivery state of a message. Transitions are monotonically
// forward only: SENT -> DELIVERED -> READ, and READ is terminal.
type Status string

const (
	// StatusSent means the message is persisted but the recipient was not
	// confirmed online at send time.
	StatusSent Status = "SENT"

	// StatusDelivered means the recipient was online at send time.
	StatusDelivered Status = "DELIVERED"

	// StatusRead means the recipient has explicitly acknowledged the message.
	StatusRead Status = "READ"
)

// rank orders statuses for the forward-only transition check.
func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next goes strictly forward.
func (s Status) CanTransitionTo(next Status) bool {
	return next.rank() > s.rank()
}

// Conversation is the single thread of messages belonging to one spoke user.
type Conversation struct {
	ID          string    `json:"id"`
	SpokeUserID string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is one chat message inside a conversation. Append-only from the
// core's perspective; Status is the only mutable field.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MaxHistoryLimit caps how many messages a single history read may return.
const MaxHistoryLimit = 100

// ConversationStore is the boundary to the durable store. Implementations must
// never be called under the chat manager's lock; every operation may block or
// fail independently.
type ConversationStore interface {
	// FindConversationByUser returns the conversation owned by the given spoke
	// user, or (nil, nil) when none exists.
	FindConversationByUser(ctx context.Context, userID string) (*Conversation, error)

	// GetOrCreateConversation returns the existing conversation for the spoke
	// user or creates one. Concurrent calls for the same user must converge on
	// one row (unique-constraint-or-return-existing semantics).
	GetOrCreateConversation(ctx context.Context, userID string) (*Conversation, error)

	// CreateMessage appends a message and returns it with its assigned id and timestamp.
	CreateMessage(ctx context.Context, conversationID, senderID, content string, status Status) (*Message, error)

	// UpdateMessageStatus moves a message's status forward. Regressions
	// (e.g. READ back to DELIVERED) are silently discarded.
	UpdateMessageStatus(ctx context.Context, messageID string, status Status) error

	// BulkMarkRead transitions every message in the conversation not sent by
	// excludeSenderID and not yet READ to READ, atomically. It returns the
	// number of messages transitioned and is idempotent.
	BulkMarkRead(ctx context.Context, conversationID, excludeSenderID string) (int64, error)

	// ListMessages returns up to limit of the most recent messages of the
	// conversation, ascending by creation time, optionally restricted to
	// messages created after since. Limits above MaxHistoryLimit are capped.
	ListMessages(ctx context.Context, conversationID string, since *time.Time, limit int) ([]Message, error)

	// Ping checks the store connection.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}
