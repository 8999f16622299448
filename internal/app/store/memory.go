package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process ConversationStore. It backs the development
// environment when no DATABASE_URL is configured and the package tests.
// A single mutex covers both maps; every operation is short and non-blocking.
type Memory struct {
	mu            sync.Mutex
	conversations map[string]*Conversation // keyed by spoke user id
	messages      map[string][]*Message    // keyed by conversation id, append order
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

// Close is a no-op for the in-memory store.
func (s *Memory) Close() {}

// Ping always succeeds.
func (s *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// FindConversationByUser returns the spoke user's conversation, or (nil, nil) when absent.
func (s *Memory) FindConversationByUser(ctx context.Context, userID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[userID]
	if !ok {
		return nil, nil
	}
	copied := *conv
	return &copied, nil
}

// GetOrCreateConversation returns the existing conversation or inserts a new
// one. Holding the mutex across the lookup-and-insert gives the same
// uniqueness guarantee the Postgres unique index provides.
func (s *Memory) GetOrCreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[userID]; ok {
		copied := *conv
		return &copied, nil
	}

	conv := &Conversation{
		ID:          uuid.New().String(),
		SpokeUserID: userID,
		CreatedAt:   time.Now().UTC(),
	}
	s.conversations[userID] = conv

	copied := *conv
	return &copied, nil
}

// CreateMessage appends a message to the conversation.
func (s *Memory) CreateMessage(ctx context.Context, conversationID, senderID, content string, status Status) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conversationExists(conversationID) {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)

	copied := *msg
	return &copied, nil
}

// UpdateMessageStatus moves a message's status forward; regressions are discarded.
func (s *Memory) UpdateMessageStatus(ctx context.Context, messageID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msgs := range s.messages {
		for _, msg := range msgs {
			if msg.ID == messageID {
				if msg.Status.CanTransitionTo(status) {
					msg.Status = status
				}
				return nil
			}
		}
	}
	return fmt.Errorf("message %s not found", messageID)
}

// BulkMarkRead transitions the other party's unread messages to READ. The
// mutex makes the sweep atomic: all qualifying messages transition or none.
func (s *Memory) BulkMarkRead(ctx context.Context, conversationID, excludeSenderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, msg := range s.messages[conversationID] {
		if msg.SenderID != excludeSenderID && msg.Status != StatusRead {
			msg.Status = StatusRead
			updated++
		}
	}
	return updated, nil
}

// ListMessages returns the limit most recent messages ascending by creation time.
func (s *Memory) ListMessages(ctx context.Context, conversationID string, since *time.Time, limit int) ([]Message, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Message, 0, len(s.messages[conversationID]))
	for _, msg := range s.messages[conversationID] {
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		matched = append(matched, *msg)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (s *Memory) conversationExists(conversationID string) bool {
	for _, conv := range s.conversations {
		if conv.ID == conversationID {
			return true
		}
	}
	return false
}
