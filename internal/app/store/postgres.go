package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements ConversationStore on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an initialized connection pool (see the db package for pool
// construction and migrations).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close closes the underlying connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindConversationByUser returns the spoke user's conversation, or (nil, nil) when absent.
func (s *Postgres) FindConversationByUser(ctx context.Context, userID string) (*Conversation, error) {
	conv := &Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, spoke_user_id, created_at
		FROM conversations WHERE spoke_user_id = $1
	`, userID).Scan(&conv.ID, &conv.SpokeUserID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// GetOrCreateConversation upserts the spoke user's conversation. The unique
// index on spoke_user_id resolves racing first messages from both parties: the
// no-op DO UPDATE makes the statement return the surviving row either way.
func (s *Postgres) GetOrCreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	conv := &Conversation{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (spoke_user_id)
		VALUES ($1)
		ON CONFLICT (spoke_user_id) DO UPDATE SET spoke_user_id = EXCLUDED.spoke_user_id
		RETURNING id, spoke_user_id, created_at
	`, userID).Scan(&conv.ID, &conv.SpokeUserID, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateMessage appends a message and returns the stored row.
func (s *Postgres) CreateMessage(ctx context.Context, conversationID, senderID, content string, status Status) (*Message, error) {
	msg := &Message{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, sender_id, content, status, created_at
	`, conversationID, senderID, content, status).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.Status,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateMessageStatus moves a message's status forward. The enum declares its
// values in transition order, so the comparison discards regressions and
// keeps READ terminal under retried or out-of-order updates.
func (s *Postgres) UpdateMessageStatus(ctx context.Context, messageID string, status Status) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET status = $2
		WHERE id = $1 AND status < $2::message_status
	`, messageID, status)
	return err
}

// BulkMarkRead transitions the other party's unread messages to READ in a
// single statement, which is atomic from the store's perspective.
func (s *Postgres) BulkMarkRead(ctx context.Context, conversationID, excludeSenderID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET status = 'READ'
		WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'READ'
	`, conversationID, excludeSenderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListMessages returns the limit most recent messages ascending by creation time.
func (s *Postgres) ListMessages(ctx context.Context, conversationID string, since *time.Time, limit int) ([]Message, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, status, created_at FROM (
			SELECT id, conversation_id, sender_id, content, status, created_at
			FROM messages
			WHERE conversation_id = $1 AND ($2::timestamptz IS NULL OR created_at > $2)
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, conversationID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Status, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
