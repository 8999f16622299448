/*
Package chat contains the real-time messaging core: connection admission,
presence tracking, room-scoped routing, and the message delivery-status pipeline.

This file defines the Pipeline struct: outbound message handling (resolve
conversation, persist, resolve delivery status, broadcast), the stateless
typing and read-receipt relay, and the authorized history read. Store calls are
never made under the manager's lock; conversation uniqueness under racing first
messages is guaranteed by the store's upsert contract, not serialized here.
*/
package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hubchat/internal/app/identity"
	"hubchat/internal/app/store"
	"hubchat/internal/metrics"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/logx"
)

// Pipeline routes operations between connections, the conversation store, and
// room fan-out.
type Pipeline struct {
	store   store.ConversationStore
	manager *Manager
	logger  zerolog.Logger
}

// NewPipeline constructs a Pipeline over the given store and manager.
func NewPipeline(st store.ConversationStore, manager *Manager) *Pipeline {
	return &Pipeline{
		store:   st,
		manager: manager,
		logger:  logx.Logger().With().Str("component", "Pipeline").Logger(),
	}
}

// conversationOwner resolves which spoke user's conversation an operation
// addresses. A spoke sender always owns its own conversation; a hub sender
// must name a target. The empty return means "nothing to do" for an
// unaddressed hub operation.
func conversationOwner(sender identity.Identity, targetUserID string) string {
	if sender.Role == identity.RoleSpoke {
		return sender.SubjectID
	}
	return targetUserID
}

// Send accepts an outbound message: it resolves or lazily creates the target
// conversation, persists the message, computes the initial delivery status,
// broadcasts the enriched event to the conversation's spoke room and the hub
// room, and returns the persisted message for the sender's direct reply.
//
// A hub sender without a target yields (nil, nil): a silent no-op, preserving
// the "hub must pick a target" semantics clients already depend on.
func (p *Pipeline) Send(ctx context.Context, sender identity.Identity, content, targetUserID string) (*store.Message, error) {
	if content == "" {
		return nil, errs.NewError(errs.ErrMessageEmpty)
	}
	if len(content) > MaxContentBytes {
		return nil, errs.NewError(errs.ErrMessageContentTooLong)
	}

	owner := conversationOwner(sender, targetUserID)
	if owner == "" {
		p.logger.Warn().Str("sender_id", sender.SubjectID).Msg("Hub send without targetUserId, ignoring.")
		return nil, nil
	}

	conv, err := p.store.GetOrCreateConversation(ctx, owner)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_user_id", owner).Msg("Failed to resolve conversation")
		metrics.StoreFailures.WithLabelValues("get_or_create_conversation").Inc()
		return nil, errs.NewError(errs.ErrStoreFailure)
	}

	msg, err := p.store.CreateMessage(ctx, conv.ID, sender.SubjectID, content, store.StatusSent)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to persist message")
		metrics.StoreFailures.WithLabelValues("create_message").Inc()
		return nil, errs.NewError(errs.ErrStoreFailure)
	}

	// Delivery status is resolved exactly once, at send time. A spoke sender
	// addresses the hub collectively (hub room occupancy is the liveness
	// signal); a hub sender addresses one spoke user (presence table).
	var recipientOnline bool
	if sender.Role == identity.RoleSpoke {
		recipientOnline = p.manager.IsHubOnline()
	} else {
		recipientOnline = p.manager.IsSpokeOnline(owner)
	}

	if recipientOnline {
		// The broadcast must reflect persisted state, never a state the store
		// doesn't also hold, so the upgrade lands before fan-out. If the
		// upgrade fails the message stays SENT everywhere.
		if err := p.store.UpdateMessageStatus(ctx, msg.ID, store.StatusDelivered); err != nil {
			p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to upgrade message to DELIVERED")
			metrics.StoreFailures.WithLabelValues("update_message_status").Inc()
		} else {
			msg.Status = store.StatusDelivered
		}
	}

	metrics.MessagesSent.WithLabelValues(string(sender.Role), string(msg.Status)).Inc()

	event := MessageEvent{
		Message:            *msg,
		SenderRole:         sender.Role,
		ConversationUserID: conv.SpokeUserID,
	}

	data, err := EncodeEvent(EventMessageReceived, event)
	if err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to encode message_received event")
		return msg, nil
	}

	// Every hub connection observes every conversation; the spoke user
	// observes only its own.
	p.manager.Broadcast(SpokeRoom(conv.SpokeUserID), data)
	p.manager.Broadcast(HubRoom(), data)

	return msg, nil
}

// Typing relays an ephemeral typing signal. No state is retained and nothing
// is persisted; receivers time the signal out locally.
func (p *Pipeline) Typing(sender identity.Identity, isTyping bool, targetUserID string) {
	var room Room
	if sender.Role == identity.RoleSpoke {
		room = HubRoom()
	} else {
		if targetUserID == "" {
			return
		}
		room = SpokeRoom(targetUserID)
	}

	payload := TypingStatusPayload{
		UserID:   sender.SubjectID,
		IsTyping: isTyping,
		Role:     sender.Role,
	}

	data, err := EncodeEvent(EventTypingStatus, payload)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to encode typing_status event")
		return
	}

	metrics.TypingSignals.WithLabelValues(string(sender.Role)).Inc()
	p.manager.Broadcast(room, data)
}

// MarkAsRead bulk-transitions every message in the caller's resolved
// conversation that the caller did not send and that is not yet READ, then
// notifies the other party's room. The store applies the transition
// atomically, and the operation is idempotent: re-issuing it only ever moves
// rows toward READ.
func (p *Pipeline) MarkAsRead(ctx context.Context, caller identity.Identity, targetUserID string) error {
	owner := conversationOwner(caller, targetUserID)
	if owner == "" {
		return nil
	}

	conv, err := p.store.FindConversationByUser(ctx, owner)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_user_id", owner).Msg("Failed to look up conversation")
		metrics.StoreFailures.WithLabelValues("find_conversation").Inc()
		return errs.NewError(errs.ErrStoreFailure)
	}
	if conv == nil {
		return nil
	}

	updated, err := p.store.BulkMarkRead(ctx, conv.ID, caller.SubjectID)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to mark conversation read")
		metrics.StoreFailures.WithLabelValues("bulk_mark_read").Inc()
		return errs.NewError(errs.ErrStoreFailure)
	}

	if updated > 0 {
		metrics.ReadReceipts.Inc()
	}

	payload := MessageReadPayload{
		ConversationID: conv.ID,
		ReadBy:         caller.SubjectID,
	}

	data, err := EncodeEvent(EventMessageRead, payload)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to encode message_read event")
		return nil
	}

	// A spoke reader notifies the entire hub room, not a single operator.
	if caller.Role == identity.RoleSpoke {
		p.manager.Broadcast(HubRoom(), data)
	} else {
		p.manager.Broadcast(SpokeRoom(owner), data)
	}

	return nil
}

// History returns up to the 100 most recent messages of a conversation,
// ascending by time. A spoke caller may only fetch its own conversation; a hub
// caller must supply the target spoke user's id and gets an empty list when it
// doesn't. A missing conversation also yields an empty list.
func (p *Pipeline) History(ctx context.Context, caller identity.Identity, targetUserID string, since *time.Time) ([]store.Message, error) {
	owner := conversationOwner(caller, targetUserID)
	if owner == "" {
		return []store.Message{}, nil
	}

	conv, err := p.store.FindConversationByUser(ctx, owner)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_user_id", owner).Msg("Failed to look up conversation")
		metrics.StoreFailures.WithLabelValues("find_conversation").Inc()
		return nil, errs.NewError(errs.ErrStoreFailure)
	}
	if conv == nil {
		return []store.Message{}, nil
	}

	messages, err := p.store.ListMessages(ctx, conv.ID, since, store.MaxHistoryLimit)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to list messages")
		metrics.StoreFailures.WithLabelValues("list_messages").Inc()
		return nil, errs.NewError(errs.ErrStoreFailure)
	}

	return messages, nil
}
