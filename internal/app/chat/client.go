/*
Package chat contains the real-time messaging core: connection admission,
presence tracking, room-scoped routing, and the message delivery-status pipeline.

This file defines the Client struct, representing an admitted WebSocket
connection. It manages the connection's message loops (ReadPump and WritePump)
and dispatches inbound events to the message pipeline. A connection's own
events are processed strictly in arrival order inside its ReadPump.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hubchat/internal/app/identity"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum allowed size (in bytes) for message content.
	MaxContentBytes = 5000

	// WsCloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that the session was replaced by a new connection.
	WsCloseCodeSessionReplaced = 4001

	// WsCloseCodeUnauthorized signals that identity verification failed after
	// the transport upgrade.
	WsCloseCodeUnauthorized = 4003
)

// Client represents an admitted WebSocket connection and its verified identity.
type Client struct {
	// manager owning this connection's room membership and presence entry.
	manager *Manager

	// pipeline handling send/typing/read operations for this connection.
	pipeline *Pipeline

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// verified identity of the participant.
	id identity.Identity

	// a buffered channel used to queue events waiting to be sent to the client.
	send chan []byte

	// sendMu guards closed so direct replies never race the manager closing send.
	sendMu sync.Mutex
	closed bool

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs a Client for a verified identity over an upgraded connection.
func NewClient(manager *Manager, pipeline *Pipeline, wsConn *websocket.Conn, id identity.Identity) *Client {
	clientLogger := logx.Logger().With().
		Str("client_id", id.SubjectID).
		Str("role", string(id.Role)).
		Logger()

	return &Client{
		manager:  manager,
		pipeline: pipeline,
		conn:     wsConn,
		id:       id,
		send:     make(chan []byte, 256),
		logger:   clientLogger,
	}
}

// Identity returns the connection's verified identity.
func (c *Client) Identity() identity.Identity {
	return c.id
}

// ReadPump handles reading events from the WebSocket connection.
// It handles heartbeats (Pong), event dispatch, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frameBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.processInboundEvent(frameBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.manager.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundEvent handles one raw frame received from the client. Failures
// are local to the operation: an error here never affects other connections'
// membership, presence, or in-flight operations.
func (c *Client) processInboundEvent(frameBytes []byte) {
	var frame Envelope
	if err := json.Unmarshal(frameBytes, &frame); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
		return
	}

	switch frame.Event {
	case EventSendMessage:
		c.handleSendMessage(frame.Payload, frame.TempID)

	case EventTyping:
		c.handleTyping(frame.Payload)

	case EventMarkAsRead:
		c.handleMarkAsRead(frame.Payload)

	default:
		c.logger.Warn().Str("event", string(frame.Event)).Msg("Client sent unsupported event")
	}
}

// handleSendMessage runs the message pipeline and direct-replies the persisted
// message as the sender's acknowledgment.
func (c *Client) handleSendMessage(payloadBytes json.RawMessage, tempID string) {
	var payload SendMessagePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid send_message payload")
		return
	}

	msg, err := c.pipeline.Send(context.Background(), c.id, payload.Content, payload.TargetUserID)
	if err != nil {
		c.SendError(err, tempID)
		return
	}
	if msg == nil {
		// Hub sender without a target: nothing to do, no error surfaced.
		return
	}

	ack, err := EncodeReply(EventMessageAck, msg, tempID)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode message_ack reply")
		return
	}
	if err := c.enqueue(ack); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to queue message_ack reply")
	}
}

// handleTyping relays an ephemeral typing signal.
func (c *Client) handleTyping(payloadBytes json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid typing payload")
		return
	}

	c.pipeline.Typing(c.id, payload.IsTyping, payload.TargetUserID)
}

// handleMarkAsRead bulk-transitions the other party's messages to READ.
func (c *Client) handleMarkAsRead(payloadBytes json.RawMessage) {
	var payload MarkAsReadPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid mark_as_read payload")
		return
	}

	if err := c.pipeline.MarkAsRead(context.Background(), c.id, payload.TargetUserID); err != nil {
		c.SendError(err, "")
	}
}

// WritePump handles writing events from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !c.writeQueuedEvent(data, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedEvent writes one queued frame to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedEvent(data []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue queues an encoded frame for delivery to this connection.
// Full or closed queues fail fast; the manager loop must never block here.
func (c *Client) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return errors.New("client send queue closed")
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client send queue full (%d queued)", len(c.send))
	}
}

// closeSend closes the send channel exactly once, ending the WritePump.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendError direct-replies an error event to this connection only.
// Broadcast channels never carry failures.
func (c *Client) SendError(err error, tempID string) {
	customErr := errs.From(err, errs.ErrUnknown)

	payload := ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
	}

	data, encodeErr := EncodeReply(EventError, payload, tempID)
	if encodeErr != nil {
		c.logger.Error().Err(encodeErr).Msg("Failed to encode error reply")
		return
	}

	if err := c.enqueue(data); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to queue error reply")
	}
}

// Kick gracefully closes the client's connection by sending a custom WebSocket
// Close Frame (Code 4001) indicating that the session was replaced.
func (c *Client) Kick(reason string) {
	c.logger.Warn().
		Int("close_code", WsCloseCodeSessionReplaced).
		Str("reason", reason).
		Msg("Sending WS kick message and closing connection.")

	if c.conn != nil {
		closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionReplaced, reason)

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to send WS 4001 close message.")
		}
	}

	c.closeSend()
}
