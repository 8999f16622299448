/*
Package chat contains the real-time messaging core: connection admission,
presence tracking, room-scoped routing, and the message delivery-status pipeline.

This file defines the Manager struct, which owns the presence table and all room
membership. Every mutation flows through a single Run loop goroutine fed by
channels, so the invariants (presence entry iff one admitted spoke connection)
hold without handing locks to callers. Reads used by the message pipeline
(IsHubOnline, IsSpokeOnline) take a shared lock and never block on the store.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"hubchat/internal/app/identity"
	"hubchat/internal/metrics"
	"hubchat/internal/pkg/logx"
)

const broadcastChannelBuffer = 1024

// broadcastFrame is one encoded event bound for every member of a room.
type broadcastFrame struct {
	room Room
	data []byte
}

// Manager coordinates connection lifecycles, the presence table, and room fan-out.
type Manager struct {
	// mu protects the three membership maps below. Mutations happen only on
	// the Run loop; other goroutines take read access.
	mu sync.RWMutex

	// hubs is the hub room: every admitted hub operator connection.
	hubs map[*Client]struct{}

	// spokes maps a spoke user id to its single admitted connection (the
	// occupant of that user's spoke room).
	spokes map[string]*Client

	// presence is the presence table: a spoke user id is present iff a spoke
	// connection for that id is currently admitted.
	presence map[string]struct{}

	register   chan *Client
	unregister chan *Client
	broadcasts chan broadcastFrame

	// stopChan signals the Run loop to terminate during shutdown.
	stopChan chan struct{}

	// wg waits for the Run loop to finish during shutdown.
	wg sync.WaitGroup

	// structured logger with Manager context.
	logger zerolog.Logger
}

// NewManager constructs a Manager and starts its Run loop.
func NewManager() *Manager {
	managerLogger := logx.Logger().With().Str("component", "Manager").Logger()

	m := &Manager{
		hubs:       make(map[*Client]struct{}),
		spokes:     make(map[string]*Client),
		presence:   make(map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcasts: make(chan broadcastFrame, broadcastChannelBuffer),
		stopChan:   make(chan struct{}),
		logger:     managerLogger,
	}

	m.wg.Add(1)
	go m.run()

	return m
}

// run is the single-writer event loop owning all membership state.
func (m *Manager) run() {
	defer m.wg.Done()

	m.logger.Info().Msg("Manager loop started.")

	for {
		select {
		case client := <-m.register:
			m.admit(client)

		case client := <-m.unregister:
			m.drop(client)

		case frame := <-m.broadcasts:
			m.fanOut(frame)

		case <-m.stopChan:
			m.logger.Info().Msg("Manager loop stopped.")
			return
		}
	}
}

// Register queues an already-verified connection for admission.
func (m *Manager) Register(client *Client) {
	select {
	case m.register <- client:
	case <-m.stopChan:
		client.closeSend()
	}
}

// Unregister queues a connection for removal after transport loss.
func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.stopChan:
	}
}

// Broadcast delivers an encoded event to every current member of the room,
// best-effort: no delivery confirmation, no queuing for connections that leave
// mid-broadcast. Frames are processed in submission order, so callers that
// persist before broadcasting get per-conversation delivery in persisted order.
func (m *Manager) Broadcast(room Room, data []byte) {
	select {
	case m.broadcasts <- frameFor(room, data):
	case <-m.stopChan:
	default:
		m.logger.Warn().Str("room", room.String()).Msg("Broadcast channel full, dropping event.")
		metrics.DroppedEvents.Inc()
	}
}

func frameFor(room Room, data []byte) broadcastFrame {
	return broadcastFrame{room: room, data: data}
}

// IsHubOnline reports whether the hub room is non-empty. This is the liveness
// signal for a spoke-to-hub message.
func (m *Manager) IsHubOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs) > 0
}

// IsSpokeOnline reports whether the presence table contains the spoke user.
// This is the liveness signal for a hub-to-spoke message.
func (m *Manager) IsSpokeOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.presence[userID]
	return ok
}

// OnlineSpokes snapshots the presence table.
func (m *Manager) OnlineSpokes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	online := make([]string, 0, len(m.presence))
	for userID := range m.presence {
		online = append(online, userID)
	}
	return online
}

// admit assigns the connection to its room and applies presence side effects.
func (m *Manager) admit(client *Client) {
	if client.id.Role == identity.RoleHub {
		m.mu.Lock()
		m.hubs[client] = struct{}{}
		snapshot := make([]OnlineUser, 0, len(m.presence))
		for userID := range m.presence {
			snapshot = append(snapshot, OnlineUser{UserID: userID, Status: PresenceOnline})
		}
		hubCount := len(m.hubs)
		m.mu.Unlock()

		metrics.HubsOnline.Set(float64(hubCount))
		m.logger.Info().
			Str("client_id", client.id.SubjectID).
			Int("total_hubs", hubCount).
			Msg("Hub operator joined hub room.")

		// One-time, connection-scoped reconciliation so a newly connected hub
		// immediately sees who is online. Private delivery, not a broadcast.
		data, err := EncodeEvent(EventInitialOnlineUsers, snapshot)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to encode initial_online_users snapshot.")
			return
		}
		if err := client.enqueue(data); err != nil {
			m.logger.Warn().Err(err).Str("client_id", client.id.SubjectID).Msg("Failed to deliver presence snapshot.")
		}
		return
	}

	userID := client.id.SubjectID

	m.mu.Lock()
	replaced := m.spokes[userID]
	m.spokes[userID] = client
	m.presence[userID] = struct{}{}
	spokeCount := len(m.presence)
	m.mu.Unlock()

	if replaced != nil {
		// A second connection for the same spoke id re-adds the same presence
		// key; the older connection is kicked and its later unregister is stale.
		m.logger.Warn().
			Str("client_id", userID).
			Msg("Spoke user already connected. Closing old connection for replacement.")
		replaced.Kick("Session replaced by new connection.")
	}

	metrics.SpokesOnline.Set(float64(spokeCount))
	m.logger.Info().
		Str("client_id", userID).
		Int("total_spokes", spokeCount).
		Msg("Spoke user joined own room.")

	m.broadcastUserStatus(userID, PresenceOnline)
}

// drop reverses admission after transport loss.
func (m *Manager) drop(client *Client) {
	if client.id.Role == identity.RoleHub {
		m.mu.Lock()
		_, ok := m.hubs[client]
		if ok {
			delete(m.hubs, client)
		}
		hubCount := len(m.hubs)
		m.mu.Unlock()

		if !ok {
			m.logger.Warn().Str("client_id", client.id.SubjectID).Msg("Unregister for unknown hub connection.")
			return
		}

		client.closeSend()
		metrics.HubsOnline.Set(float64(hubCount))
		// Hub presence is not tracked; no presence side effect.
		m.logger.Info().
			Str("client_id", client.id.SubjectID).
			Int("total_hubs", hubCount).
			Msg("Hub operator left hub room.")
		return
	}

	userID := client.id.SubjectID

	m.mu.Lock()
	current, ok := m.spokes[userID]
	if ok && current == client {
		delete(m.spokes, userID)
		delete(m.presence, userID)
	}
	spokeCount := len(m.presence)
	m.mu.Unlock()

	if !ok || current != client {
		// A replaced connection unregistering after its kick; the presence
		// entry belongs to the newer connection.
		m.logger.Info().Str("stale_client_id", userID).Msg("Ignoring unregister for stale spoke connection.")
		return
	}

	client.closeSend()
	metrics.SpokesOnline.Set(float64(spokeCount))
	m.logger.Info().
		Str("client_id", userID).
		Int("total_spokes", spokeCount).
		Msg("Spoke user left own room.")

	m.broadcastUserStatus(userID, PresenceOffline)
}

// broadcastUserStatus announces a spoke presence change to the hub room.
func (m *Manager) broadcastUserStatus(userID, status string) {
	data, err := EncodeEvent(EventUserStatus, UserStatusPayload{UserID: userID, Status: status})
	if err != nil {
		m.logger.Error().Err(err).Str("client_id", userID).Msg("Failed to encode user_status event.")
		return
	}
	m.fanOut(frameFor(HubRoom(), data))
}

// fanOut delivers one frame to the room's current members. Full client queues
// drop the frame for that client rather than blocking the loop.
func (m *Manager) fanOut(frame broadcastFrame) {
	m.mu.RLock()
	var targets []*Client
	if frame.room.IsHub() {
		targets = make([]*Client, 0, len(m.hubs))
		for client := range m.hubs {
			targets = append(targets, client)
		}
	} else if client, ok := m.spokes[frame.room.SpokeUserID()]; ok {
		targets = []*Client{client}
	}
	m.mu.RUnlock()

	for _, client := range targets {
		if err := client.enqueue(frame.data); err != nil {
			m.logger.Warn().
				Str("client_id", client.id.SubjectID).
				Str("room", frame.room.String()).
				Msg("Client send queue full or closed, dropping event.")
		}
	}
}

// Shutdown stops the Run loop and closes every remaining connection.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down Manager...")

	close(m.stopChan)
	m.wg.Wait()

	m.mu.Lock()
	for client := range m.hubs {
		client.closeSend()
	}
	for _, client := range m.spokes {
		client.closeSend()
	}
	m.hubs = make(map[*Client]struct{})
	m.spokes = make(map[string]*Client)
	m.presence = make(map[string]struct{})
	m.mu.Unlock()

	m.logger.Info().Msg("Manager shutdown complete.")
}
