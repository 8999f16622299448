package chat

import (
	"encoding/json"
	"testing"
	"time"

	"hubchat/internal/app/identity"
	"hubchat/internal/app/store"
)

func newTestManager(t *testing.T) (*Manager, *Pipeline) {
	t.Helper()
	m := NewManager()
	t.Cleanup(m.Shutdown)
	return m, NewPipeline(store.NewMemory(), m)
}

func newTestClient(m *Manager, p *Pipeline, subjectID string, role identity.Role) *Client {
	return NewClient(m, p, nil, identity.Identity{
		SubjectID:   subjectID,
		Role:        role,
		DisplayName: subjectID,
	})
}

// nextEvent reads one decoded event frame from the client's send queue.
func nextEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("client send queue closed while waiting for event")
		}
		var frame Envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("invalid event frame: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

// expectEvent reads events until one of the wanted type arrives, failing on timeout.
func expectEvent(t *testing.T, c *Client, want EventType) Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := nextEvent(t, c)
		if frame.Event == want {
			return frame
		}
	}
	t.Fatalf("timed out waiting for %s event", want)
	return Envelope{}
}

// waitFor polls until the condition holds, failing on timeout.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSpokeAdmissionUpdatesPresence(t *testing.T) {
	m, p := newTestManager(t)

	spoke := newTestClient(m, p, "user-a", identity.RoleSpoke)
	m.Register(spoke)

	waitFor(t, func() bool { return m.IsSpokeOnline("user-a") })

	m.Unregister(spoke)
	waitFor(t, func() bool { return !m.IsSpokeOnline("user-a") })
}

func TestHubAdmissionReceivesPresenceSnapshot(t *testing.T) {
	m, p := newTestManager(t)

	spoke := newTestClient(m, p, "user-a", identity.RoleSpoke)
	m.Register(spoke)
	waitFor(t, func() bool { return m.IsSpokeOnline("user-a") })

	hub := newTestClient(m, p, "hub-1", identity.RoleHub)
	m.Register(hub)

	frame := expectEvent(t, hub, EventInitialOnlineUsers)

	var snapshot []OnlineUser
	if err := json.Unmarshal(frame.Payload, &snapshot); err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 1 || snapshot[0].UserID != "user-a" || snapshot[0].Status != PresenceOnline {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestSpokePresenceChangeBroadcastToHubRoom(t *testing.T) {
	m, p := newTestManager(t)

	hub := newTestClient(m, p, "hub-1", identity.RoleHub)
	m.Register(hub)
	expectEvent(t, hub, EventInitialOnlineUsers)

	spoke := newTestClient(m, p, "user-a", identity.RoleSpoke)
	m.Register(spoke)

	frame := expectEvent(t, hub, EventUserStatus)
	var status UserStatusPayload
	if err := json.Unmarshal(frame.Payload, &status); err != nil {
		t.Fatal(err)
	}
	if status.UserID != "user-a" || status.Status != PresenceOnline {
		t.Fatalf("unexpected user_status payload: %+v", status)
	}

	m.Unregister(spoke)

	frame = expectEvent(t, hub, EventUserStatus)
	if err := json.Unmarshal(frame.Payload, &status); err != nil {
		t.Fatal(err)
	}
	if status.UserID != "user-a" || status.Status != PresenceOffline {
		t.Fatalf("unexpected user_status payload: %+v", status)
	}
}

func TestHubDisconnectHasNoPresenceSideEffect(t *testing.T) {
	m, p := newTestManager(t)

	hubA := newTestClient(m, p, "hub-1", identity.RoleHub)
	hubB := newTestClient(m, p, "hub-2", identity.RoleHub)
	m.Register(hubA)
	m.Register(hubB)
	expectEvent(t, hubA, EventInitialOnlineUsers)
	expectEvent(t, hubB, EventInitialOnlineUsers)

	m.Unregister(hubA)
	waitFor(t, func() bool {
		hubA.sendMu.Lock()
		defer hubA.sendMu.Unlock()
		return hubA.closed
	})

	// No user_status event reaches the remaining hub.
	select {
	case data := <-hubB.send:
		t.Fatalf("unexpected event after hub disconnect: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSecondSpokeConnectionReplacesFirst(t *testing.T) {
	m, p := newTestManager(t)

	first := newTestClient(m, p, "user-a", identity.RoleSpoke)
	m.Register(first)
	waitFor(t, func() bool { return m.IsSpokeOnline("user-a") })

	second := newTestClient(m, p, "user-a", identity.RoleSpoke)
	m.Register(second)

	// The first connection's send queue closes on kick.
	waitFor(t, func() bool {
		first.sendMu.Lock()
		defer first.sendMu.Unlock()
		return first.closed
	})

	// The stale unregister of the kicked connection must not evict the
	// replacement's presence entry.
	m.Unregister(first)

	time.Sleep(20 * time.Millisecond)
	if !m.IsSpokeOnline("user-a") {
		t.Fatal("stale unregister removed the replacement's presence entry")
	}

	m.Unregister(second)
	waitFor(t, func() bool { return !m.IsSpokeOnline("user-a") })
}

func TestBroadcastRoutesByRoom(t *testing.T) {
	m, p := newTestManager(t)

	hub := newTestClient(m, p, "hub-1", identity.RoleHub)
	spokeA := newTestClient(m, p, "user-a", identity.RoleSpoke)
	spokeB := newTestClient(m, p, "user-b", identity.RoleSpoke)
	m.Register(hub)
	m.Register(spokeA)
	m.Register(spokeB)
	expectEvent(t, hub, EventInitialOnlineUsers)
	waitFor(t, func() bool { return m.IsSpokeOnline("user-a") && m.IsSpokeOnline("user-b") })

	data, err := EncodeEvent(EventTypingStatus, TypingStatusPayload{UserID: "hub-1", IsTyping: true, Role: identity.RoleHub})
	if err != nil {
		t.Fatal(err)
	}
	m.Broadcast(SpokeRoom("user-a"), data)

	expectEvent(t, spokeA, EventTypingStatus)

	select {
	case got := <-spokeB.send:
		t.Fatalf("spoke-room broadcast leaked to another spoke: %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOnlineSpokesSnapshot(t *testing.T) {
	m, p := newTestManager(t)

	m.Register(newTestClient(m, p, "user-a", identity.RoleSpoke))
	m.Register(newTestClient(m, p, "user-b", identity.RoleSpoke))
	waitFor(t, func() bool { return len(m.OnlineSpokes()) == 2 })

	online := map[string]bool{}
	for _, id := range m.OnlineSpokes() {
		online[id] = true
	}
	if !online["user-a"] || !online["user-b"] {
		t.Fatalf("unexpected presence snapshot: %v", online)
	}
}
