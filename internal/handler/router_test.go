package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hubchat/internal/app/chat"
	"hubchat/internal/app/identity"
	"hubchat/internal/app/store"
	"hubchat/internal/configs"
	"hubchat/internal/pkg/auth/jwt"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/resp"
)

const testSecret = "router-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment: "development",
		Port:        8080,
		JWTSecret:   testSecret,
	}

	manager := chat.NewManager()
	t.Cleanup(manager.Shutdown)

	st := store.NewMemory()
	deps := &AppDeps{
		Manager:  manager,
		Pipeline: chat.NewPipeline(st, manager),
		Store:    st,
		Verifier: jwt.NewVerifier(testSecret),
		Config:   cfg,
	}

	srv := httptest.NewServer(Router(deps))
	t.Cleanup(srv.Close)
	return srv
}

func mintToken(t *testing.T, subjectID string, role identity.Role) string {
	t.Helper()
	token, err := jwt.GenerateToken(identity.Identity{
		SubjectID:   subjectID,
		Role:        role,
		DisplayName: subjectID,
	}, testSecret, jwt.IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one envelope off the connection, failing on timeout.
func readFrame(t *testing.T, conn *websocket.Conn) chat.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame chat.Envelope
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("invalid frame %q: %v", data, err)
	}
	return frame
}

// awaitFrame reads frames until one of the wanted event type arrives.
func awaitFrame(t *testing.T, conn *websocket.Conn, want chat.EventType) chat.Envelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		if frame.Event == want {
			return frame
		}
	}
	t.Fatalf("no %s event within 10 frames", want)
	return chat.Envelope{}
}

func writeFrame(t *testing.T, conn *websocket.Conn, event chat.EventType, payload any, tempID string) {
	t.Helper()
	data, err := chat.EncodeReply(event, payload, tempID)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
}

func TestGetMessagesRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/chat/messages")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestDevTokenEndpointMintsUsableToken(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(DevTokenInput{SubjectID: "user-a", Role: "SPOKE", DisplayName: "User A"})
	res, err := http.Post(srv.URL+"/api/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var envelope resp.JSONResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected response data: %+v", envelope.Data)
	}
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("no token in response")
	}

	// The minted token authorizes the history endpoint.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/chat/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("history with minted token: status = %d, want 200", res2.StatusCode)
	}
}

func TestDevTokenEndpointRejectsBadRole(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(DevTokenInput{SubjectID: "user-a", Role: "ADMIN"})
	res, err := http.Post(srv.URL+"/api/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)

	_, res, err := websocket.DefaultDialer.Dial(wsURL(srv, "not-a-token"), nil)
	if err == nil {
		t.Fatal("expected handshake failure for invalid token")
	}
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", res)
	}
}

func TestWebSocketMessageFlow(t *testing.T) {
	srv := newTestServer(t)

	hubConn := dialWS(t, srv, mintToken(t, "hub-1", identity.RoleHub))
	awaitFrame(t, hubConn, chat.EventInitialOnlineUsers)

	spokeConn := dialWS(t, srv, mintToken(t, "user-a", identity.RoleSpoke))

	// Hub observes the spoke coming online.
	statusFrame := awaitFrame(t, hubConn, chat.EventUserStatus)
	var status chat.UserStatusPayload
	if err := json.Unmarshal(statusFrame.Payload, &status); err != nil {
		t.Fatal(err)
	}
	if status.UserID != "user-a" || status.Status != chat.PresenceOnline {
		t.Fatalf("unexpected user_status: %+v", status)
	}

	// Spoke sends a message; the hub being online makes it DELIVERED.
	writeFrame(t, spokeConn, chat.EventSendMessage, chat.SendMessagePayload{Content: "hello"}, "temp-1")

	ack := awaitFrame(t, spokeConn, chat.EventMessageAck)
	if ack.TempID != "temp-1" {
		t.Fatalf("ack tempId = %q, want temp-1", ack.TempID)
	}
	var acked store.Message
	if err := json.Unmarshal(ack.Payload, &acked); err != nil {
		t.Fatal(err)
	}
	if acked.Status != store.StatusDelivered || acked.Content != "hello" {
		t.Fatalf("unexpected ack payload: %+v", acked)
	}

	received := awaitFrame(t, hubConn, chat.EventMessageReceived)
	var event chat.MessageEvent
	if err := json.Unmarshal(received.Payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.ConversationUserID != "user-a" || event.SenderRole != identity.RoleSpoke {
		t.Fatalf("unexpected message_received payload: %+v", event)
	}

	// Hub marks the conversation read; the spoke room gets the receipt.
	writeFrame(t, hubConn, chat.EventMarkAsRead, chat.MarkAsReadPayload{TargetUserID: "user-a"}, "")

	readFrameEvt := awaitFrame(t, spokeConn, chat.EventMessageRead)
	var receipt chat.MessageReadPayload
	if err := json.Unmarshal(readFrameEvt.Payload, &receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.ReadBy != "hub-1" || receipt.ConversationID != event.ConversationID {
		t.Fatalf("unexpected message_read payload: %+v", receipt)
	}
}

func TestWebSocketEmptyMessageGetsErrorReply(t *testing.T) {
	srv := newTestServer(t)

	spokeConn := dialWS(t, srv, mintToken(t, "user-a", identity.RoleSpoke))

	writeFrame(t, spokeConn, chat.EventSendMessage, chat.SendMessagePayload{Content: ""}, "temp-9")

	frame := awaitFrame(t, spokeConn, chat.EventError)
	if frame.TempID != "temp-9" {
		t.Fatalf("error tempId = %q, want temp-9", frame.TempID)
	}
	var payload chat.ErrorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != errs.ErrMessageEmpty {
		t.Fatalf("error code = %d, want %d", payload.Code, errs.ErrMessageEmpty)
	}
}

func TestWebSocketSecondConnectionKicksFirst(t *testing.T) {
	srv := newTestServer(t)

	token := mintToken(t, "user-a", identity.RoleSpoke)
	first := dialWS(t, srv, token)
	_ = dialWS(t, srv, token)

	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error on replaced connection, got %v", err)
	}
	if closeErr.Code != chat.WsCloseCodeSessionReplaced {
		t.Fatalf("close code = %d, want %d", closeErr.Code, chat.WsCloseCodeSessionReplaced)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	spokeConn := dialWS(t, srv, mintToken(t, "user-a", identity.RoleSpoke))
	writeFrame(t, spokeConn, chat.EventSendMessage, chat.SendMessagePayload{Content: "first"}, "t1")
	awaitFrame(t, spokeConn, chat.EventMessageAck)

	// A hub caller fetches the spoke user's conversation by target.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/chat/messages?userId=user-a", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "hub-1", identity.RoleHub))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var envelope struct {
		Code int             `json:"code"`
		Data []store.Message `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].Content != "first" {
		t.Fatalf("unexpected history: %+v", envelope.Data)
	}
}

func TestHistoryEndpointRejectsBadSince(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/chat/messages?since=yesterday", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user-a", identity.RoleSpoke))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	srv := newTestServer(t)

	// Burst allows ConnectBurst attempts; the next one is refused before
	// verification even runs.
	var lastStatus int
	for i := 0; i < ConnectBurst+1; i++ {
		res, err := http.Get(fmt.Sprintf("%s/ws", srv.URL))
		if err != nil {
			t.Fatal(err)
		}
		lastStatus = res.StatusCode
		res.Body.Close()
	}

	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", lastStatus)
	}
}
