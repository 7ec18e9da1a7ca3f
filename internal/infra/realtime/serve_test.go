package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"kisaanconnect/internal/app/dto"
)

func startServer(t *testing.T, g *Gateway) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Serve(w, r, r.URL.Query().Get("user")); err != nil {
			t.Errorf("serve: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, url+"?user="+user, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func emit(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func receive(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeRoundTripAndDisconnect(t *testing.T) {
	g, svc := newTestGateway(t)
	conv, _, err := svc.CreateOrGet(context.Background(), "u1", "u2", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	chatID := string(conv.ID)
	url := startServer(t, g)

	sender := dial(t, url, "u1")
	receiver := dial(t, url, "u2")
	for user, ws := range map[string]*websocket.Conn{"u1": sender, "u2": receiver} {
		emit(t, ws, KindJoinUser, map[string]string{"userId": user})
		emit(t, ws, KindJoinChat, map[string]string{"chatId": chatID})
	}
	waitFor(t, "both sockets in the chat room", func() bool {
		return g.Registry.Members(ChatRoom(chatID)) == 2
	})

	emit(t, sender, KindSendMessage, map[string]string{"chatId": chatID, "content": "Tomatoes at 20/kg"})

	frame := receive(t, receiver)
	if frame.Event != KindNewMessage {
		t.Fatalf("expected new-message, got %s", frame.Event)
	}
	var msg dto.ChatMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Content != "Tomatoes at 20/kg" || msg.ChatID != chatID || msg.Sender.ID != "u1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if frame := receive(t, receiver); frame.Event != KindChatNotification {
		t.Fatalf("expected chat-notification, got %s", frame.Event)
	}
	if frame := receive(t, sender); frame.Event != KindNewMessage {
		t.Fatalf("expected sender echo, got %s", frame.Event)
	}

	emit(t, sender, "dance", map[string]string{})
	if frame := receive(t, sender); frame.Event != KindError {
		t.Fatalf("expected error event, got %s", frame.Event)
	}

	if err := receiver.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("close receiver: %v", err)
	}
	waitFor(t, "receiver removal", func() bool { return g.Registry.Count() == 1 })
	if got := g.Registry.Members(ChatRoom(chatID)); got != 1 {
		t.Fatalf("expected 1 chat member after close, got %d", got)
	}
	if got := g.Registry.Members(UserRoom("u2")); got != 0 {
		t.Fatalf("expected personal room emptied, got %d", got)
	}
}

func TestShutdownClosesLiveConnections(t *testing.T) {
	g, _ := newTestGateway(t)
	url := startServer(t, g)
	ws := dial(t, url, "u1")
	emit(t, ws, KindJoinUser, map[string]string{"userId": "u1"})
	waitFor(t, "personal room join", func() bool { return g.Registry.Members(UserRoom("u1")) == 1 })

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		done <- g.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := ws.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Fatalf("expected going away close, got %v (%v)", status, err)
	}
	if err := <-done; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if g.Registry.Count() != 0 {
		t.Fatalf("expected empty registry after shutdown, got %d", g.Registry.Count())
	}
}
