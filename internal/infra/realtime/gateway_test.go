package realtime

import (
	"context"
	"errors"
	"testing"

	chatservice "kisaanconnect/internal/app/services/chat"
	domainchat "kisaanconnect/internal/domain/chat"
	domainuser "kisaanconnect/internal/domain/user"
	"kisaanconnect/internal/infra/storage/memory"
)

func newTestGateway(t *testing.T) (*Gateway, *chatservice.Service) {
	t.Helper()
	users := memory.NewUserRepository()
	for i, id := range []string{"u1", "u2", "u3"} {
		u, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(id),
			Phone:        "987654321" + string(rune('0'+i)),
			Name:         "User " + id,
			PasswordHash: "hash",
		})
		if err != nil {
			t.Fatalf("new user: %v", err)
		}
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	svc := &chatservice.Service{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Users:         users,
	}
	return &Gateway{Chat: svc, Registry: NewRegistry()}, svc
}

func connect(g *Gateway, user string) *Conn {
	c := newConn(user, nil, nil)
	g.Registry.Add(c)
	return c
}

func drain(c *Conn) []Outbound {
	var out []Outbound
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func expectError(t *testing.T, c *Conn, code string) {
	t.Helper()
	events := drain(c)
	if len(events) != 1 || events[0].Event != KindError {
		t.Fatalf("expected one error event, got %+v", events)
	}
	payload, ok := events[0].Data.(ErrorPayload)
	if !ok || payload.Code != code {
		t.Fatalf("expected error code %s, got %+v", code, events[0].Data)
	}
}

func TestDecodeTypedEvents(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"send-message","data":{"chatId":"c1","content":"Hello","messageType":"text"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg, ok := ev.(SendMessage)
	if !ok || msg.ChatID != "c1" || msg.Content != "Hello" {
		t.Fatalf("unexpected event %#v", ev)
	}

	ev, err = Decode([]byte(`{"event":"join-chat","data":"c9"}`))
	if err != nil {
		t.Fatalf("decode bare id: %v", err)
	}
	if join, ok := ev.(JoinChat); !ok || join.ChatID != "c9" {
		t.Fatalf("unexpected event %#v", ev)
	}

	if _, err := Decode([]byte(`{"event":"dance","data":{}}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := Decode([]byte(`{"event":"typing-start","data":{"userName":"x"}}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing chatId, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestUnknownEventYieldsValidationError(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "u1")
	g.Handle(context.Background(), c, []byte(`{"event":"explode"}`))
	expectError(t, c, CodeValidation)
}

func TestJoinUserMustMatchSession(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "u1")

	g.Handle(context.Background(), c, []byte(`{"event":"join-user","data":{"userId":"u2"}}`))
	expectError(t, c, CodeForbidden)
	if c.UserID() != "" {
		t.Fatalf("connection must stay anonymous")
	}

	g.Handle(context.Background(), c, []byte(`{"event":"join-user","data":{"userId":"u1"}}`))
	if c.UserID() != "u1" {
		t.Fatalf("expected identified u1, got %q", c.UserID())
	}
	if g.Registry.Members(UserRoom("u1")) != 1 {
		t.Fatalf("expected personal room membership")
	}
}

func TestSendBeforeJoinUserIsUnauthorized(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "u1")
	g.Handle(context.Background(), c, []byte(`{"event":"send-message","data":{"chatId":"c1","content":"hi"}}`))
	expectError(t, c, CodeUnauthorized)
}

func TestNonParticipantCannotJoinOrSend(t *testing.T) {
	g, svc := newTestGateway(t)
	ctx := context.Background()
	conv, _, err := svc.CreateOrGet(ctx, "u1", "u2", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := connect(g, "u3")
	g.Handle(ctx, c, []byte(`{"event":"join-user","data":{"userId":"u3"}}`))

	g.Handle(ctx, c, []byte(`{"event":"join-chat","data":{"chatId":"`+string(conv.ID)+`"}}`))
	expectError(t, c, CodeForbidden)

	g.Handle(ctx, c, []byte(`{"event":"send-message","data":{"chatId":"`+string(conv.ID)+`","content":"hi"}}`))
	expectError(t, c, CodeForbidden)

	g.Handle(ctx, c, []byte(`{"event":"join-chat","data":{"chatId":"nope"}}`))
	expectError(t, c, CodeNotFound)
}

func TestSendMessageFansOutToRoomAndRecipient(t *testing.T) {
	g, svc := newTestGateway(t)
	ctx := context.Background()
	conv, _, err := svc.CreateOrGet(ctx, "u1", "u2", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	chatID := string(conv.ID)

	sender := connect(g, "u1")
	receiver := connect(g, "u2")
	for _, c := range []*Conn{sender, receiver} {
		g.Handle(ctx, c, []byte(`{"event":"join-user","data":{"userId":"`+c.SessionUser+`"}}`))
		g.Handle(ctx, c, []byte(`{"event":"join-chat","data":{"chatId":"`+chatID+`"}}`))
	}

	g.Handle(ctx, sender, []byte(`{"event":"send-message","data":{"chatId":"`+chatID+`","content":"  Hello  "}}`))

	senderEvents := drain(sender)
	if len(senderEvents) != 1 || senderEvents[0].Event != KindNewMessage {
		t.Fatalf("sender should get new-message only, got %+v", senderEvents)
	}
	receiverEvents := drain(receiver)
	if len(receiverEvents) != 2 {
		t.Fatalf("receiver should get new-message and chat-notification, got %+v", receiverEvents)
	}
	kinds := map[string]bool{}
	for _, ev := range receiverEvents {
		kinds[ev.Event] = true
	}
	if !kinds[KindNewMessage] || !kinds[KindChatNotification] {
		t.Fatalf("unexpected receiver events %+v", receiverEvents)
	}

	stored, err := svc.Conversation(ctx, conv.ID, "u2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.UnreadFor("u2") != 1 || stored.LastMessage == nil || stored.LastMessage.Content != "Hello" {
		t.Fatalf("unexpected conversation state %+v", stored)
	}

	g.Handle(ctx, sender, []byte(`{"event":"send-message","data":{"chatId":"`+chatID+`","content":"   "}}`))
	expectError(t, sender, CodeValidation)
	if drained := drain(receiver); len(drained) != 0 {
		t.Fatalf("failed send must not broadcast, got %+v", drained)
	}
}

func TestTypingAndReadSkipSender(t *testing.T) {
	g, svc := newTestGateway(t)
	ctx := context.Background()
	conv, _, err := svc.CreateOrGet(ctx, "u1", "u2", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	chatID := string(conv.ID)
	if _, err := svc.Send(ctx, chatservice.SendParams{ConversationID: conv.ID, SenderID: "u1", Content: "Hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	a := connect(g, "u1")
	b := connect(g, "u2")
	for _, c := range []*Conn{a, b} {
		g.Handle(ctx, c, []byte(`{"event":"join-user","data":{"userId":"`+c.SessionUser+`"}}`))
		g.Handle(ctx, c, []byte(`{"event":"join-chat","data":{"chatId":"`+chatID+`"}}`))
	}

	g.Handle(ctx, a, []byte(`{"event":"typing-start","data":{"chatId":"`+chatID+`","userName":"User u1"}}`))
	if got := drain(a); len(got) != 0 {
		t.Fatalf("typist must not receive own typing event, got %+v", got)
	}
	got := drain(b)
	if len(got) != 1 || got[0].Event != KindUserTyping {
		t.Fatalf("expected user-typing, got %+v", got)
	}

	g.Handle(ctx, b, []byte(`{"event":"mark-messages-read","data":{"chatId":"`+chatID+`"}}`))
	if got := drain(b); len(got) != 0 {
		t.Fatalf("reader must not receive own read event, got %+v", got)
	}
	got = drain(a)
	if len(got) != 1 || got[0].Event != KindMessagesRead {
		t.Fatalf("expected messages-read, got %+v", got)
	}
	if notice := got[0].Data.(ReadNotice); notice.Count != 1 || notice.UserID != "u2" {
		t.Fatalf("unexpected read notice %+v", notice)
	}
	stored, err := svc.Conversation(ctx, domainchat.ConversationID(chatID), "u2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.UnreadFor("u2") != 0 {
		t.Fatalf("expected unread reset")
	}
}

func TestRemoveLeavesAllRooms(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "u1")
	g.Registry.Join(c, UserRoom("u1"))
	g.Registry.Join(c, ChatRoom("c1"))

	g.Registry.Remove(c)
	if g.Registry.Members(UserRoom("u1")) != 0 || g.Registry.Members(ChatRoom("c1")) != 0 {
		t.Fatalf("expected connection removed from rooms")
	}
	if g.Registry.Count() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestTypingRequiresRoomMembership(t *testing.T) {
	g, svc := newTestGateway(t)
	ctx := context.Background()
	conv, _, err := svc.CreateOrGet(ctx, "u1", "u2", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	chatID := string(conv.ID)
	member := connect(g, "u2")
	g.Handle(ctx, member, []byte(`{"event":"join-user","data":{"userId":"u2"}}`))
	g.Handle(ctx, member, []byte(`{"event":"join-chat","data":{"chatId":"`+chatID+`"}}`))

	outsider := connect(g, "u3")
	g.Handle(ctx, outsider, []byte(`{"event":"join-user","data":{"userId":"u3"}}`))
	g.Handle(ctx, outsider, []byte(`{"event":"typing-start","data":{"chatId":"`+chatID+`","userName":"u3"}}`))
	expectError(t, outsider, CodeForbidden)
	if got := drain(member); len(got) != 0 {
		t.Fatalf("typing from a non-member must not reach the room, got %+v", got)
	}
}
