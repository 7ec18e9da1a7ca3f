package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"kisaanconnect/internal/app/dto"
	chatservice "kisaanconnect/internal/app/services/chat"
	domainchat "kisaanconnect/internal/domain/chat"
)

const maxFrameBytes = 64 << 10

// ChatService is the part of the chat service the gateway drives.
type ChatService interface {
	Conversation(ctx context.Context, id domainchat.ConversationID, caller domainchat.UserID) (*domainchat.Conversation, error)
	Send(ctx context.Context, params chatservice.SendParams) (*chatservice.SendResult, error)
	MarkRead(ctx context.Context, id domainchat.ConversationID, reader domainchat.UserID) (int, error)
}

// Gateway serves the websocket protocol and fans chat events out to rooms.
type Gateway struct {
	Chat           ChatService
	Registry       *Registry
	Logger         *slog.Logger
	OriginPatterns []string

	wg sync.WaitGroup
}

// Serve upgrades the request and blocks until the client goes away.
// sessionUser must come from an authenticated session.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, sessionUser string) error {
	opts := &websocket.AcceptOptions{OriginPatterns: g.OriginPatterns}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		return err
	}
	ws.SetReadLimit(maxFrameBytes)

	conn := newConn(sessionUser, ws, g.Logger)
	g.Registry.Add(conn)
	g.wg.Add(1)
	defer g.wg.Done()
	defer g.disconnect(conn)
	conn.start()
	if g.Logger != nil {
		g.Logger.Debug("websocket connected", "conn_id", conn.ID, "session_user", sessionUser)
	}

	for {
		_, data, err := ws.Read(conn.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) && g.Logger != nil {
				g.Logger.Debug("websocket read ended", "conn_id", conn.ID, "error", err)
			}
			return nil
		}
		g.Handle(r.Context(), conn, data)
	}
}

func (g *Gateway) disconnect(c *Conn) {
	g.Registry.Remove(c)
	c.close(websocket.StatusNormalClosure, "bye")
	if g.Logger != nil {
		g.Logger.Debug("websocket disconnected", "conn_id", c.ID, "user_id", c.UserID())
	}
}

// Handle processes one raw frame from c. Application errors go back to c as
// error events and never close the connection.
func (g *Gateway) Handle(ctx context.Context, c *Conn, raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		c.Enqueue(errorEvent(CodeValidation, err.Error()))
		return
	}
	switch ev := ev.(type) {
	case JoinUser:
		g.joinUser(c, ev)
	case JoinChat:
		g.joinChat(ctx, c, ev)
	case LeaveChat:
		if g.requireIdentified(c) {
			g.Registry.Leave(c, ChatRoom(ev.ChatID))
		}
	case SendMessage:
		g.sendMessage(ctx, c, ev)
	case TypingStart:
		g.typing(c, ev.ChatID, ev.UserName, KindUserTyping)
	case TypingStop:
		g.typing(c, ev.ChatID, ev.UserName, KindUserStopTyping)
	case MarkMessagesRead:
		g.markRead(ctx, c, ev)
	}
}

func (g *Gateway) joinUser(c *Conn, ev JoinUser) {
	if ev.UserID != c.SessionUser {
		c.Enqueue(errorEvent(CodeForbidden, "cannot join as another user"))
		return
	}
	c.identify(ev.UserID)
	g.Registry.Join(c, UserRoom(ev.UserID))
}

func (g *Gateway) joinChat(ctx context.Context, c *Conn, ev JoinChat) {
	if !g.requireIdentified(c) {
		return
	}
	if _, err := g.Chat.Conversation(ctx, domainchat.ConversationID(ev.ChatID), domainchat.UserID(c.UserID())); err != nil {
		g.reportError(c, "join-chat", err)
		return
	}
	g.Registry.Join(c, ChatRoom(ev.ChatID))
}

func (g *Gateway) sendMessage(ctx context.Context, c *Conn, ev SendMessage) {
	if !g.requireIdentified(c) {
		return
	}
	res, err := g.Chat.Send(ctx, chatservice.SendParams{
		ConversationID: domainchat.ConversationID(ev.ChatID),
		SenderID:       domainchat.UserID(c.UserID()),
		Content:        ev.Content,
		Type:           ev.MessageType,
	})
	if err != nil {
		g.reportError(c, "send-message", err)
		return
	}
	g.PublishMessage(res)
}

func (g *Gateway) typing(c *Conn, chatID, userName, kind string) {
	if !g.requireIdentified(c) {
		return
	}
	room := ChatRoom(chatID)
	if !c.inRoom(room) {
		c.Enqueue(errorEvent(CodeForbidden, "join the chat first"))
		return
	}
	g.Registry.Broadcast(room, Outbound{Event: kind, Data: TypingNotice{
		ChatID:   chatID,
		UserID:   c.UserID(),
		UserName: userName,
	}}, c)
}

func (g *Gateway) markRead(ctx context.Context, c *Conn, ev MarkMessagesRead) {
	if !g.requireIdentified(c) {
		return
	}
	count, err := g.Chat.MarkRead(ctx, domainchat.ConversationID(ev.ChatID), domainchat.UserID(c.UserID()))
	if err != nil {
		g.reportError(c, "mark-messages-read", err)
		return
	}
	g.Registry.Broadcast(ChatRoom(ev.ChatID), Outbound{Event: KindMessagesRead, Data: ReadNotice{
		ChatID: ev.ChatID,
		UserID: c.UserID(),
		Count:  count,
	}}, c)
}

// PublishMessage fans a persisted message out to the chat room and notifies
// the recipient's personal room.
func (g *Gateway) PublishMessage(res *chatservice.SendResult) {
	if res == nil || res.Message == nil {
		return
	}
	msg := res.Message
	chatID := string(msg.ConversationID)
	g.Registry.Broadcast(ChatRoom(chatID), Outbound{
		Event: KindNewMessage,
		Data:  dto.MapChatMessage(msg, res.Sender, ""),
	}, nil)
	senderName := ""
	if res.Sender != nil {
		senderName = res.Sender.Name
	}
	g.Registry.Broadcast(UserRoom(string(res.RecipientID)), Outbound{
		Event: KindChatNotification,
		Data: ChatNotification{
			ChatID:     chatID,
			SenderID:   string(msg.SenderID),
			SenderName: senderName,
			Content:    msg.Content,
			Timestamp:  msg.CreatedAt,
		},
	}, nil)
}

// PublishRead tells the chat room that reader has caught up.
func (g *Gateway) PublishRead(chatID, reader string, count int) {
	g.Registry.Broadcast(ChatRoom(chatID), Outbound{Event: KindMessagesRead, Data: ReadNotice{
		ChatID: chatID,
		UserID: reader,
		Count:  count,
	}}, nil)
}

// Shutdown closes every connection and waits for their read loops.
func (g *Gateway) Shutdown(ctx context.Context) error {
	for _, c := range g.Registry.snapshot() {
		go c.close(websocket.StatusGoingAway, "server shutting down")
	}
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) requireIdentified(c *Conn) bool {
	if c.UserID() == "" {
		c.Enqueue(errorEvent(CodeUnauthorized, "send join-user first"))
		return false
	}
	return true
}

func (g *Gateway) reportError(c *Conn, event string, err error) {
	code, message := classify(err)
	if code == CodeInternal && g.Logger != nil {
		g.Logger.Error("websocket event failed", "event", event, "conn_id", c.ID, "user_id", c.UserID(), "error", err)
	}
	c.Enqueue(errorEvent(code, message))
}

func classify(err error) (string, string) {
	switch {
	case domainchat.IsValidationError(err):
		return CodeValidation, err.Error()
	case errors.Is(err, domainchat.ErrNotParticipant):
		return CodeForbidden, "access denied"
	case errors.Is(err, domainchat.ErrConversationNotFound):
		return CodeNotFound, "chat not found"
	default:
		return CodeInternal, "failed to process event"
	}
}
