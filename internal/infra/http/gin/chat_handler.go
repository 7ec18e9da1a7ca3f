package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/dto"
	chatsvc "kisaanconnect/internal/app/services/chat"
	domainchat "kisaanconnect/internal/domain/chat"
)

type ChatHTTP interface {
	List(c *gin.Context)
	Start(c *gin.Context)
	History(c *gin.Context)
	Send(c *gin.Context)
	Socket(c *gin.Context)
}

// ChatService is the slice of the chat service the HTTP layer calls.
type ChatService interface {
	ConversationsFor(ctx context.Context, user domainchat.UserID) ([]chatsvc.ConversationView, error)
	Start(ctx context.Context, params chatsvc.StartParams) (*chatsvc.ConversationView, error)
	History(ctx context.Context, params chatsvc.HistoryParams) (*chatsvc.History, error)
	Send(ctx context.Context, params chatsvc.SendParams) (*chatsvc.SendResult, error)
}

// Realtime fans HTTP-originated chat events out to websocket clients and
// serves the websocket endpoint itself.
type Realtime interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionUser string) error
	PublishMessage(res *chatsvc.SendResult)
	PublishRead(chatID, reader string, count int)
}

type ChatHandler struct {
	Chat     ChatService
	Realtime Realtime
	Logger   *slog.Logger
}

type startChatRequest struct {
	ParticipantID string `json:"participantId"`
	CropID        string `json:"cropId"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (h ChatHandler) List(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	viewer := domainchat.UserID(p.ID)
	views, err := h.Chat.ConversationsFor(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	chats := make([]dto.Conversation, 0, len(views))
	for _, v := range views {
		chats = append(chats, dto.MapConversation(v.Conversation, v.Participant, v.Listing, viewer))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chats": chats})
}

func (h ChatHandler) Start(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "participantId is required")
		return
	}
	view, err := h.Chat.Start(c.Request.Context(), chatsvc.StartParams{
		CallerID:      domainchat.UserID(p.ID),
		ParticipantID: domainchat.UserID(req.ParticipantID),
		ListingID:     strings.TrimSpace(req.CropID),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	conv := view.Conversation
	c.JSON(http.StatusOK, gin.H{"success": true, "chat": dto.StartedChat{
		ChatID:      string(conv.ID),
		Participant: dto.MapParticipant(view.Participant, string(conv.Other(domainchat.UserID(p.ID)))),
		Crop:        dto.MapCropSummary(view.Listing),
	}})
}

// History returns a page of messages as they were before this read, then
// tells the room the caller has caught up.
func (h ChatHandler) History(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	reader := domainchat.UserID(p.ID)
	hist, err := h.Chat.History(c.Request.Context(), chatsvc.HistoryParams{
		ConversationID: domainchat.ConversationID(c.Param("chatId")),
		ReaderID:       reader,
		Page: domainchat.Page{
			Number: queryInt(c, "page", 1),
			Limit:  queryInt(c, "limit", domainchat.DefaultPageLimit),
		},
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	messages := make([]dto.ChatMessage, 0, len(hist.Messages))
	for _, msg := range hist.Messages {
		messages = append(messages, dto.MapChatMessage(msg, hist.Senders[msg.SenderID], reader))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"messages":   messages,
		"pagination": dto.Pagination{Page: hist.Page.Number, Limit: hist.Page.Limit},
	})
	if hist.MarkedRead > 0 && h.Realtime != nil {
		h.Realtime.PublishRead(string(hist.Conversation.ID), p.ID, hist.MarkedRead)
	}
}

func (h ChatHandler) Send(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}
	sender := domainchat.UserID(p.ID)
	res, err := h.Chat.Send(c.Request.Context(), chatsvc.SendParams{
		ConversationID: domainchat.ConversationID(c.Param("chatId")),
		SenderID:       sender,
		Content:        req.Content,
		Type:           req.Type,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if h.Realtime != nil {
		h.Realtime.PublishMessage(res)
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": dto.MapChatMessage(res.Message, res.Sender, sender),
	})
}

// Socket upgrades an authenticated request to the realtime protocol.
func (h ChatHandler) Socket(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Realtime == nil {
		abortWith(c, http.StatusServiceUnavailable, codeUnavailable, "realtime is disabled")
		return
	}
	if err := h.Realtime.Serve(c.Writer, c.Request, p.ID); err != nil && h.Logger != nil {
		h.Logger.Debug("websocket upgrade failed", "user_id", p.ID, "error", err)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

var _ ChatHTTP = (*ChatHandler)(nil)
