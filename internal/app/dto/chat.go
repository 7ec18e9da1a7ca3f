package dto

import (
	"time"

	domainchat "kisaanconnect/internal/domain/chat"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainuser "kisaanconnect/internal/domain/user"
)

// Participant is the public card of a chat member.
type Participant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
}

// CropSummary is the listing a conversation is about.
type CropSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Unit     string  `json:"unit,omitempty"`
	ImageURL string  `json:"imageUrl"`
}

type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsOwn     bool      `json:"isOwn"`
}

// Conversation is one row of the chat list.
type Conversation struct {
	ChatID      string       `json:"chatId"`
	Participant *Participant `json:"participant"`
	Crop        *CropSummary `json:"crop"`
	LastMessage *LastMessage `json:"lastMessage"`
	UnreadCount int          `json:"unreadCount"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// StartedChat is returned by the start endpoint.
type StartedChat struct {
	ChatID      string       `json:"chatId"`
	Participant *Participant `json:"participant"`
	Crop        *CropSummary `json:"crop"`
}

// ChatMessage is the wire form of a message for both HTTP and websocket clients.
type ChatMessage struct {
	ID        string      `json:"_id"`
	ChatID    string      `json:"chatId"`
	Content   string      `json:"content"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Sender    Participant `json:"sender"`
	IsOwn     bool        `json:"isOwn"`
	IsRead    bool        `json:"isRead"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func MapParticipant(u *domainuser.User, fallbackID string) *Participant {
	if u == nil {
		return &Participant{ID: fallbackID, Name: "Unknown user", ProfilePicture: domainuser.DefaultProfilePicture}
	}
	return &Participant{ID: string(u.ID), Name: u.Name, ProfilePicture: u.ProfilePicture}
}

func MapCropSummary(l *domainlistings.Listing) *CropSummary {
	if l == nil {
		return nil
	}
	return &CropSummary{
		ID:       string(l.ID),
		Name:     l.Name,
		Price:    l.Price,
		Unit:     l.Unit,
		ImageURL: l.ImageURL,
	}
}

// MapConversation renders conv from the viewer's side.
func MapConversation(conv *domainchat.Conversation, peer *domainuser.User, listing *domainlistings.Listing, viewer domainchat.UserID) Conversation {
	out := Conversation{
		ChatID:      string(conv.ID),
		Participant: MapParticipant(peer, string(conv.Other(viewer))),
		Crop:        MapCropSummary(listing),
		UnreadCount: conv.UnreadFor(viewer),
		UpdatedAt:   conv.LastActivity(),
	}
	if conv.LastMessage != nil {
		out.LastMessage = &LastMessage{
			Content:   conv.LastMessage.Content,
			Timestamp: conv.LastMessage.At,
			IsOwn:     conv.LastMessage.SenderID == viewer,
		}
	}
	return out
}

// MapChatMessage renders msg for viewer. isRead means read by the viewer for
// incoming messages and read by the peer for the viewer's own messages.
// An empty viewer renders a broadcast copy.
func MapChatMessage(msg *domainchat.Message, sender *domainuser.User, viewer domainchat.UserID) ChatMessage {
	own := viewer != "" && msg.SenderID == viewer
	read := false
	switch {
	case viewer == "":
	case own:
		read = readByOther(msg, viewer)
	default:
		read = msg.ReadByUser(viewer)
	}
	return ChatMessage{
		ID:        string(msg.ID),
		ChatID:    string(msg.ConversationID),
		Content:   msg.Content,
		Type:      string(msg.Type),
		Timestamp: msg.CreatedAt,
		Sender:    *MapParticipant(sender, string(msg.SenderID)),
		IsOwn:     own,
		IsRead:    read,
	}
}

func readByOther(msg *domainchat.Message, viewer domainchat.UserID) bool {
	for _, r := range msg.ReadBy {
		if r.UserID != viewer {
			return true
		}
	}
	return false
}
