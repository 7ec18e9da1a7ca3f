package chat

import "time"

type ConversationStartedEvent struct {
	ConversationID ConversationID `json:"conversation_id"`
	Participants   [2]UserID      `json:"participants"`
	ListingID      string         `json:"listing_id,omitempty"`
	At             time.Time      `json:"at"`
}

func (e ConversationStartedEvent) EventName() string     { return "chat.conversation_started" }
func (e ConversationStartedEvent) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationStartedEvent) OccurredAt() time.Time { return e.At }

type MessageSentEvent struct {
	ConversationID ConversationID `json:"conversation_id"`
	MessageID      MessageID      `json:"message_id"`
	SenderID       UserID         `json:"sender_id"`
	RecipientID    UserID         `json:"recipient_id"`
	Type           MessageType    `json:"type"`
	At             time.Time      `json:"at"`
}

func (e MessageSentEvent) EventName() string     { return "chat.message_sent" }
func (e MessageSentEvent) AggregateID() string   { return string(e.ConversationID) }
func (e MessageSentEvent) OccurredAt() time.Time { return e.At }
