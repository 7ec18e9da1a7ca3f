package chat

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPairKeyIgnoresOrder(t *testing.T) {
	ab, err := PairKey("farmer", "buyer")
	if err != nil {
		t.Fatalf("pair key: %v", err)
	}
	ba, err := PairKey("buyer", " farmer ")
	if err != nil {
		t.Fatalf("pair key: %v", err)
	}
	if ab != ba || ab != "buyer:farmer" {
		t.Fatalf("expected buyer:farmer for both orderings, got %q and %q", ab, ba)
	}
	if _, err := PairKey("farmer", "farmer"); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
	if _, err := PairKey("", "buyer"); !errors.Is(err, ErrParticipantRequired) {
		t.Fatalf("expected ErrParticipantRequired, got %v", err)
	}
}

func TestNewConversationStartsWithZeroUnreadAndRecordsEvent(t *testing.T) {
	now := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	conv, err := NewConversation(CreateConversationParams{ID: "c1", A: "u2", B: "u1", ListingID: " crop-1 ", Now: now})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if conv.Participants != [2]UserID{"u1", "u2"} {
		t.Fatalf("expected sorted participants, got %v", conv.Participants)
	}
	if conv.UnreadFor("u1") != 0 || conv.UnreadFor("u2") != 0 || conv.ListingID != "crop-1" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if conv.Other("u1") != "u2" || !conv.HasParticipant("u2") || conv.HasParticipant("u3") {
		t.Fatalf("participant helpers disagree with %v", conv.Participants)
	}
	evs := conv.Drain()
	if len(evs) != 1 || evs[0].EventName() != "chat.conversation_started" {
		t.Fatalf("expected conversation_started event, got %v", evs)
	}
}

func TestSortByActivityPrefersLatestMessage(t *testing.T) {
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	quiet := &Conversation{ID: "quiet", UpdatedAt: base.Add(time.Hour)}
	busy := &Conversation{ID: "busy", UpdatedAt: base, LastMessage: &LastMessage{At: base.Add(2 * time.Hour)}}
	items := []*Conversation{quiet, busy}
	SortByActivity(items)
	if items[0].ID != "busy" {
		t.Fatalf("expected busy first, got %s", items[0].ID)
	}
}

func TestNewMessageValidatesContent(t *testing.T) {
	params := CreateMessageParams{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "  "}
	if _, err := NewMessage(params); !errors.Is(err, ErrEmptyContent) || !IsValidationError(err) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	params.Content = strings.Repeat("a", MaxContentLength+1)
	if _, err := NewMessage(params); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	params.Content = " Fresh onions available "
	params.Type = "voice"
	if _, err := NewMessage(params); !errors.Is(err, ErrInvalidMessageType) {
		t.Fatalf("expected ErrInvalidMessageType, got %v", err)
	}
	params.Type = ""
	msg, err := NewMessage(params)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if msg.Content != "Fresh onions available" || msg.Type != MessageText {
		t.Fatalf("expected trimmed text message, got %+v", msg)
	}
}

func TestMarkReadSkipsSenderAndDuplicates(t *testing.T) {
	msg := &Message{ID: "m1", SenderID: "u1"}
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	if msg.MarkRead("u1", at) {
		t.Fatalf("expected sender receipt to be skipped")
	}
	if !msg.MarkRead("u2", at) {
		t.Fatalf("expected first receipt to be added")
	}
	if msg.MarkRead("u2", at.Add(time.Minute)) {
		t.Fatalf("expected duplicate receipt to be skipped")
	}
	if len(msg.ReadBy) != 1 || !msg.ReadByUser("u2") {
		t.Fatalf("expected a single receipt for u2, got %+v", msg.ReadBy)
	}
}

func TestPageNormalization(t *testing.T) {
	if p := (Page{}).Normalized(); p.Number != 1 || p.Limit != DefaultPageLimit {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p := (Page{Number: 3, Limit: 500}).Normalized(); p.Limit != MaxPageLimit {
		t.Fatalf("expected limit capped at %d, got %d", MaxPageLimit, p.Limit)
	}
	if off := (Page{Number: 3, Limit: 20}).Offset(); off != 40 {
		t.Fatalf("expected offset 40, got %d", off)
	}
}
