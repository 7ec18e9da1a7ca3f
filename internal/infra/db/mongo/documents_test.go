package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	domainchat "kisaanconnect/internal/domain/chat"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainsupport "kisaanconnect/internal/domain/support"
)

func TestSearchFilterEscapesUserInput(t *testing.T) {
	filter := searchFilter(domainlistings.SearchParams{Text: "rice (basmati)", MinPrice: 10, MaxPrice: 5}.Normalized())
	and, ok := filter["$and"].([]bson.M)
	if !ok || len(and) != 1 {
		t.Fatalf("expected one $and clause, got %v", filter)
	}
	or := and[0]["$or"].([]bson.M)
	re := contains(`rice \(basmati\)`)
	if or[0]["name"] != re {
		t.Fatalf("expected escaped pattern %v, got %v", re, or[0]["name"])
	}
	price := filter["price"].(bson.M)
	if _, ok := price["$lte"]; ok {
		t.Fatalf("expected max below min to be dropped, got %v", price)
	}
}

func TestSearchSortDefaultsToNewestFirst(t *testing.T) {
	sort := searchSort(domainlistings.SearchParams{}.Normalized())
	if sort[0].Key != "created_at" || sort[0].Value != -1 {
		t.Fatalf("expected created_at desc, got %v", sort)
	}
	sort = searchSort(domainlistings.SearchParams{Sort: domainlistings.SortByName}.Normalized())
	if sort[0].Key != "name_lower" || sort[0].Value != 1 {
		t.Fatalf("expected name_lower asc, got %v", sort)
	}
}

func TestConversationDocumentKeepsUnreadPerParticipant(t *testing.T) {
	conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{ID: "c1", A: "u2", B: "u1", Now: time.Unix(100, 0)})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	conv.Unread["u2"] = 3
	conv.LastMessage = &domainchat.LastMessage{Content: "hi", SenderID: "u1", At: time.Unix(200, 0)}

	back := newConversationDocument(conv).toAggregate()
	if back.PairKey != "u1:u2" || back.Participants[0] != "u1" {
		t.Fatalf("unexpected pair %v %v", back.PairKey, back.Participants)
	}
	if back.UnreadFor("u2") != 3 || back.UnreadFor("u1") != 0 {
		t.Fatalf("unexpected unread %v", back.Unread)
	}
	if back.LastMessage == nil || !back.LastMessage.At.Equal(time.Unix(200, 0)) {
		t.Fatalf("expected last message time to survive, got %+v", back.LastMessage)
	}
}

func TestTicketDocumentKeepsResponseWindow(t *testing.T) {
	ticket := &domainsupport.Ticket{ID: "t1", Number: "KC123456001", ExpectedResponse: 8 * time.Hour}
	back := newTicketDocument(ticket).toAggregate()
	if back.ExpectedResponse != 8*time.Hour {
		t.Fatalf("expected 8h, got %v", back.ExpectedResponse)
	}
	if !back.LastResponseAt.IsZero() {
		t.Fatalf("expected zero last response, got %v", back.LastResponseAt)
	}
}
