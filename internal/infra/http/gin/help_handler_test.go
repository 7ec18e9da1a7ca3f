package ginserver

import (
	"net/http"
	"testing"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/dto"
)

type ticketCreatedResponse struct {
	Success          bool       `json:"success"`
	TicketNumber     string     `json:"ticketNumber"`
	ExpectedResponse string     `json:"expectedResponse"`
	Ticket           dto.Ticket `json:"ticket"`
}

type ticketListResponse struct {
	Tickets    []dto.Ticket `json:"tickets"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

func ticketPayload() gin.H {
	return gin.H{
		"name":     "Ravi Kumar",
		"email":    "ravi@example.com",
		"category": "listing",
		"priority": "high",
		"message":  "My onion listing is not visible to buyers",
	}
}

func TestCreateTicketReplaysWithIdempotencyKey(t *testing.T) {
	h := newHarness(t)

	first := h.request(t, http.MethodPost, "/api/help/tickets", "u1", ticketPayload(), "Idempotency-Key", "req-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", first.Code, first.Body.String())
	}
	second := h.request(t, http.MethodPost, "/api/help/tickets", "u1", ticketPayload(), "Idempotency-Key", "req-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replay 201, got %d %s", second.Code, second.Body.String())
	}
	a := decode[ticketCreatedResponse](t, first)
	b := decode[ticketCreatedResponse](t, second)
	if a.TicketNumber == "" || a.TicketNumber != b.TicketNumber {
		t.Fatalf("expected replayed ticket number, got %q and %q", a.TicketNumber, b.TicketNumber)
	}
	if a.ExpectedResponse != "8 hours" {
		t.Fatalf("expected high priority window, got %q", a.ExpectedResponse)
	}

	list := decode[ticketListResponse](t, h.request(t, http.MethodGet, "/api/help/tickets", "u1", nil))
	if list.Pagination.Total != 1 {
		t.Fatalf("expected a single stored ticket, got %d", list.Pagination.Total)
	}
}

func TestTicketAccessRules(t *testing.T) {
	h := newHarness(t)
	created := decode[ticketCreatedResponse](t, h.request(t, http.MethodPost, "/api/help/tickets", "", ticketPayload()))
	path := "/api/help/tickets/" + created.TicketNumber

	if w := h.request(t, http.MethodGet, path, "u2", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", w.Code)
	}
	if w := h.request(t, http.MethodGet, path+"?email=ravi@example.com", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected requester email access, got %d %s", w.Code, w.Body.String())
	}
	if w := h.request(t, http.MethodPatch, path, "u1", gin.H{"status": "resolved"}); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin update, got %d", w.Code)
	}
	w := h.request(t, http.MethodPatch, path, "admin", gin.H{"status": "in_progress", "adminResponse": "Looking into it"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin update: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if w := h.request(t, http.MethodPatch, path, "admin", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", w.Code)
	}
	if w := h.request(t, http.MethodGet, "/api/help/stats", "u1", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 stats for non-admin, got %d", w.Code)
	}
	if w := h.request(t, http.MethodGet, "/api/help/stats", "admin", nil); w.Code != http.StatusOK {
		t.Fatalf("expected admin stats, got %d %s", w.Code, w.Body.String())
	}
	if w := h.request(t, http.MethodGet, "/api/help/tickets/KC000000000", "admin", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown ticket, got %d", w.Code)
	}
}
