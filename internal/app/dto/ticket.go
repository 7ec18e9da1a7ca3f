package dto

import (
	"time"

	domainsupport "kisaanconnect/internal/domain/support"
)

type TicketResponse struct {
	AuthorName string    `json:"authorName"`
	FromAdmin  bool      `json:"fromAdmin"`
	Message    string    `json:"message"`
	At         time.Time `json:"createdAt"`
}

type Ticket struct {
	ID               string           `json:"id"`
	TicketNumber     string           `json:"ticketNumber"`
	UserID           string           `json:"userId,omitempty"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone,omitempty"`
	Category         string           `json:"category"`
	Priority         string           `json:"priority"`
	Status           string           `json:"status"`
	Subject          string           `json:"subject"`
	Message          string           `json:"message"`
	AssignedTo       string           `json:"assignedTo,omitempty"`
	Responses        []TicketResponse `json:"responses"`
	ExpectedResponse string           `json:"expectedResponse"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	LastResponseAt   *time.Time       `json:"lastResponseAt,omitempty"`
}

type TicketPage struct {
	Tickets    []Ticket `json:"tickets"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"totalPages"`
}

func MapTicket(t *domainsupport.Ticket) Ticket {
	if t == nil {
		return Ticket{}
	}
	out := Ticket{
		ID:               string(t.ID),
		TicketNumber:     t.Number,
		UserID:           t.UserID,
		Name:             t.Name,
		Email:            t.Email,
		Phone:            t.Phone,
		Category:         string(t.Category),
		Priority:         string(t.Priority),
		Status:           string(t.Status),
		Subject:          t.Subject,
		Message:          t.Message,
		AssignedTo:       t.AssignedTo,
		Responses:        make([]TicketResponse, 0, len(t.Responses)),
		ExpectedResponse: domainsupport.ResponseWindow(t.ExpectedResponse),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	for _, r := range t.Responses {
		out.Responses = append(out.Responses, TicketResponse{
			AuthorName: r.AuthorName,
			FromAdmin:  r.FromAdmin,
			Message:    r.Message,
			At:         r.At,
		})
	}
	if !t.LastResponseAt.IsZero() {
		at := t.LastResponseAt
		out.LastResponseAt = &at
	}
	return out
}

func MapTicketPage(items []*domainsupport.Ticket, total, page, limit int) TicketPage {
	out := TicketPage{Tickets: make([]Ticket, 0, len(items)), Total: total, Page: page, Limit: limit}
	for _, item := range items {
		out.Tickets = append(out.Tickets, MapTicket(item))
	}
	if limit > 0 {
		out.TotalPages = (total + limit - 1) / limit
	}
	return out
}
