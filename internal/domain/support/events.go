package support

import "time"

type TicketCreatedEvent struct {
	TicketID TicketID  `json:"ticket_id"`
	Number   string    `json:"number"`
	Category Category  `json:"category"`
	Priority Priority  `json:"priority"`
	At       time.Time `json:"at"`
}

func (e TicketCreatedEvent) EventName() string     { return "support.ticket_created" }
func (e TicketCreatedEvent) AggregateID() string   { return string(e.TicketID) }
func (e TicketCreatedEvent) OccurredAt() time.Time { return e.At }
