package support

import (
	"context"
	"time"

	"kisaanconnect/internal/app/dto"
	"kisaanconnect/internal/app/queries"
	"kisaanconnect/internal/app/uow"
	domainsupport "kisaanconnect/internal/domain/support"
)

const (
	listTicketsKey = "support.list_tickets"
	getTicketKey   = "support.get_ticket"
	ticketStatsKey = "support.stats"

	defaultTicketLimit = 10
	maxTicketLimit     = 50
)

// ListTicketsQuery returns every ticket to admins and only their own to
// everyone else.
type ListTicketsQuery struct {
	ActorID      string
	ActorIsAdmin bool
	Status       string
	Priority     string
	Page         int
	Limit        int
}

func (q ListTicketsQuery) Key() string { return listTicketsKey }

type ListTicketsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListTicketsHandler) Handle(ctx context.Context, q ListTicketsQuery) (dto.TicketPage, error) {
	if !q.ActorIsAdmin && q.ActorID == "" {
		return dto.TicketPage{}, domainsupport.ErrForbidden
	}
	filter := domainsupport.ListFilter{Page: q.Page, Limit: q.Limit}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultTicketLimit
	}
	if filter.Limit > maxTicketLimit {
		filter.Limit = maxTicketLimit
	}
	if q.Status != "" {
		status, err := domainsupport.ParseStatus(q.Status)
		if err != nil {
			return dto.TicketPage{}, err
		}
		filter.Status = status
	}
	if q.Priority != "" {
		priority, err := domainsupport.ParsePriority(q.Priority)
		if err != nil {
			return dto.TicketPage{}, err
		}
		filter.Priority = priority
	}
	if !q.ActorIsAdmin {
		filter.UserID = q.ActorID
	}

	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.TicketPage{}, err
	}
	defer release()
	items, total, err := unit.Tickets().List(ctx, filter)
	if err != nil {
		return dto.TicketPage{}, err
	}
	return dto.MapTicketPage(items, total, filter.Page, filter.Limit), nil
}

// GetTicketQuery resolves Ref as a ticket number or internal id. Email lets
// anonymous requesters read the ticket they submitted.
type GetTicketQuery struct {
	ActorID      string
	ActorIsAdmin bool
	Email        string
	Ref          string
}

func (q GetTicketQuery) Key() string { return getTicketKey }

type GetTicketHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetTicketHandler) Handle(ctx context.Context, q GetTicketQuery) (dto.Ticket, error) {
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.Ticket{}, err
	}
	defer release()
	ticket, err := lookup(ctx, unit.Tickets(), q.Ref)
	if err != nil {
		return dto.Ticket{}, err
	}
	if !ticket.VisibleTo(q.ActorID, q.ActorIsAdmin, q.Email) {
		return dto.Ticket{}, domainsupport.ErrForbidden
	}
	return dto.MapTicket(ticket), nil
}

type TicketStatsQuery struct {
	Roles []string
}

func (q TicketStatsQuery) Key() string          { return ticketStatsKey }
func (q TicketStatsQuery) RequiredRole() string { return adminRole }
func (q TicketStatsQuery) ActorRoles() []string { return q.Roles }

type TicketStatsHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *TicketStatsHandler) Handle(ctx context.Context, q TicketStatsQuery) (domainsupport.Stats, error) {
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return domainsupport.Stats{}, err
	}
	defer release()
	return unit.Tickets().Stats(ctx, startOfDay(now(h.Now)))
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var (
	_ queries.Handler[ListTicketsQuery, dto.TicketPage]      = (*ListTicketsHandler)(nil)
	_ queries.Handler[GetTicketQuery, dto.Ticket]            = (*GetTicketHandler)(nil)
	_ queries.Handler[TicketStatsQuery, domainsupport.Stats] = (*TicketStatsHandler)(nil)
)
