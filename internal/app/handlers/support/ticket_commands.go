package support

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/dto"
	"kisaanconnect/internal/app/outbox"
	"kisaanconnect/internal/app/uow"
	domainsupport "kisaanconnect/internal/domain/support"
	domainuser "kisaanconnect/internal/domain/user"
)

const (
	createTicketKey    = "support.create_ticket"
	updateTicketKey    = "support.update_ticket"
	respondTicketKey   = "support.respond_ticket"
	adminRole          = string(domainuser.RoleAdmin)
	ticketNumberPrefix = "KC"
)

var ErrNothingToUpdate = errors.New("support: nothing to update")

// CreateTicketCommand opens a help desk ticket. UserID is empty for
// anonymous requesters. A repeated RequestKey replays the first result.
type CreateTicketCommand struct {
	UserID     string
	Name       string
	Email      string
	Phone      string
	Category   string
	Priority   string
	Subject    string
	Message    string
	RequestKey string
}

func (c CreateTicketCommand) Key() string { return createTicketKey }

func (c CreateTicketCommand) IdempotencyKey() string {
	if c.RequestKey == "" {
		return ""
	}
	return createTicketKey + ":" + c.RequestKey
}

func (c CreateTicketCommand) ResultPrototype() any { return &dto.Ticket{} }

type CreateTicketHandler struct {
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Notifications *Notifications
	Rand          *rand.Rand
	Now           func() time.Time
	Logger        *slog.Logger

	randMu sync.Mutex
}

func (h *CreateTicketHandler) Handle(ctx context.Context, cmd CreateTicketCommand) (*dto.Ticket, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	h.randMu.Lock()
	ticket, err := domainsupport.NewTicket(domainsupport.CreateParams{
		ID:       domainsupport.TicketID(uuid.NewString()),
		UserID:   cmd.UserID,
		Name:     cmd.Name,
		Email:    cmd.Email,
		Phone:    cmd.Phone,
		Category: cmd.Category,
		Priority: cmd.Priority,
		Subject:  cmd.Subject,
		Message:  cmd.Message,
		Now:      now(h.Now),
		Rand:     h.Rand,
	})
	h.randMu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := unit.Tickets().Save(ctx, ticket); err != nil {
		return nil, err
	}
	if err := outbox.RecordPending(ctx, h.Outbox, h.Encoder, ticket); err != nil {
		return nil, err
	}

	var tokens []string
	admins, err := unit.Users().ByRole(ctx, domainuser.RoleAdmin)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("admin lookup failed", "ticket", ticket.Number, "error", err)
		}
	}
	for _, admin := range admins {
		if admin.PushToken != "" {
			tokens = append(tokens, admin.PushToken)
		}
	}
	h.Notifications.ticketCreated(ctx, ticket, tokens)

	if h.Logger != nil {
		h.Logger.Info("ticket created", "ticket", ticket.Number, "priority", ticket.Priority, "category", ticket.Category)
	}
	result := dto.MapTicket(ticket)
	return &result, nil
}

// UpdateTicketCommand changes ticket workflow fields. Admins only.
type UpdateTicketCommand struct {
	ActorID       string
	ActorName     string
	Roles         []string
	Ref           string
	Status        *string
	Priority      *string
	AssignedTo    *string
	AdminResponse string
}

func (c UpdateTicketCommand) Key() string          { return updateTicketKey }
func (c UpdateTicketCommand) RequiredRole() string { return adminRole }
func (c UpdateTicketCommand) ActorRoles() []string { return c.Roles }

func (c UpdateTicketCommand) Validate() error {
	if c.Status == nil && c.Priority == nil && c.AssignedTo == nil && strings.TrimSpace(c.AdminResponse) == "" {
		return ErrNothingToUpdate
	}
	return nil
}

type UpdateTicketHandler struct {
	Notifications *Notifications
	Now           func() time.Time
	Logger        *slog.Logger
}

func (h *UpdateTicketHandler) Handle(ctx context.Context, cmd UpdateTicketCommand) (*dto.Ticket, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	ticket, err := lookup(ctx, unit.Tickets(), cmd.Ref)
	if err != nil {
		return nil, err
	}
	at := now(h.Now)
	if err := ticket.Update(domainsupport.UpdateParams{
		Status:     cmd.Status,
		Priority:   cmd.Priority,
		AssignedTo: cmd.AssignedTo,
		Now:        at,
	}); err != nil {
		return nil, err
	}
	response := strings.TrimSpace(cmd.AdminResponse)
	if response != "" {
		if err := ticket.AddResponse(domainsupport.Response{
			AuthorID:   cmd.ActorID,
			AuthorName: cmd.ActorName,
			FromAdmin:  true,
			Message:    response,
		}, at); err != nil {
			return nil, err
		}
	}
	if err := unit.Tickets().Save(ctx, ticket); err != nil {
		return nil, err
	}
	if response != "" {
		h.Notifications.responseAdded(ctx, ticket, response, requesterToken(ctx, unit, ticket, h.Logger))
	}
	if h.Logger != nil {
		h.Logger.Info("ticket updated", "ticket", ticket.Number, "status", ticket.Status, "actor_id", cmd.ActorID)
	}
	result := dto.MapTicket(ticket)
	return &result, nil
}

// AddTicketResponseCommand appends a reply from the owner or an admin.
type AddTicketResponseCommand struct {
	ActorID      string
	ActorName    string
	ActorIsAdmin bool
	Ref          string
	Message      string
}

func (c AddTicketResponseCommand) Key() string { return respondTicketKey }

type AddTicketResponseHandler struct {
	Notifications *Notifications
	Now           func() time.Time
	Logger        *slog.Logger
}

func (h *AddTicketResponseHandler) Handle(ctx context.Context, cmd AddTicketResponseCommand) (*dto.Ticket, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	ticket, err := lookup(ctx, unit.Tickets(), cmd.Ref)
	if err != nil {
		return nil, err
	}
	if !cmd.ActorIsAdmin && (cmd.ActorID == "" || ticket.UserID != cmd.ActorID) {
		return nil, domainsupport.ErrForbidden
	}
	if err := ticket.AddResponse(domainsupport.Response{
		AuthorID:   cmd.ActorID,
		AuthorName: cmd.ActorName,
		FromAdmin:  cmd.ActorIsAdmin,
		Message:    cmd.Message,
	}, now(h.Now)); err != nil {
		return nil, err
	}
	if err := unit.Tickets().Save(ctx, ticket); err != nil {
		return nil, err
	}
	if cmd.ActorIsAdmin {
		last := ticket.Responses[len(ticket.Responses)-1]
		h.Notifications.responseAdded(ctx, ticket, last.Message, requesterToken(ctx, unit, ticket, h.Logger))
	}
	result := dto.MapTicket(ticket)
	return &result, nil
}

// lookup accepts either a ticket number or an internal id.
func lookup(ctx context.Context, repo domainsupport.Repository, ref string) (*domainsupport.Ticket, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domainsupport.ErrNotFound
	}
	if strings.HasPrefix(strings.ToUpper(ref), ticketNumberPrefix) {
		ticket, err := repo.ByNumber(ctx, strings.ToUpper(ref))
		if err == nil || !errors.Is(err, domainsupport.ErrNotFound) {
			return ticket, err
		}
	}
	return repo.ByID(ctx, domainsupport.TicketID(ref))
}

func requesterToken(ctx context.Context, unit uow.UnitOfWork, t *domainsupport.Ticket, logger *slog.Logger) string {
	if t.UserID == "" {
		return ""
	}
	u, err := unit.Users().ByID(ctx, domainuser.ID(t.UserID))
	if err != nil {
		if logger != nil && !errors.Is(err, domainuser.ErrNotFound) {
			logger.Warn("requester lookup failed", "ticket", t.Number, "error", err)
		}
		return ""
	}
	return u.PushToken
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now()
}

var (
	_ commands.Handler[CreateTicketCommand, *dto.Ticket]      = (*CreateTicketHandler)(nil)
	_ commands.Handler[UpdateTicketCommand, *dto.Ticket]      = (*UpdateTicketHandler)(nil)
	_ commands.Handler[AddTicketResponseCommand, *dto.Ticket] = (*AddTicketResponseHandler)(nil)
)
