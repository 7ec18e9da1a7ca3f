package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/dto"
	supportapp "kisaanconnect/internal/app/handlers/support"
	"kisaanconnect/internal/app/queries"
	domainsupport "kisaanconnect/internal/domain/support"
)

const idempotencyHeader = "Idempotency-Key"

type HelpHTTP interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Respond(c *gin.Context)
	Stats(c *gin.Context)
}

type HelpHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createTicketRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

type updateTicketRequest struct {
	Status        *string `json:"status"`
	Priority      *string `json:"priority"`
	AssignedTo    *string `json:"assignedTo"`
	AdminResponse string  `json:"adminResponse"`
}

type ticketResponseRequest struct {
	Message string `json:"message"`
}

// Create accepts anonymous requests; a logged-in requester owns the ticket.
func (h HelpHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid ticket payload")
		return
	}
	cmd := supportapp.CreateTicketCommand{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Category:   req.Category,
		Priority:   req.Priority,
		Subject:    req.Subject,
		Message:    req.Message,
		RequestKey: strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	if p, ok := currentPrincipal(c); ok {
		cmd.UserID = p.ID
	}
	ticket, err := commands.Dispatch[supportapp.CreateTicketCommand, *dto.Ticket](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":          true,
		"message":          "Your request has been received",
		"ticketNumber":     ticket.TicketNumber,
		"expectedResponse": ticket.ExpectedResponse,
		"ticket":           ticket,
	})
}

func (h HelpHandler) List(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	query := supportapp.ListTicketsQuery{
		ActorID:      p.ID,
		ActorIsAdmin: p.IsAdmin(),
		Status:       c.Query("status"),
		Priority:     c.Query("priority"),
		Page:         queryInt(c, "page", 1),
		Limit:        queryInt(c, "limit", 10),
	}
	page, err := queries.Ask[supportapp.ListTicketsQuery, dto.TicketPage](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tickets": page.Tickets,
		"pagination": gin.H{
			"total":      page.Total,
			"page":       page.Page,
			"limit":      page.Limit,
			"totalPages": page.TotalPages,
		},
	})
}

func (h HelpHandler) Get(c *gin.Context) {
	query := supportapp.GetTicketQuery{Ref: c.Param("id"), Email: c.Query("email")}
	if p, ok := currentPrincipal(c); ok {
		query.ActorID = p.ID
		query.ActorIsAdmin = p.IsAdmin()
	}
	ticket, err := queries.Ask[supportapp.GetTicketQuery, dto.Ticket](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

func (h HelpHandler) Update(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid update payload")
		return
	}
	cmd := supportapp.UpdateTicketCommand{
		ActorID:       p.ID,
		ActorName:     p.Name,
		Roles:         p.Roles,
		Ref:           c.Param("id"),
		Status:        req.Status,
		Priority:      req.Priority,
		AssignedTo:    req.AssignedTo,
		AdminResponse: req.AdminResponse,
	}
	ticket, err := commands.Dispatch[supportapp.UpdateTicketCommand, *dto.Ticket](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

func (h HelpHandler) Respond(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req ticketResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message is required")
		return
	}
	cmd := supportapp.AddTicketResponseCommand{
		ActorID:      p.ID,
		ActorName:    p.Name,
		ActorIsAdmin: p.IsAdmin(),
		Ref:          c.Param("id"),
		Message:      req.Message,
	}
	ticket, err := commands.Dispatch[supportapp.AddTicketResponseCommand, *dto.Ticket](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "ticket": ticket})
}

func (h HelpHandler) Stats(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	stats, err := queries.Ask[supportapp.TicketStatsQuery, domainsupport.Stats](c.Request.Context(), h.Queries, supportapp.TicketStatsQuery{Roles: p.Roles})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

var _ HelpHTTP = (*HelpHandler)(nil)
