package support

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/app/tasks"
	domainsupport "kisaanconnect/internal/domain/support"
)

// Notifications fans ticket activity out to email and push. Every delivery
// runs on Tasks so a slow provider never holds up the request.
type Notifications struct {
	Mailer      policies.Notifier
	Push        policies.PushNotifier
	Tasks       *tasks.Group
	AdminEmails []string
	BaseURL     string
	Logger      *slog.Logger
}

func (n *Notifications) ticketCreated(ctx context.Context, t *domainsupport.Ticket, adminTokens []string) {
	if n == nil {
		return
	}
	mail := n.mail(t)
	if n.Mailer != nil {
		n.run(ctx, "support.ticket_ack", func(ctx context.Context) error {
			return n.Mailer.Send(ctx, t.Email, policies.TemplateTicketReceived, mail)
		})
		for _, admin := range n.AdminEmails {
			to := strings.TrimSpace(admin)
			if to == "" {
				continue
			}
			n.run(ctx, "support.ticket_admin_alert", func(ctx context.Context) error {
				return n.Mailer.Send(ctx, to, policies.TemplateTicketAdmin, mail)
			})
		}
	}
	if n.Push != nil && len(adminTokens) > 0 {
		notice := notice(t, t.Message)
		n.run(ctx, "support.ticket_admin_push", func(ctx context.Context) error {
			n.Push.NotifyAdmins(ctx, adminTokens, notice)
			return nil
		})
	}
}

func (n *Notifications) responseAdded(ctx context.Context, t *domainsupport.Ticket, response, requesterToken string) {
	if n == nil {
		return
	}
	if n.Mailer != nil {
		mail := n.mail(t)
		mail.Response = response
		n.run(ctx, "support.ticket_response_mail", func(ctx context.Context) error {
			return n.Mailer.Send(ctx, t.Email, policies.TemplateTicketResponse, mail)
		})
	}
	if n.Push != nil && requesterToken != "" {
		notice := notice(t, response)
		n.run(ctx, "support.ticket_response_push", func(ctx context.Context) error {
			n.Push.NotifyTicketResponse(ctx, requesterToken, notice)
			return nil
		})
	}
}

func (n *Notifications) run(ctx context.Context, name string, fn func(context.Context) error) {
	if n.Tasks != nil {
		n.Tasks.Go(ctx, name, fn)
		return
	}
	if err := fn(ctx); err != nil && n.Logger != nil {
		n.Logger.Warn("ticket notification failed", "task", name, "error", err)
	}
}

func (n *Notifications) mail(t *domainsupport.Ticket) policies.TicketMail {
	return policies.TicketMail{
		Name:             t.Name,
		TicketNumber:     t.Number,
		Subject:          t.Subject,
		Category:         string(t.Category),
		Priority:         string(t.Priority),
		Status:           string(t.Status),
		Message:          t.Message,
		Email:            t.Email,
		ExpectedResponse: domainsupport.ResponseWindow(t.ExpectedResponse),
		Link:             fmt.Sprintf("%s/help?ticket=%s", strings.TrimRight(n.BaseURL, "/"), url.QueryEscape(t.Number)),
	}
}

func notice(t *domainsupport.Ticket, message string) policies.TicketNotice {
	return policies.TicketNotice{
		TicketID:     string(t.ID),
		TicketNumber: t.Number,
		Subject:      t.Subject,
		Priority:     string(t.Priority),
		Status:       string(t.Status),
		Message:      message,
	}
}
