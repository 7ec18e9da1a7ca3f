package policies

import (
	"context"
	"time"
)

// Email templates understood by Notifier implementations.
const (
	TemplatePasswordReset  = "password_reset"
	TemplateTicketReceived = "ticket_received"
	TemplateTicketAdmin    = "ticket_admin_alert"
	TemplateTicketResponse = "ticket_response"
)

// Notifier delivers templated email.
type Notifier interface {
	Send(ctx context.Context, to string, template string, data any) error
}

type PasswordResetMail struct {
	Name      string
	Link      string
	ExpiresIn string
}

type TicketMail struct {
	Name             string
	TicketNumber     string
	Subject          string
	Category         string
	Priority         string
	Status           string
	Message          string
	Email            string
	ExpectedResponse string
	Response         string
	Link             string
}

type ChatMessageNotice struct {
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	At         time.Time
}

type TicketNotice struct {
	TicketID     string
	TicketNumber string
	Subject      string
	Priority     string
	Status       string
	Message      string
}

// PushNotifier sends device notifications. Implementations never return
// errors; delivery failures are logged where they happen.
type PushNotifier interface {
	NotifyChatMessage(ctx context.Context, address string, notice ChatMessageNotice)
	NotifyTicketResponse(ctx context.Context, address string, notice TicketNotice)
	NotifyAdmins(ctx context.Context, addresses []string, notice TicketNotice)
}
