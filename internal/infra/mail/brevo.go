package mail

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"kisaanconnect/internal/app/policies"
)

const (
	brevoEndpoint  = "https://api.brevo.com/v3/smtp/email"
	defaultTimeout = 15 * time.Second
)

var (
	ErrUnknownTemplate = errors.New("mail: unknown template")
	ErrRecipient       = errors.New("mail: recipient is required")
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type brevoAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoPayload struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// BrevoMailer sends transactional email through the Brevo HTTP API.
type BrevoMailer struct {
	APIKey    string
	FromEmail string
	FromName  string
	Endpoint  string
	Client    *http.Client
	Logger    *slog.Logger

	breaker *gobreaker.CircuitBreaker
}

func NewBrevoMailer(apiKey, fromEmail, fromName string, logger *slog.Logger) *BrevoMailer {
	m := &BrevoMailer{
		APIKey:    apiKey,
		FromEmail: fromEmail,
		FromName:  fromName,
		Endpoint:  brevoEndpoint,
		Client:    &http.Client{Timeout: defaultTimeout},
		Logger:    logger,
	}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "brevo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			}
		},
	})
	return m
}

func (m *BrevoMailer) Send(ctx context.Context, to string, tmpl string, data any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrRecipient
	}
	subject, html, err := Render(tmpl, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(brevoPayload{
		Sender:      brevoAddress{Name: m.FromName, Email: m.FromEmail},
		To:          []brevoAddress{{Email: to}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return err
	}
	send := func() (any, error) {
		return nil, m.post(ctx, body)
	}
	if m.breaker != nil {
		_, err = m.breaker.Execute(send)
	} else {
		_, err = send()
	}
	if err != nil {
		return fmt.Errorf("send %s mail: %w", tmpl, err)
	}
	if m.Logger != nil {
		m.Logger.Info("email sent", "template", tmpl, "subject", subject)
	}
	return nil
}

func (m *BrevoMailer) post(ctx context.Context, body []byte) error {
	endpoint := m.Endpoint
	if endpoint == "" {
		endpoint = brevoEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", m.APIKey)

	client := m.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("brevo status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}

// Render returns the subject and html body for a template.
func Render(tmpl string, data any) (string, string, error) {
	subject, err := subjectFor(tmpl, data)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl+".html", data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", tmpl, err)
	}
	return subject, buf.String(), nil
}

func subjectFor(tmpl string, data any) (string, error) {
	ticket, _ := data.(policies.TicketMail)
	switch tmpl {
	case policies.TemplatePasswordReset:
		return "Reset your Kisaan Connect password", nil
	case policies.TemplateTicketReceived:
		return fmt.Sprintf("Support ticket %s received", ticket.TicketNumber), nil
	case policies.TemplateTicketAdmin:
		return fmt.Sprintf("[%s] New support ticket %s", strings.ToUpper(ticket.Priority), ticket.TicketNumber), nil
	case policies.TemplateTicketResponse:
		return fmt.Sprintf("Response to your support ticket %s", ticket.TicketNumber), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, tmpl)
	}
}

// LogMailer renders mail and logs it instead of sending. Used when no
// provider is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(_ context.Context, to string, tmpl string, data any) error {
	subject, _, err := Render(tmpl, data)
	if err != nil {
		return err
	}
	if m.Logger != nil {
		m.Logger.Info("email not sent, no provider configured", "template", tmpl, "subject", subject, "to", to)
	}
	return nil
}

var (
	_ policies.Notifier = (*BrevoMailer)(nil)
	_ policies.Notifier = LogMailer{}
)
