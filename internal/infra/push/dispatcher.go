package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"firebase.google.com/go/v4/messaging"
	"github.com/sony/gobreaker"

	"kisaanconnect/internal/app/policies"
)

const (
	maxBodyRunes   = 100
	ellipsis       = "..."
	defaultTimeout = 10 * time.Second
	iconPath       = "/images/logo.png"
	badgePath      = "/images/badge.png"
)

// ErrInvalidAddress reports a device token the provider no longer accepts.
var ErrInvalidAddress = errors.New("push: address is no longer registered")

// Sender delivers prepared messages to the provider.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) error
	// SendMulticast returns the tokens the provider rejected as unregistered.
	SendMulticast(ctx context.Context, msg *messaging.MulticastMessage) ([]string, error)
}

// Dispatcher formats notifications and fails soft. It never returns errors
// to callers.
type Dispatcher struct {
	Sender           Sender
	Timeout          time.Duration
	Logger           *slog.Logger
	OnInvalidAddress func(ctx context.Context, address string)

	breaker *gobreaker.CircuitBreaker
}

func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{Sender: sender, Timeout: defaultTimeout, Logger: logger}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// unregistered tokens are the device's problem, not the provider's
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidAddress)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			}
		},
	})
	return d
}

func (d *Dispatcher) NotifyChatMessage(ctx context.Context, address string, notice policies.ChatMessageNotice) {
	link := "/chats?chatId=" + notice.ChatID
	msg := &messaging.Message{
		Token: address,
		Notification: &messaging.Notification{
			Title: "Kisaan Connect - New Message from " + notice.SenderName,
			Body:  Truncate(notice.Content, maxBodyRunes),
		},
		Data: map[string]string{
			"type":       "chat_message",
			"chatId":     notice.ChatID,
			"senderId":   notice.SenderID,
			"senderName": notice.SenderName,
			"timestamp":  notice.At.UTC().Format(time.RFC3339),
			"link":       link,
		},
		Webpush: webpush(link),
	}
	d.send(ctx, "chat_message", msg)
}

func (d *Dispatcher) NotifyTicketResponse(ctx context.Context, address string, notice policies.TicketNotice) {
	link := "/help?ticket=" + notice.TicketNumber
	msg := &messaging.Message{
		Token: address,
		Notification: &messaging.Notification{
			Title: "Response to your support ticket " + notice.TicketNumber,
			Body:  Truncate(notice.Message, maxBodyRunes),
		},
		Data:    ticketData("ticket_response", notice, link),
		Webpush: webpush(link),
	}
	d.send(ctx, "ticket_response", msg)
}

func (d *Dispatcher) NotifyAdmins(ctx context.Context, addresses []string, notice policies.TicketNotice) {
	tokens := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			tokens = append(tokens, addr)
		}
	}
	if len(tokens) == 0 {
		d.debug("no admin push addresses", "ticket", notice.TicketNumber)
		return
	}
	link := "/help?ticket=" + notice.TicketNumber
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("New %s priority ticket %s", notice.Priority, notice.TicketNumber),
			Body:  Truncate(notice.Subject, maxBodyRunes),
		},
		Data:    ticketData("ticket_created", notice, link),
		Webpush: webpush(link),
	}
	if d.Sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	res, err := d.execute(func() (any, error) {
		return d.Sender.SendMulticast(ctx, msg)
	})
	if err != nil {
		d.warn("push multicast failed", "kind", "ticket_created", "recipients", len(tokens), "error", err)
		return
	}
	invalid, _ := res.([]string)
	for _, token := range invalid {
		d.invalidate(ctx, token)
	}
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg *messaging.Message) {
	if strings.TrimSpace(msg.Token) == "" {
		d.debug("push skipped, no address", "kind", kind)
		return
	}
	if d.Sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	_, err := d.execute(func() (any, error) {
		return nil, d.Sender.Send(ctx, msg)
	})
	switch {
	case err == nil:
		d.debug("push sent", "kind", kind)
	case errors.Is(err, ErrInvalidAddress):
		d.warn("push address unregistered", "kind", kind)
		d.invalidate(ctx, msg.Token)
	default:
		d.warn("push failed", "kind", kind, "error", err)
	}
}

func (d *Dispatcher) execute(fn func() (any, error)) (any, error) {
	if d.breaker == nil {
		return fn()
	}
	return d.breaker.Execute(fn)
}

func (d *Dispatcher) invalidate(ctx context.Context, address string) {
	if d.OnInvalidAddress != nil {
		d.OnInvalidAddress(context.WithoutCancel(ctx), address)
	}
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return defaultTimeout
}

func (d *Dispatcher) debug(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Debug(msg, args...)
	}
}

func (d *Dispatcher) warn(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Warn(msg, args...)
	}
}

// Truncate shortens s to at most limit runes. A cut ends with "..." which
// counts toward the limit.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= len(ellipsis) {
		return string(runes[:limit])
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}

func webpush(link string) *messaging.WebpushConfig {
	return &messaging.WebpushConfig{
		Notification: &messaging.WebpushNotification{
			Icon:               iconPath,
			Badge:              badgePath,
			RequireInteraction: true,
			Vibrate:            []int{200, 100, 200},
		},
		FCMOptions: &messaging.WebpushFCMOptions{Link: link},
	}
}

func ticketData(kind string, notice policies.TicketNotice, link string) map[string]string {
	return map[string]string{
		"type":         kind,
		"ticketId":     notice.TicketID,
		"ticketNumber": notice.TicketNumber,
		"priority":     notice.Priority,
		"status":       notice.Status,
		"link":         link,
	}
}

var _ policies.PushNotifier = (*Dispatcher)(nil)
