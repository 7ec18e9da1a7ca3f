package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender delivers through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("push: init firebase: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: init messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, msg *messaging.Message) error {
	if _, err := s.client.Send(ctx, msg); err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return err
	}
	return nil
}

func (s *FCMSender) SendMulticast(ctx context.Context, msg *messaging.MulticastMessage) ([]string, error) {
	res, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, err
	}
	var invalid []string
	var failures []error
	for i, r := range res.Responses {
		if r.Success {
			continue
		}
		if messaging.IsUnregistered(r.Error) && i < len(msg.Tokens) {
			invalid = append(invalid, msg.Tokens[i])
			continue
		}
		failures = append(failures, r.Error)
	}
	if res.SuccessCount == 0 && len(failures) > 0 {
		return invalid, errors.Join(failures...)
	}
	return invalid, nil
}

// LogSender is used when Firebase is not configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg *messaging.Message) error {
	if s.Logger != nil && msg.Notification != nil {
		s.Logger.Debug("push not configured", "title", msg.Notification.Title)
	}
	return nil
}

func (s LogSender) SendMulticast(ctx context.Context, msg *messaging.MulticastMessage) ([]string, error) {
	if s.Logger != nil {
		s.Logger.Debug("push not configured", "recipients", len(msg.Tokens))
	}
	return nil, nil
}

var (
	_ Sender = (*FCMSender)(nil)
	_ Sender = LogSender{}
)
