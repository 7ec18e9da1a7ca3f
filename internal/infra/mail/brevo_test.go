package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kisaanconnect/internal/app/policies"
)

func TestBrevoMailerPostsRenderedTemplate(t *testing.T) {
	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := NewBrevoMailer("key-123", "support@kisaan.test", "Kisaan Connect", nil)
	m.Endpoint = srv.URL

	err := m.Send(context.Background(), "farmer@kisaan.test", policies.TemplateTicketReceived, policies.TicketMail{
		Name:             "Ramesh",
		TicketNumber:     "KC123456789",
		Subject:          "Cannot upload crop",
		ExpectedResponse: "24h0m0s",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if apiKey != "key-123" {
		t.Fatalf("expected api-key header, got %q", apiKey)
	}
	if got.Subject != "Support ticket KC123456789 received" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
	if len(got.To) != 1 || got.To[0].Email != "farmer@kisaan.test" || got.Sender.Email != "support@kisaan.test" {
		t.Fatalf("unexpected addresses %+v", got)
	}
	if !strings.Contains(got.HTMLContent, "KC123456789") || !strings.Contains(got.HTMLContent, "Ramesh") {
		t.Fatalf("template not rendered: %s", got.HTMLContent)
	}
}

func TestBrevoMailerSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewBrevoMailer("bad", "support@kisaan.test", "Kisaan Connect", nil)
	m.Endpoint = srv.URL
	err := m.Send(context.Background(), "farmer@kisaan.test", policies.TemplatePasswordReset, policies.PasswordResetMail{Name: "R", Link: "https://x"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRenderRejectsUnknownTemplate(t *testing.T) {
	if _, _, err := Render("newsletter", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
	if err := (LogMailer{}).Send(context.Background(), "a@b.c", policies.TemplatePasswordReset, policies.PasswordResetMail{Link: "https://x"}); err != nil {
		t.Fatalf("log mailer: %v", err)
	}
}
