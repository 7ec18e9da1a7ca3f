package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	domainauth "kisaanconnect/internal/domain/auth"
)

func TestKeysAreNamespaced(t *testing.T) {
	if got := sessionKey("abc"); got != "kc:session:abc" {
		t.Fatalf("expected kc:session:abc, got %q", got)
	}
	if got := userKey("u1"); got != "kc:user_sessions:u1" {
		t.Fatalf("expected kc:user_sessions:u1, got %q", got)
	}
}

// TestSessionLifecycle runs against a real server when REDIS_TEST_ADDR is set.
func TestSessionLifecycle(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr, "", 15)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	store := NewSessionStore(client)

	var tokens []domainauth.Token
	for _, raw := range []string{"tok-a", "tok-b"} {
		session, err := domainauth.NewSession(domainauth.CreateSessionParams{Token: domainauth.Token(raw), UserID: "u1", TTL: time.Minute})
		if err != nil {
			t.Fatalf("new session: %v", err)
		}
		if err := store.Save(ctx, session); err != nil {
			t.Fatalf("save: %v", err)
		}
		tokens = append(tokens, session.Token)
	}
	got, err := store.Get(ctx, tokens[0])
	if err != nil || got.UserID != "u1" {
		t.Fatalf("expected session for u1, got %+v %v", got, err)
	}
	if err := store.Delete(ctx, tokens[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, tokens[0]); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.DeleteByUser(ctx, "u1"); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if _, err := store.Get(ctx, tokens[1]); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout everywhere, got %v", err)
	}
}
