package security

import (
	"errors"
	"testing"
	"time"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("kisaan-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := h.Compare(hash, "kisaan-secret"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestRandomTokenGeneratorProducesDistinctTokens(t *testing.T) {
	g := RandomTokenGenerator{}
	a, err := g.NewToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	b, _ := g.NewToken()
	if a == b || len(a) < 40 {
		t.Fatalf("expected distinct url-safe tokens, got %q and %q", a, b)
	}
}

func TestResetTokenBoundToPasswordHash(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	tokens := ResetTokens{Secret: []byte("test-secret"), TTL: time.Hour, Now: func() time.Time { return now }}

	raw, expires, err := tokens.Issue("u1", "$2a$hash-one")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry in one hour, got %v", expires)
	}
	userID, fingerprint, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "u1" || fingerprint != Fingerprint("$2a$hash-one") {
		t.Fatalf("unexpected claims %s %s", userID, fingerprint)
	}
	if fingerprint == Fingerprint("$2a$hash-two") {
		t.Fatalf("fingerprint must change with the hash")
	}
}

func TestResetTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	issuer := ResetTokens{Secret: []byte("test-secret"), Now: func() time.Time { return now }}
	raw, _, err := issuer.Issue("u1", "hash")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := ResetTokens{Secret: []byte("test-secret"), Now: func() time.Time { return now.Add(2 * time.Hour) }}
	if _, _, err := later.Verify(raw); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	other := ResetTokens{Secret: []byte("other-secret"), Now: func() time.Time { return now }}
	if _, _, err := other.Verify(raw); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected foreign signature rejected, got %v", err)
	}
	if _, _, err := issuer.Verify("garbage"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}
