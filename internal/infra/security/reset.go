package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrResetTokenInvalid = errors.New("security: reset token is invalid or expired")
	ErrSecretMissing     = errors.New("security: signing secret is required")
)

const resetPurpose = "password_reset"

type resetClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"phf"`
	jwt.RegisteredClaims
}

// ResetTokens signs HS256 password reset tokens bound to a password hash.
// Changing the password changes the fingerprint, so a token works once.
type ResetTokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (r ResetTokens) Issue(userID, passwordHash string) (string, time.Time, error) {
	if len(r.Secret) == 0 {
		return "", time.Time{}, ErrSecretMissing
	}
	now := r.now()
	expires := now.Add(r.ttl())
	claims := resetClaims{
		Purpose:     resetPurpose,
		Fingerprint: Fingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign reset token: %w", err)
	}
	return signed, expires, nil
}

// Verify returns the user id and password fingerprint carried by raw.
func (r ResetTokens) Verify(raw string) (string, string, error) {
	if len(r.Secret) == 0 {
		return "", "", ErrSecretMissing
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrResetTokenInvalid
	}
	claims := &resetClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return r.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrResetTokenInvalid
	}
	if claims.Purpose != resetPurpose || claims.Subject == "" || claims.Fingerprint == "" {
		return "", "", ErrResetTokenInvalid
	}
	return claims.Subject, claims.Fingerprint, nil
}

func (ResetTokens) Fingerprint(passwordHash string) string {
	return Fingerprint(passwordHash)
}

// Fingerprint is a short digest of a password hash.
func Fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

func (r ResetTokens) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return time.Hour
}

func (r ResetTokens) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
