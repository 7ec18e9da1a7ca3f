package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domainauth "kisaanconnect/internal/domain/auth"
	domainuser "kisaanconnect/internal/domain/user"
)

const (
	sessionPrefix   = "kc:session:"
	userIndexPrefix = "kc:user_sessions:"
)

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// SessionStore keeps sessions as JSON values expiring with the session. Each
// user has a set of their live tokens so logout-everywhere is one call.
type SessionStore struct {
	Client goredis.UniversalClient
	Now    func() time.Time
}

func NewSessionStore(client goredis.UniversalClient) *SessionStore {
	return &SessionStore{Client: client}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil {
		return domainauth.ErrTokenRequired
	}
	ttl := session.TTL(s.now())
	if ttl <= 0 {
		return domainauth.ErrTTLInvalid
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	indexKey := userKey(session.UserID)
	_, err = s.Client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.Token), payload, ttl)
		pipe.SAdd(ctx, indexKey, string(session.Token))
		pipe.ExpireGT(ctx, indexKey, ttl)
		pipe.ExpireNX(ctx, indexKey, ttl)
		return nil
	})
	return err
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	raw, err := s.Client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domainauth.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session domainauth.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.Expired(s.now()) {
		_ = s.Delete(ctx, token)
		return nil, domainauth.ErrSessionNotFound
	}
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	raw, err := s.Client.GetDel(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var session domainauth.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil
	}
	return s.Client.SRem(ctx, userKey(session.UserID), string(token)).Err()
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	indexKey := userKey(userID)
	tokens, err := s.Client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKey(domainauth.Token(token)))
	}
	keys = append(keys, indexKey)
	return s.Client.Del(ctx, keys...).Err()
}

// Ping backs the readiness probe.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func sessionKey(token domainauth.Token) string {
	return sessionPrefix + string(token)
}

func userKey(id domainuser.ID) string {
	return userIndexPrefix + string(id)
}

var _ domainauth.SessionStore = (*SessionStore)(nil)
