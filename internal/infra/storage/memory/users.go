package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainauth "kisaanconnect/internal/domain/auth"
	domainuser "kisaanconnect/internal/domain/user"
)

// UserRepository stores users in memory. Not suitable for production.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[domainuser.ID]*domainuser.User
	byPhone map[string]domainuser.ID
	byEmail map[string]domainuser.ID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[domainuser.ID]*domainuser.User),
		byPhone: make(map[string]domainuser.ID),
		byEmail: make(map[string]domainuser.ID),
	}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.byID[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domainuser.ErrNotFound
}

// ByIDs skips unknown ids.
func (r *UserRepository) ByIDs(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domainuser.ID]*domainuser.User, len(ids))
	for _, id := range ids {
		if user, ok := r.byID[id]; ok {
			out[id] = cloneUser(user)
		}
	}
	return out, nil
}

func (r *UserRepository) ByPhone(ctx context.Context, phone string) (*domainuser.User, error) {
	return r.lookup(r.byPhone, strings.TrimSpace(phone))
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	return r.lookup(r.byEmail, strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepository) lookup(index map[string]domainuser.ID, key string) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key == "" {
		return nil, domainuser.ErrNotFound
	}
	id, ok := index[key]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	if user, ok := r.byID[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) ByRole(ctx context.Context, role domainuser.Role) ([]*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainuser.User, 0)
	for _, user := range r.byID {
		if user.HasRole(role) {
			out = append(out, cloneUser(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Create rejects duplicate phone numbers and emails.
func (r *UserRepository) Create(ctx context.Context, user *domainuser.User) error {
	if user == nil || strings.TrimSpace(string(user.ID)) == "" {
		return domainuser.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[user.ID]; ok {
		return domainuser.ErrPhoneAlreadyUsed
	}
	return r.store(user)
}

func (r *UserRepository) Save(ctx context.Context, user *domainuser.User) error {
	if user == nil || strings.TrimSpace(string(user.ID)) == "" {
		return domainuser.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[user.ID]; !ok {
		return domainuser.ErrNotFound
	}
	return r.store(user)
}

func (r *UserRepository) store(user *domainuser.User) error {
	phoneKey := strings.TrimSpace(user.Phone)
	if phoneKey == "" {
		return domainuser.ErrPhoneRequired
	}
	if existingID, ok := r.byPhone[phoneKey]; ok && existingID != user.ID {
		return domainuser.ErrPhoneAlreadyUsed
	}
	emailKey := strings.ToLower(strings.TrimSpace(user.Email))
	if emailKey != "" {
		if existingID, ok := r.byEmail[emailKey]; ok && existingID != user.ID {
			return domainuser.ErrEmailAlreadyUsed
		}
	}
	if previous, ok := r.byID[user.ID]; ok {
		delete(r.byPhone, previous.Phone)
		delete(r.byEmail, strings.ToLower(previous.Email))
	}
	r.byPhone[phoneKey] = user.ID
	if emailKey != "" {
		r.byEmail[emailKey] = user.ID
	}
	r.byID[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) SetPushToken(ctx context.Context, id domainuser.ID, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return domainuser.ErrNotFound
	}
	user.PushToken = strings.TrimSpace(token)
	user.PushTokenUpdatedAt = at.UTC()
	return nil
}

// ClearPushToken removes token from whichever user holds it.
func (r *UserRepository) ClearPushToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byID {
		if user.PushToken == token {
			user.PushToken = ""
		}
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, filter domainuser.DirectoryFilter) ([]*domainuser.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainuser.User, 0, len(r.byID))
	for _, user := range r.byID {
		if user.MatchesSearch(filter.Search) {
			matches = append(matches, user)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	total := len(matches)
	start := (filter.Page - 1) * filter.Limit
	if start < 0 || start > total {
		start = total
	}
	end := min(start+filter.Limit, total)
	out := make([]*domainuser.User, 0, end-start)
	for _, user := range matches[start:end] {
		out = append(out, cloneUser(user))
	}
	return out, total, nil
}

func (r *UserRepository) Census(ctx context.Context, since time.Time, topStates int) (domainuser.Census, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var census domainuser.Census
	perState := make(map[string]int)
	for _, user := range r.byID {
		census.Total++
		if !user.CreatedAt.Before(since) {
			census.Recent++
		}
		if state := strings.TrimSpace(user.Location.State); state != "" {
			perState[state]++
		}
	}
	for state, count := range perState {
		census.ByState = append(census.ByState, domainuser.StateCount{State: state, Count: count})
	}
	sort.Slice(census.ByState, func(i, j int) bool {
		if census.ByState[i].Count != census.ByState[j].Count {
			return census.ByState[i].Count > census.ByState[j].Count
		}
		return census.ByState[i].State < census.ByState[j].State
	})
	if topStates > 0 && len(census.ByState) > topStates {
		census.ByState = census.ByState[:topStates]
	}
	return census, nil
}

func cloneUser(u *domainuser.User) *domainuser.User {
	if u == nil {
		return nil
	}
	copyUser := *u
	copyUser.Roles = append([]domainuser.Role(nil), u.Roles...)
	return &copyUser
}

// SessionStore keeps bearer sessions in memory.
type SessionStore struct {
	mu        sync.RWMutex
	tokens    map[domainauth.Token]*domainauth.Session
	userIndex map[domainuser.ID]map[domainauth.Token]struct{}
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		tokens:    make(map[domainauth.Token]*domainauth.Session),
		userIndex: make(map[domainuser.ID]map[domainauth.Token]struct{}),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil {
		return domainauth.ErrTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[session.Token] = cloneSession(session)
	if _, ok := s.userIndex[session.UserID]; !ok {
		s.userIndex[session.UserID] = make(map[domainauth.Token]struct{})
	}
	s.userIndex[session.UserID][session.Token] = struct{}{}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	s.mu.RLock()
	session, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	if session.Expired(time.Now()) {
		_ = s.Delete(ctx, token)
		return nil, domainauth.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.tokens[token]
	if !ok {
		return nil
	}
	delete(s.tokens, token)
	if index, ok := s.userIndex[session.UserID]; ok {
		delete(index, token)
		if len(index) == 0 {
			delete(s.userIndex, session.UserID)
		}
	}
	return nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.userIndex[userID]
	if !ok {
		return nil
	}
	for token := range index {
		delete(s.tokens, token)
	}
	delete(s.userIndex, userID)
	return nil
}

func cloneSession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	copySession := *s
	copySession.Roles = append([]domainuser.Role(nil), s.Roles...)
	return &copySession
}

var _ domainuser.Repository = (*UserRepository)(nil)
var _ domainauth.SessionStore = (*SessionStore)(nil)
