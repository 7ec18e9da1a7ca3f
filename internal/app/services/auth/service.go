package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/app/tasks"
	domainauth "kisaanconnect/internal/domain/auth"
	domainuser "kisaanconnect/internal/domain/user"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
	ErrIdentifierRequired = errors.New("auth: phone number or email is required")
	ErrResetTokenInvalid  = errors.New("auth: reset link is invalid or has expired")
	ErrResetUnavailable   = errors.New("auth: password reset is not configured")
	ErrPushTokenRequired  = errors.New("auth: push token is required")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenGenerator interface {
	NewToken() (string, error)
}

// ResetTokenIssuer signs password reset tokens bound to the current hash.
type ResetTokenIssuer interface {
	Issue(userID, passwordHash string) (string, time.Time, error)
	Verify(token string) (userID string, fingerprint string, err error)
	Fingerprint(passwordHash string) string
}

type Service struct {
	Users       domainuser.Repository
	Sessions    domainauth.SessionStore
	Passwords   PasswordHasher
	Tokens      TokenGenerator
	Resets      ResetTokenIssuer
	Images      policies.ImageStore
	Mailer      policies.Notifier
	Tasks       *tasks.Group
	AdminEmails []string
	BaseURL     string
	SessionTTL  time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

type RegisterParams struct {
	FullName string
	Phone    string
	Email    string
	Password string
	Location domainuser.Location
	Picture  io.Reader
}

type LoginParams struct {
	Identifier string
	Password   string
}

type AuthResult struct {
	User  *domainuser.User
	Token string
}

type ResolveResult struct {
	User    *domainuser.User
	Session *domainauth.Session
}

type UpdateProfileParams struct {
	UserID   domainuser.ID
	FullName *string
	Email    *string
	Location *domainuser.Location
	Picture  io.Reader
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*domainuser.User, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if err := s.validatePassword(params.Password); err != nil {
		return nil, err
	}
	phone, err := domainuser.NormalizePhone(params.Phone)
	if err != nil {
		return nil, err
	}
	email, err := domainuser.NormalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, phone, email, ""); err != nil {
		return nil, err
	}
	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	roles := []domainuser.Role{domainuser.RoleUser}
	if s.isAdminEmail(email) {
		roles = append(roles, domainuser.RoleAdmin)
	}
	var picture policies.StoredImage
	if params.Picture != nil && s.Images != nil {
		picture, err = s.Images.StoreProfileImage(ctx, params.Picture)
		if err != nil {
			return nil, fmt.Errorf("store profile picture: %w", err)
		}
	}
	user, err := domainuser.NewUser(domainuser.CreateParams{
		ID:             domainuser.ID(uuid.NewString()),
		Phone:          phone,
		Email:          email,
		Name:           params.FullName,
		PasswordHash:   hash,
		Location:       params.Location,
		ProfilePicture: picture.URL,
		PictureKey:     picture.Key,
		Roles:          roles,
		CreatedAt:      s.now(),
	})
	if err != nil {
		s.discardImage(ctx, picture.Key)
		return nil, err
	}
	if err := s.Users.Create(ctx, user); err != nil {
		s.discardImage(ctx, picture.Key)
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user registered", "user_id", user.ID, "roles", user.Roles)
	}
	return user, nil
}

// Login accepts either a phone number or an email as the identifier.
func (s *Service) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	identifier := strings.TrimSpace(params.Identifier)
	if identifier == "" {
		return nil, ErrIdentifierRequired
	}
	user, err := s.lookupIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.Passwords.Compare(user.PasswordHash, params.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.isAdminEmail(user.Email) && !user.IsAdmin() {
		if err := user.EnsureRole(domainuser.RoleAdmin, s.now()); err == nil {
			if err := s.Users.Save(ctx, user); err != nil {
				return nil, err
			}
		}
	}
	token, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user authenticated", "user_id", user.ID)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Logout ends the session and forgets the device's push address.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	session, err := s.Sessions.Get(ctx, domainauth.Token(token))
	if err != nil {
		if errors.Is(err, domainauth.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := s.Sessions.Delete(ctx, session.Token); err != nil {
		return err
	}
	if err := s.Users.SetPushToken(ctx, session.UserID, "", s.now()); err != nil && !errors.Is(err, domainuser.ErrNotFound) {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("session terminated", "user_id", session.UserID)
	}
	return nil
}

func (s *Service) ResolveToken(ctx context.Context, token string) (*ResolveResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainauth.ErrTokenRequired
	}
	session, err := s.Sessions.Get(ctx, domainauth.Token(token))
	if err != nil {
		return nil, err
	}
	user, err := s.Users.ByID(ctx, session.UserID)
	if err != nil {
		_ = s.Sessions.Delete(ctx, session.Token)
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, domainauth.ErrSessionNotFound
		}
		return nil, err
	}
	return &ResolveResult{User: user, Session: session}, nil
}

// ForgotPassword mails a reset link when the address is known. Callers always
// report success so the endpoint does not reveal registered addresses.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	if s.Resets == nil {
		return ErrResetUnavailable
	}
	email, err := domainuser.NormalizeEmail(email)
	if err != nil || email == "" {
		return domainuser.ErrEmailInvalid
	}
	user, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			if s.Logger != nil {
				s.Logger.Debug("password reset requested for unknown email")
			}
			return nil
		}
		return err
	}
	token, expires, err := s.Resets.Issue(string(user.ID), user.PasswordHash)
	if err != nil {
		return err
	}
	link := strings.TrimRight(s.BaseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	mail := policies.PasswordResetMail{
		Name:      user.Name,
		Link:      link,
		ExpiresIn: expires.Sub(s.now()).Round(time.Minute).String(),
	}
	s.sendMail(ctx, "auth.reset_mail", user.Email, policies.TemplatePasswordReset, mail)
	if s.Logger != nil {
		s.Logger.Info("password reset issued", "user_id", user.ID)
	}
	return nil
}

// ResetPassword sets a new password when the token still matches the stored
// hash and revokes every session of the user.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	if s.Resets == nil {
		return ErrResetUnavailable
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}
	userID, fingerprint, err := s.Resets.Verify(token)
	if err != nil {
		return ErrResetTokenInvalid
	}
	user, err := s.Users.ByID(ctx, domainuser.ID(userID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if s.Resets.Fingerprint(user.PasswordHash) != fingerprint {
		return ErrResetTokenInvalid
	}
	hash, err := s.Passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := user.SetPasswordHash(hash, s.now()); err != nil {
		return err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return err
	}
	if err := s.Sessions.DeleteByUser(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("password reset", "user_id", user.ID)
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	return s.Users.ByID(ctx, id)
}

// UpdateProfile applies the given fields. A new picture replaces the stored
// object; the old one is removed after the user is saved.
func (s *Service) UpdateProfile(ctx context.Context, params UpdateProfileParams) (*domainuser.User, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	user, err := s.Users.ByID(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if params.Email != nil {
		email, err := domainuser.NormalizeEmail(*params.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			if err := s.ensureUnique(ctx, "", email, user.ID); err != nil {
				return nil, err
			}
		}
		params.Email = &email
	}
	now := s.now()
	if err := user.UpdateProfile(domainuser.ProfileUpdate{
		Name:     params.FullName,
		Email:    params.Email,
		Location: params.Location,
	}, now); err != nil {
		return nil, err
	}
	var replaced string
	var picture policies.StoredImage
	if params.Picture != nil && s.Images != nil {
		picture, err = s.Images.StoreProfileImage(ctx, params.Picture)
		if err != nil {
			return nil, fmt.Errorf("store profile picture: %w", err)
		}
		replaced = user.SetProfilePicture(picture.URL, picture.Key, now)
	}
	if s.isAdminEmail(user.Email) {
		_ = user.EnsureRole(domainuser.RoleAdmin, now)
	}
	if err := s.Users.Save(ctx, user); err != nil {
		s.discardImage(ctx, picture.Key)
		return nil, err
	}
	s.discardImage(ctx, replaced)
	if s.Logger != nil {
		s.Logger.Info("profile updated", "user_id", user.ID)
	}
	return user, nil
}

func (s *Service) SetPushToken(ctx context.Context, id domainuser.ID, token string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrPushTokenRequired
	}
	return s.Users.SetPushToken(ctx, id, token, s.now())
}

func (s *Service) lookupIdentifier(ctx context.Context, identifier string) (*domainuser.User, error) {
	if strings.Contains(identifier, "@") {
		return s.Users.ByEmail(ctx, strings.ToLower(identifier))
	}
	phone, err := domainuser.NormalizePhone(identifier)
	if err != nil {
		return nil, domainuser.ErrNotFound
	}
	return s.Users.ByPhone(ctx, phone)
}

func (s *Service) ensureUnique(ctx context.Context, phone, email string, self domainuser.ID) error {
	if phone != "" {
		existing, err := s.Users.ByPhone(ctx, phone)
		switch {
		case err == nil && existing.ID != self:
			return domainuser.ErrPhoneAlreadyUsed
		case err != nil && !errors.Is(err, domainuser.ErrNotFound):
			return err
		}
	}
	if email != "" {
		existing, err := s.Users.ByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != self:
			return domainuser.ErrEmailAlreadyUsed
		case err != nil && !errors.Is(err, domainuser.ErrNotFound):
			return err
		}
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, user *domainuser.User) (string, error) {
	token, err := s.Tokens.NewToken()
	if err != nil {
		return "", err
	}
	session, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:  domainauth.Token(token),
		UserID: user.ID,
		Roles:  append([]domainuser.Role(nil), user.Roles...),
		TTL:    s.sessionTTL(),
		Now:    s.now(),
	})
	if err != nil {
		return "", err
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) sendMail(ctx context.Context, task, to, template string, data any) {
	if s.Mailer == nil || strings.TrimSpace(to) == "" {
		return
	}
	group := s.Tasks
	if group == nil {
		group = &tasks.Group{Logger: s.Logger}
	}
	group.Go(ctx, task, func(ctx context.Context) error {
		return s.Mailer.Send(ctx, to, template, data)
	})
}

func (s *Service) discardImage(ctx context.Context, key string) {
	if key == "" || s.Images == nil {
		return
	}
	if err := s.Images.Delete(ctx, key); err != nil && s.Logger != nil {
		s.Logger.Warn("profile picture cleanup failed", "key", key, "error", err)
	}
}

func (s *Service) isAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range s.AdminEmails {
		if strings.ToLower(strings.TrimSpace(admin)) == email {
			return true
		}
	}
	return false
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 24 * time.Hour
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) validatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Users == nil:
		return errors.New("auth: user repository required")
	case s.Sessions == nil:
		return errors.New("auth: session store required")
	case s.Passwords == nil:
		return errors.New("auth: password hasher required")
	case s.Tokens == nil:
		return errors.New("auth: token generator required")
	default:
		return nil
	}
}
