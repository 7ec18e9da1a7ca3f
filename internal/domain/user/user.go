package user

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrPhoneRequired       = errors.New("user: phone number is required")
	ErrPhoneInvalid        = errors.New("user: phone number is invalid")
	ErrEmailInvalid        = errors.New("user: email is invalid")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrPinCodeInvalid      = errors.New("user: pin code must have 6 digits")
	ErrInvalidRole         = errors.New("user: invalid role")
	ErrPhoneAlreadyUsed    = errors.New("user: phone number already registered")
	ErrEmailAlreadyUsed    = errors.New("user: email already registered")
	ErrNotFound            = errors.New("user: not found")
	ErrForbidden           = errors.New("user: access denied")
)

const DefaultProfilePicture = "/uploads/profile/default-avatar.png"

type ID string

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,13}$`)
	pinPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

type Location struct {
	State       string
	District    string
	VillageTown string
	PinCode     string
}

// Label renders "district, state" for listing defaults.
func (l Location) Label() string {
	parts := make([]string, 0, 2)
	if d := strings.TrimSpace(l.District); d != "" {
		parts = append(parts, d)
	}
	if s := strings.TrimSpace(l.State); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

type User struct {
	ID                 ID
	Phone              string
	Email              string
	Name               string
	PasswordHash       string
	Location           Location
	ProfilePicture     string
	ProfilePictureKey  string
	PushToken          string
	PushTokenUpdatedAt time.Time
	Roles              []Role
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByIDs(ctx context.Context, ids []ID) (map[ID]*User, error)
	ByPhone(ctx context.Context, phone string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByRole(ctx context.Context, role Role) ([]*User, error)
	Create(ctx context.Context, user *User) error
	Save(ctx context.Context, user *User) error
	SetPushToken(ctx context.Context, id ID, token string, at time.Time) error
	ClearPushToken(ctx context.Context, token string) error
	List(ctx context.Context, filter DirectoryFilter) ([]*User, int, error)
	Census(ctx context.Context, since time.Time, topStates int) (Census, error)
}

// DirectoryFilter pages through users newest first. Search is a literal,
// case-insensitive substring of name, email, phone, state or district.
type DirectoryFilter struct {
	Search string
	Page   int
	Limit  int
}

type StateCount struct {
	State string
	Count int
}

// Census counts users overall, since a cutoff, and per state. ByState is
// ordered by count descending and skips users without a state.
type Census struct {
	Total   int
	Recent  int
	ByState []StateCount
}

// MatchesSearch applies the DirectoryFilter search rule to u.
func (u *User) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{u.Name, u.Email, u.Phone, u.Location.State, u.Location.District} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

type CreateParams struct {
	ID             ID
	Phone          string
	Email          string
	Name           string
	PasswordHash   string
	Location       Location
	ProfilePicture string
	PictureKey     string
	Roles          []Role
	CreatedAt      time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	phone, err := NormalizePhone(params.Phone)
	if err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	loc, err := normalizeLocation(params.Location)
	if err != nil {
		return nil, err
	}

	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	roles, err := normalizeRoles(params.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	picture := strings.TrimSpace(params.ProfilePicture)
	if picture == "" {
		picture = DefaultProfilePicture
	}

	return &User{
		ID:                ID(id),
		Phone:             phone,
		Email:             email,
		Name:              name,
		PasswordHash:      params.PasswordHash,
		Location:          loc,
		ProfilePicture:    picture,
		ProfilePictureKey: strings.TrimSpace(params.PictureKey),
		Roles:             roles,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

type ProfileUpdate struct {
	Name     *string
	Email    *string
	Location *Location
}

func (u *User) UpdateProfile(upd ProfileUpdate, now time.Time) error {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return ErrNameRequired
		}
		u.Name = name
	}
	if upd.Email != nil {
		email, err := NormalizeEmail(*upd.Email)
		if err != nil {
			return err
		}
		u.Email = email
	}
	if upd.Location != nil {
		loc, err := normalizeLocation(*upd.Location)
		if err != nil {
			return err
		}
		u.Location = loc
	}
	u.touch(now)
	return nil
}

// SetProfilePicture swaps the picture and returns the storage key of the replaced one.
func (u *User) SetProfilePicture(url, key string, now time.Time) string {
	previous := u.ProfilePictureKey
	u.ProfilePicture = strings.TrimSpace(url)
	u.ProfilePictureKey = strings.TrimSpace(key)
	if u.ProfilePicture == "" {
		u.ProfilePicture = DefaultProfilePicture
	}
	u.touch(now)
	return previous
}

func (u *User) SetPasswordHash(hash string, now time.Time) error {
	if strings.TrimSpace(hash) == "" {
		return ErrPasswordHashMissing
	}
	u.PasswordHash = hash
	u.touch(now)
	return nil
}

func (u *User) EnsureRole(role Role, now time.Time) error {
	role = normalizeRole(role)
	if role == "" {
		return ErrInvalidRole
	}
	if u.HasRole(role) {
		return nil
	}
	u.Roles = append(u.Roles, role)
	u.touch(now)
	return nil
}

func (u *User) HasRole(role Role) bool {
	role = normalizeRole(role)
	if role == "" {
		return false
	}
	for _, current := range u.Roles {
		if normalizeRole(current) == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

func (u *User) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.UpdatedAt = now.UTC()
}

// NormalizePhone strips separators and validates a 10-13 digit number.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if cleaned == "" {
		return "", ErrPhoneRequired
	}
	if !phonePattern.MatchString(cleaned) {
		return "", ErrPhoneInvalid
	}
	return cleaned, nil
}

// NormalizeEmail lower-cases the address. Empty input is allowed.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	if !emailPattern.MatchString(email) {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// ValidEmail reports whether email looks like an address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

func normalizeLocation(loc Location) (Location, error) {
	out := Location{
		State:       strings.TrimSpace(loc.State),
		District:    strings.TrimSpace(loc.District),
		VillageTown: strings.TrimSpace(loc.VillageTown),
		PinCode:     strings.TrimSpace(loc.PinCode),
	}
	if out.PinCode != "" && !pinPattern.MatchString(out.PinCode) {
		return Location{}, ErrPinCodeInvalid
	}
	return out, nil
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	seen := make(map[Role]struct{}, len(roles))
	normalized := make([]Role, 0, len(roles))
	for _, role := range roles {
		normalizedRole := normalizeRole(role)
		if normalizedRole == "" {
			return nil, ErrInvalidRole
		}
		if _, ok := seen[normalizedRole]; ok {
			continue
		}
		seen[normalizedRole] = struct{}{}
		normalized = append(normalized, normalizedRole)
	}
	return normalized, nil
}

func normalizeRole(role Role) Role {
	return Role(strings.ToLower(strings.TrimSpace(string(role))))
}

// IsValidationError reports whether err is caused by bad user input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrPhoneRequired),
		errors.Is(err, ErrPhoneInvalid),
		errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrPinCodeInvalid),
		errors.Is(err, ErrInvalidRole):
		return true
	}
	return false
}
