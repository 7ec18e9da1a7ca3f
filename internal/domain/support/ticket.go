package support

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"kisaanconnect/internal/domain/shared/events"
)

var (
	ErrNotFound         = errors.New("support: ticket not found")
	ErrNameRequired     = errors.New("support: name is required")
	ErrEmailInvalid     = errors.New("support: a valid email is required")
	ErrMessageLength    = errors.New("support: message must be between 10 and 2000 characters")
	ErrCategoryInvalid  = errors.New("support: invalid category")
	ErrPriorityInvalid  = errors.New("support: invalid priority")
	ErrStatusInvalid    = errors.New("support: invalid status")
	ErrResponseRequired = errors.New("support: response message is required")
	ErrForbidden        = errors.New("support: access denied")
)

type TicketID string

type Category string

const (
	CategoryAccount   Category = "account"
	CategoryListing   Category = "listing"
	CategoryChat      Category = "chat"
	CategoryPayment   Category = "payment"
	CategoryTechnical Category = "technical"
	CategoryOther     Category = "other"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Response struct {
	AuthorID   string
	AuthorName string
	FromAdmin  bool
	Message    string
	At         time.Time
}

type Ticket struct {
	ID               TicketID
	Number           string
	UserID           string
	Name             string
	Email            string
	Phone            string
	Category         Category
	Priority         Priority
	Status           Status
	Subject          string
	Message          string
	AssignedTo       string
	Responses        []Response
	ExpectedResponse time.Duration
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastResponseAt   time.Time
	events.EventRecorder
}

type ListFilter struct {
	UserID   string
	Status   Status
	Priority Priority
	Page     int
	Limit    int
}

type Stats struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	InProgress   int `json:"inProgress"`
	Resolved     int `json:"resolved"`
	Closed       int `json:"closed"`
	UrgentOpen   int `json:"urgentOpen"`
	CreatedToday int `json:"createdToday"`
}

type Repository interface {
	ByID(ctx context.Context, id TicketID) (*Ticket, error)
	ByNumber(ctx context.Context, number string) (*Ticket, error)
	Save(ctx context.Context, ticket *Ticket) error
	List(ctx context.Context, filter ListFilter) ([]*Ticket, int, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

type CreateParams struct {
	ID       TicketID
	UserID   string
	Name     string
	Email    string
	Phone    string
	Category string
	Priority string
	Subject  string
	Message  string
	Now      time.Time
	Rand     *rand.Rand
}

func NewTicket(params CreateParams) (*Ticket, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("support: id is required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if !emailPattern.MatchString(email) {
		return nil, ErrEmailInvalid
	}
	message := strings.TrimSpace(params.Message)
	if n := utf8.RuneCountInString(message); n < 10 || n > 2000 {
		return nil, ErrMessageLength
	}
	category, err := ParseCategory(params.Category)
	if err != nil {
		return nil, err
	}
	priority, err := ParsePriority(params.Priority)
	if err != nil {
		return nil, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		subject = defaultSubject(category)
	}

	ticket := &Ticket{
		ID:               params.ID,
		Number:           NewTicketNumber(now, params.Rand),
		UserID:           strings.TrimSpace(params.UserID),
		Name:             name,
		Email:            email,
		Phone:            strings.TrimSpace(params.Phone),
		Category:         category,
		Priority:         priority,
		Status:           StatusOpen,
		Subject:          subject,
		Message:          message,
		ExpectedResponse: ExpectedResponseFor(priority),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	ticket.Record(TicketCreatedEvent{
		TicketID: ticket.ID,
		Number:   ticket.Number,
		Category: ticket.Category,
		Priority: ticket.Priority,
		At:       now,
	})
	return ticket, nil
}

// NewTicketNumber builds "KC" + last six digits of unix millis + three random digits.
func NewTicketNumber(now time.Time, rnd *rand.Rand) string {
	millis := fmt.Sprintf("%d", now.UnixMilli())
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	var suffix int
	if rnd != nil {
		suffix = rnd.IntN(1000)
	} else {
		suffix = rand.IntN(1000)
	}
	return fmt.Sprintf("KC%s%03d", millis, suffix)
}

func ExpectedResponseFor(p Priority) time.Duration {
	switch p {
	case PriorityUrgent:
		return 2 * time.Hour
	case PriorityHigh:
		return 8 * time.Hour
	case PriorityLow:
		return 48 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ResponseWindow renders d as whole hours, e.g. "24 hours".
func ResponseWindow(d time.Duration) string {
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

func (t *Ticket) AddResponse(resp Response, now time.Time) error {
	msg := strings.TrimSpace(resp.Message)
	if msg == "" {
		return ErrResponseRequired
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	resp.Message = msg
	resp.At = now
	t.Responses = append(t.Responses, resp)
	t.LastResponseAt = now
	if !resp.FromAdmin && (t.Status == StatusResolved || t.Status == StatusClosed) {
		t.Status = StatusOpen
	}
	t.UpdatedAt = now
	return nil
}

type UpdateParams struct {
	Status     *string
	Priority   *string
	AssignedTo *string
	Now        time.Time
}

func (t *Ticket) Update(params UpdateParams) error {
	status, priority := t.Status, t.Priority
	if params.Status != nil {
		s, err := ParseStatus(*params.Status)
		if err != nil {
			return err
		}
		status = s
	}
	if params.Priority != nil {
		p, err := ParsePriority(*params.Priority)
		if err != nil {
			return err
		}
		priority = p
	}
	t.Status = status
	if priority != t.Priority {
		t.Priority = priority
		t.ExpectedResponse = ExpectedResponseFor(priority)
	}
	if params.AssignedTo != nil {
		t.AssignedTo = strings.TrimSpace(*params.AssignedTo)
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	t.UpdatedAt = now.UTC()
	return nil
}

// VisibleTo reports whether the requester may read the ticket. Anonymous
// requesters prove ownership with the email used on submission.
func (t *Ticket) VisibleTo(userID string, admin bool, email string) bool {
	if admin {
		return true
	}
	if userID != "" && t.UserID == userID {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return email != "" && email == t.Email
}

func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryAccount, CategoryListing, CategoryChat, CategoryPayment, CategoryTechnical, CategoryOther:
		return c, nil
	default:
		return "", ErrCategoryInvalid
	}
}

func ParsePriority(raw string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", ErrPriorityInvalid
	}
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return s, nil
	default:
		return "", ErrStatusInvalid
	}
}

func defaultSubject(c Category) string {
	switch c {
	case CategoryAccount:
		return "Account help"
	case CategoryListing:
		return "Crop listing help"
	case CategoryChat:
		return "Chat help"
	case CategoryPayment:
		return "Payment help"
	case CategoryTechnical:
		return "Technical issue"
	default:
		return "General enquiry"
	}
}

// IsValidationError reports whether err is caused by bad ticket input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrMessageLength),
		errors.Is(err, ErrCategoryInvalid),
		errors.Is(err, ErrPriorityInvalid),
		errors.Is(err, ErrStatusInvalid),
		errors.Is(err, ErrResponseRequired):
		return true
	}
	return false
}
