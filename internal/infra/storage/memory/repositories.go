package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainlistings "kisaanconnect/internal/domain/listings"
	domainsupport "kisaanconnect/internal/domain/support"
)

// ListingRepository is an in-memory crop catalog for demo and test runs.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

// ByID returns a listing or domainlistings.ErrNotFound.
func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	return cloneListing(listing), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil {
		return domainlistings.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

func (r *ListingRepository) Delete(ctx context.Context, id domainlistings.ListingID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domainlistings.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// Search returns listings that satisfy provided filters.
func (r *ListingRepository) Search(ctx context.Context, params domainlistings.SearchParams) (domainlistings.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	opts := params.Normalized()
	matches := make([]*domainlistings.Listing, 0, len(r.items))
	for _, listing := range r.items {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return domainlistings.SearchResult{}, ctx.Err()
			default:
			}
		}
		if opts.Matches(listing) {
			matches = append(matches, listing)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return opts.Less(matches[i], matches[j]) })

	total := len(matches)
	start := opts.Offset()
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	items := make([]*domainlistings.Listing, 0, end-start)
	for _, listing := range matches[start:end] {
		items = append(items, cloneListing(listing))
	}
	return domainlistings.SearchResult{Items: items, Total: total}, nil
}

func (r *ListingRepository) BySeller(ctx context.Context, seller domainlistings.SellerID) ([]*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainlistings.Listing, 0)
	for _, listing := range r.items {
		if listing.SellerID == seller {
			out = append(out, cloneListing(listing))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SuggestNames returns distinct crop names starting with prefix, case-insensitively.
func (r *ListingRepository) SuggestNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, listing := range r.items {
		lower := strings.ToLower(listing.Name)
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		names = append(names, listing.Name)
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (r *ListingRepository) Count(ctx context.Context, since time.Time) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recent := 0
	for _, l := range r.items {
		if !l.CreatedAt.Before(since) {
			recent++
		}
	}
	return len(r.items), recent, nil
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:         l.ID,
		Name:       l.Name,
		Price:      l.Price,
		Quantity:   l.Quantity,
		Unit:       l.Unit,
		ImageURL:   l.ImageURL,
		ImageKey:   l.ImageKey,
		SellerID:   l.SellerID,
		SellerName: l.SellerName,
		Location:   l.Location,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

// TicketRepository keeps support tickets in memory.
type TicketRepository struct {
	mu       sync.RWMutex
	items    map[domainsupport.TicketID]*domainsupport.Ticket
	byNumber map[string]domainsupport.TicketID
}

func NewTicketRepository() *TicketRepository {
	return &TicketRepository{
		items:    make(map[domainsupport.TicketID]*domainsupport.Ticket),
		byNumber: make(map[string]domainsupport.TicketID),
	}
}

func (r *TicketRepository) ByID(ctx context.Context, id domainsupport.TicketID) (*domainsupport.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.items[id]
	if !ok {
		return nil, domainsupport.ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (r *TicketRepository) ByNumber(ctx context.Context, number string) (*domainsupport.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[strings.ToUpper(strings.TrimSpace(number))]
	if !ok {
		return nil, domainsupport.ErrNotFound
	}
	return cloneTicket(r.items[id]), nil
}

func (r *TicketRepository) Save(ctx context.Context, ticket *domainsupport.Ticket) error {
	if ticket == nil {
		return domainsupport.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[ticket.ID] = cloneTicket(ticket)
	r.byNumber[ticket.Number] = ticket.ID
	return nil
}

// List returns tickets newest first with the total before paging.
func (r *TicketRepository) List(ctx context.Context, filter domainsupport.ListFilter) ([]*domainsupport.Ticket, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainsupport.Ticket, 0)
	for _, t := range r.items {
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		matches = append(matches, t)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	total := len(matches)
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]*domainsupport.Ticket, 0, end-start)
	for _, t := range matches[start:end] {
		out = append(out, cloneTicket(t))
	}
	return out, total, nil
}

func (r *TicketRepository) Stats(ctx context.Context, since time.Time) (domainsupport.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stats domainsupport.Stats
	for _, t := range r.items {
		stats.Total++
		switch t.Status {
		case domainsupport.StatusOpen:
			stats.Open++
			if t.Priority == domainsupport.PriorityUrgent {
				stats.UrgentOpen++
			}
		case domainsupport.StatusInProgress:
			stats.InProgress++
		case domainsupport.StatusResolved:
			stats.Resolved++
		case domainsupport.StatusClosed:
			stats.Closed++
		}
		if !t.CreatedAt.Before(since) {
			stats.CreatedToday++
		}
	}
	return stats, nil
}

func cloneTicket(t *domainsupport.Ticket) *domainsupport.Ticket {
	return &domainsupport.Ticket{
		ID:               t.ID,
		Number:           t.Number,
		UserID:           t.UserID,
		Name:             t.Name,
		Email:            t.Email,
		Phone:            t.Phone,
		Category:         t.Category,
		Priority:         t.Priority,
		Status:           t.Status,
		Subject:          t.Subject,
		Message:          t.Message,
		AssignedTo:       t.AssignedTo,
		Responses:        append([]domainsupport.Response(nil), t.Responses...),
		ExpectedResponse: t.ExpectedResponse,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		LastResponseAt:   t.LastResponseAt,
	}
}

var (
	_ domainlistings.Repository = (*ListingRepository)(nil)
	_ domainsupport.Repository  = (*TicketRepository)(nil)
)
