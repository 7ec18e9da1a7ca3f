package directory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kisaanconnect/internal/app/handlers/directory"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainuser "kisaanconnect/internal/domain/user"
	"kisaanconnect/internal/infra/storage/memory"
)

var now = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	factory  memory.Factory
	users    *memory.UserRepository
	listings *memory.ListingRepository
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{users: memory.NewUserRepository(), listings: memory.NewListingRepository()}
	f.factory = memory.Factory{
		ListingsRepo: f.listings,
		TicketsRepo:  memory.NewTicketRepository(),
		UsersRepo:    f.users,
	}
	return f
}

func (f *fixture) addFarmer(t *testing.T, id, name, state, district string, age time.Duration) {
	t.Helper()
	f.seq++
	u, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(id),
		Phone:        fmt.Sprintf("98765432%02d", f.seq),
		Email:        id + "@kisaan.test",
		Name:         name,
		PasswordHash: "hash",
		Location:     domainuser.Location{State: state, District: district},
		CreatedAt:    now.Add(-age),
	})
	if err != nil {
		t.Fatalf("new user %s: %v", id, err)
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func (f *fixture) addCrop(t *testing.T, id string, age time.Duration) {
	t.Helper()
	l, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:       domainlistings.ListingID(id),
		Name:     "Wheat",
		Price:    25,
		Quantity: 10,
		SellerID: "f1",
		Now:      now.Add(-age),
	})
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if err := f.listings.Save(context.Background(), l); err != nil {
		t.Fatalf("save listing: %v", err)
	}
}

func seed(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	day := 24 * time.Hour
	f.addFarmer(t, "f1", "Ravi Kumar", "Punjab", "Ludhiana", 2*day)
	f.addFarmer(t, "f2", "Sita Devi", "Bihar", "Patna", 40*day)
	f.addFarmer(t, "f3", "Gurpreet Singh", "Punjab", "Amritsar", 5*day)
	f.addFarmer(t, "f4", "Anil (Patel)", "", "", 90*day)
	f.addCrop(t, "c1", day)
	f.addCrop(t, "c2", 60*day)
	return f
}

func TestListFarmersSearchesAndPages(t *testing.T) {
	f := seed(t)
	h := &directory.ListFarmersHandler{UoWFactory: f.factory}
	ctx := context.Background()

	page, err := h.Handle(ctx, directory.ListFarmersQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalFarmers != 4 || page.TotalPages != 2 || !page.HasNext || page.HasPrev {
		t.Fatalf("unexpected pagination %+v", page)
	}
	if len(page.Farmers) != 2 || page.Farmers[0].ID != "f1" || page.Farmers[1].ID != "f3" {
		t.Fatalf("expected newest first, got %+v", page.Farmers)
	}

	page, err = h.Handle(ctx, directory.ListFarmersQuery{Search: "PUNJAB"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.TotalFarmers != 2 {
		t.Fatalf("expected 2 farmers in Punjab, got %d", page.TotalFarmers)
	}

	page, err = h.Handle(ctx, directory.ListFarmersQuery{Search: "(patel"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.TotalFarmers != 1 || page.Farmers[0].ID != "f4" {
		t.Fatalf("expected literal match on f4, got %+v", page)
	}

	page, err = h.Handle(ctx, directory.ListFarmersQuery{Page: 9, Limit: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Farmers) != 0 || !page.HasPrev || page.HasNext {
		t.Fatalf("expected empty trailing page, got %+v", page)
	}
}

func TestGetFarmerAllowsOwnerAndAdmin(t *testing.T) {
	f := seed(t)
	h := &directory.GetFarmerHandler{UoWFactory: f.factory}
	ctx := context.Background()

	if _, err := h.Handle(ctx, directory.GetFarmerQuery{ActorID: "f2", ID: "f1"}); !errors.Is(err, domainuser.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := h.Handle(ctx, directory.GetFarmerQuery{ID: "f1"}); !errors.Is(err, domainuser.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous caller, got %v", err)
	}
	own, err := h.Handle(ctx, directory.GetFarmerQuery{ActorID: "f1", ID: "f1"})
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if own.FullName != "Ravi Kumar" {
		t.Fatalf("unexpected profile %+v", own)
	}
	if _, err := h.Handle(ctx, directory.GetFarmerQuery{ActorIsAdmin: true, ID: "f2"}); err != nil {
		t.Fatalf("admin get: %v", err)
	}
	if _, err := h.Handle(ctx, directory.GetFarmerQuery{ActorIsAdmin: true, ID: "ghost"}); !errors.Is(err, domainuser.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDashboardStatsCountsRecentAndStates(t *testing.T) {
	f := seed(t)
	h := &directory.DashboardStatsHandler{UoWFactory: f.factory, Now: func() time.Time { return now }}

	stats, err := h.Handle(context.Background(), directory.DashboardStatsQuery{Roles: []string{"admin"}})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalFarmers != 4 || stats.RecentFarmers != 2 {
		t.Fatalf("unexpected farmer counts %+v", stats)
	}
	if stats.TotalCrops != 2 || stats.RecentCrops != 1 {
		t.Fatalf("unexpected crop counts %+v", stats)
	}
	if len(stats.FarmersByState) != 2 || stats.FarmersByState[0].State != "Punjab" || stats.FarmersByState[0].Count != 2 {
		t.Fatalf("unexpected state breakdown %+v", stats.FarmersByState)
	}
	if !stats.LastUpdated.Equal(now) {
		t.Fatalf("expected lastUpdated %v, got %v", now, stats.LastUpdated)
	}
}
