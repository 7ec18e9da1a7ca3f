package listings_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"kisaanconnect/internal/app/handlers/listings"
	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/app/uow"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainuser "kisaanconnect/internal/domain/user"
	"kisaanconnect/internal/infra/storage/memory"
)

type fakeImages struct {
	mu      sync.Mutex
	next    int
	stored  []string
	deleted []string
}

func (f *fakeImages) StoreCropImage(ctx context.Context, r io.Reader) (policies.StoredImage, error) {
	if _, err := io.ReadAll(r); err != nil {
		return policies.StoredImage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := fmt.Sprintf("crops/%d.jpg", f.next)
	f.stored = append(f.stored, key)
	return policies.StoredImage{URL: "/uploads/" + key, Key: key}, nil
}

func (f *fakeImages) StoreProfileImage(ctx context.Context, r io.Reader) (policies.StoredImage, error) {
	return policies.StoredImage{}, errors.New("not used")
}

func (f *fakeImages) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fixture struct {
	factory memory.Factory
	crops   *memory.ListingRepository
	outbox  *memory.Outbox
	images  *fakeImages
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := memory.NewUserRepository()
	f := &fixture{
		crops:  memory.NewListingRepository(),
		outbox: memory.NewOutbox(),
		images: &fakeImages{},
		clock:  time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	f.factory = memory.Factory{ListingsRepo: f.crops, TicketsRepo: memory.NewTicketRepository(), UsersRepo: users}
	for i, id := range []string{"seller", "other"} {
		u, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(id),
			Phone:        fmt.Sprintf("98765432%02d", i),
			Name:         "Farmer " + id,
			PasswordHash: "hash",
			Location:     domainuser.Location{District: "Nashik", State: "Maharashtra"},
		})
		if err != nil {
			t.Fatalf("new user: %v", err)
		}
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	return f
}

func (f *fixture) now() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fixture) inUnit(t *testing.T) context.Context {
	t.Helper()
	unit, err := f.factory.Begin(context.Background(), uow.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return uow.ContextWithUnitOfWork(context.Background(), unit)
}

func (f *fixture) create(t *testing.T, name string, price float64) string {
	t.Helper()
	h := &listings.CreateCropHandler{Images: f.images, Outbox: f.outbox, Now: f.now}
	crop, err := h.Handle(f.inUnit(t), listings.CreateCropCommand{
		SellerID: "seller",
		Name:     name,
		Price:    price,
		Quantity: 50,
		Unit:     "kg",
		Image:    strings.NewReader("jpeg"),
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return crop.ID
}

func TestCreateCropDefaultsSellerFieldsAndRecordsEvent(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Wheat", 24)

	q := &listings.GetCropHandler{UoWFactory: f.factory}
	crop, err := q.Handle(context.Background(), listings.GetCropQuery{CropID: id})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if crop.SellerName != "Farmer seller" {
		t.Fatalf("expected seller name from profile, got %q", crop.SellerName)
	}
	if crop.Location != "Nashik, Maharashtra" {
		t.Fatalf("expected location from profile, got %q", crop.Location)
	}
	if crop.ImageURL != "/uploads/crops/1.jpg" {
		t.Fatalf("expected stored image url, got %q", crop.ImageURL)
	}
	names := f.outbox.Names()
	if len(names) != 1 || names[0] != "listing.created" {
		t.Fatalf("expected listing.created event, got %v", names)
	}
}

func TestCreateCropRequiresImageAndDiscardsItOnInvalidInput(t *testing.T) {
	f := newFixture(t)
	h := &listings.CreateCropHandler{Images: f.images, Outbox: f.outbox, Now: f.now}

	_, err := h.Handle(f.inUnit(t), listings.CreateCropCommand{SellerID: "seller", Name: "Rice", Price: 10, Quantity: 1})
	if !errors.Is(err, domainlistings.ErrImageRequired) {
		t.Fatalf("expected ErrImageRequired, got %v", err)
	}

	_, err = h.Handle(f.inUnit(t), listings.CreateCropCommand{
		SellerID: "seller",
		Name:     "Rice",
		Price:    -1,
		Quantity: 1,
		Image:    strings.NewReader("jpeg"),
	})
	if !errors.Is(err, domainlistings.ErrPriceInvalid) {
		t.Fatalf("expected ErrPriceInvalid, got %v", err)
	}
	if len(f.images.deleted) != 1 || f.images.deleted[0] != f.images.stored[0] {
		t.Fatalf("expected uploaded image to be discarded, got %v", f.images.deleted)
	}
}

func TestUpdateCropRejectsStrangersAndReplacesImage(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Onion", 30)
	h := &listings.UpdateCropHandler{Images: f.images, Now: f.now}

	price := 35.0
	_, err := h.Handle(f.inUnit(t), listings.UpdateCropCommand{ActorID: "other", CropID: id, Price: &price})
	if !errors.Is(err, domainlistings.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	crop, err := h.Handle(f.inUnit(t), listings.UpdateCropCommand{
		ActorID: "seller",
		CropID:  id,
		Price:   &price,
		Image:   strings.NewReader("new"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if crop.Price != 35 {
		t.Fatalf("expected price 35, got %v", crop.Price)
	}
	if crop.ImageURL != "/uploads/crops/2.jpg" {
		t.Fatalf("expected new image, got %q", crop.ImageURL)
	}
	if len(f.images.deleted) != 1 || f.images.deleted[0] != "crops/1.jpg" {
		t.Fatalf("expected old image removed, got %v", f.images.deleted)
	}

	_, err = h.Handle(f.inUnit(t), listings.UpdateCropCommand{ActorID: "other", ActorIsAdmin: true, CropID: id, Price: &price})
	if err != nil {
		t.Fatalf("expected admin update to pass, got %v", err)
	}
}

func TestDeleteCropRemovesListingAndImage(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Tomato", 18)
	h := &listings.DeleteCropHandler{Images: f.images, Outbox: f.outbox, Now: f.now}

	if _, err := h.Handle(f.inUnit(t), listings.DeleteCropCommand{ActorID: "other", CropID: id}); !errors.Is(err, domainlistings.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := h.Handle(f.inUnit(t), listings.DeleteCropCommand{ActorID: "seller", CropID: id}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	q := &listings.GetCropHandler{UoWFactory: f.factory}
	if _, err := q.Handle(context.Background(), listings.GetCropQuery{CropID: id}); !errors.Is(err, domainlistings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if len(f.images.deleted) != 1 {
		t.Fatalf("expected image removed, got %v", f.images.deleted)
	}
	names := f.outbox.Names()
	if names[len(names)-1] != "listing.deleted" {
		t.Fatalf("expected listing.deleted event, got %v", names)
	}
}

func TestSearchCropsPaginatesAndSorts(t *testing.T) {
	f := newFixture(t)
	for i, name := range []string{"Wheat", "Rice", "Maize"} {
		f.create(t, name, float64(10*(i+1)))
	}
	h := &listings.SearchCropsHandler{UoWFactory: f.factory}

	page, err := h.Handle(context.Background(), listings.SearchCropsQuery{SortBy: "price", SortOrder: "asc", Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Crops) != 2 || page.Crops[0].Name != "Wheat" {
		t.Fatalf("expected cheapest first, got %+v", page.Crops)
	}
	if page.Pagination.TotalCrops != 3 || page.Pagination.TotalPages != 2 || !page.Pagination.HasNextPage {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}

	page, err = h.Handle(context.Background(), listings.SearchCropsQuery{Search: "ric"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Crops) != 1 || page.Crops[0].Name != "Rice" {
		t.Fatalf("expected Rice only, got %+v", page.Crops)
	}
}

func TestSuggestionsNeedTwoCharacters(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Wheat", 20)
	h := &listings.CropSuggestionsHandler{UoWFactory: f.factory}

	if _, err := h.Handle(context.Background(), listings.CropSuggestionsQuery{Prefix: "w"}); !errors.Is(err, domainlistings.ErrSuggestionTooShort) {
		t.Fatalf("expected ErrSuggestionTooShort, got %v", err)
	}
	names, err := h.Handle(context.Background(), listings.CropSuggestionsQuery{Prefix: "wh"})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(names) != 1 || names[0] != "Wheat" {
		t.Fatalf("expected [Wheat], got %v", names)
	}

	seller := &listings.SellerCropsHandler{UoWFactory: f.factory}
	mine, err := seller.Handle(context.Background(), listings.SellerCropsQuery{SellerID: "seller"})
	if err != nil {
		t.Fatalf("seller crops: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 crop, got %d", len(mine))
	}
}
