package listings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/dto"
	"kisaanconnect/internal/app/outbox"
	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/app/uow"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainuser "kisaanconnect/internal/domain/user"
)

const (
	createCropKey = "crops.create"
	updateCropKey = "crops.update"
	deleteCropKey = "crops.delete"
)

var errSellerRequired = errors.New("listings: seller id is required")

type CreateCropCommand struct {
	SellerID string
	Name     string
	Price    float64
	Quantity float64
	Unit     string
	Location string
	Image    io.Reader
}

func (c CreateCropCommand) Key() string { return createCropKey }

func (c CreateCropCommand) Validate() error {
	if strings.TrimSpace(c.SellerID) == "" {
		return errSellerRequired
	}
	if c.Image == nil {
		return domainlistings.ErrImageRequired
	}
	return nil
}

// CreateCropHandler stores the photo first and removes it again when the
// listing cannot be saved.
type CreateCropHandler struct {
	Images  policies.ImageStore
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Now     func() time.Time
	Logger  *slog.Logger
}

func (h *CreateCropHandler) Handle(ctx context.Context, cmd CreateCropCommand) (*dto.Crop, error) {
	if strings.TrimSpace(cmd.SellerID) == "" {
		return nil, errSellerRequired
	}
	if cmd.Image == nil {
		return nil, domainlistings.ErrImageRequired
	}
	if h.Images == nil {
		return nil, errors.New("listings: image store unavailable")
	}
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	seller, err := unit.Users().ByID(ctx, domainuser.ID(cmd.SellerID))
	if err != nil {
		return nil, fmt.Errorf("load seller: %w", err)
	}
	location := strings.TrimSpace(cmd.Location)
	if location == "" {
		location = seller.Location.Label()
	}

	stored, err := h.Images.StoreCropImage(ctx, cmd.Image)
	if err != nil {
		return nil, fmt.Errorf("store crop image: %w", err)
	}
	listing, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:         domainlistings.ListingID(uuid.NewString()),
		Name:       cmd.Name,
		Price:      cmd.Price,
		Quantity:   cmd.Quantity,
		Unit:       cmd.Unit,
		ImageURL:   stored.URL,
		ImageKey:   stored.Key,
		SellerID:   domainlistings.SellerID(seller.ID),
		SellerName: seller.Name,
		Location:   location,
		Now:        now(h.Now),
	})
	if err != nil {
		discardImage(ctx, h.Images, stored.Key, h.Logger)
		return nil, err
	}
	if err := unit.Listings().Save(ctx, listing); err != nil {
		discardImage(ctx, h.Images, stored.Key, h.Logger)
		return nil, err
	}
	if err := outbox.RecordPending(ctx, h.Outbox, h.Encoder, listing); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("crop listed", "crop_id", listing.ID, "seller_id", listing.SellerID)
	}
	result := dto.MapCrop(listing)
	return &result, nil
}

type UpdateCropCommand struct {
	ActorID      string
	ActorIsAdmin bool
	CropID       string
	Name         *string
	Price        *float64
	Quantity     *float64
	Unit         *string
	Location     *string
	Image        io.Reader
}

func (c UpdateCropCommand) Key() string { return updateCropKey }

type UpdateCropHandler struct {
	Images policies.ImageStore
	Now    func() time.Time
	Logger *slog.Logger
}

func (h *UpdateCropHandler) Handle(ctx context.Context, cmd UpdateCropCommand) (*dto.Crop, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	listing, err := loadOwned(ctx, unit, cmd.CropID, cmd.ActorID, cmd.ActorIsAdmin)
	if err != nil {
		return nil, err
	}
	at := now(h.Now)
	if err := listing.Update(domainlistings.UpdateParams{
		Name:     cmd.Name,
		Price:    cmd.Price,
		Quantity: cmd.Quantity,
		Unit:     cmd.Unit,
		Location: cmd.Location,
		Now:      at,
	}); err != nil {
		return nil, err
	}

	var replaced, added string
	if cmd.Image != nil {
		if h.Images == nil {
			return nil, errors.New("listings: image store unavailable")
		}
		stored, err := h.Images.StoreCropImage(ctx, cmd.Image)
		if err != nil {
			return nil, fmt.Errorf("store crop image: %w", err)
		}
		added = stored.Key
		replaced = listing.ReplaceImage(stored.URL, stored.Key, at)
	}
	if err := unit.Listings().Save(ctx, listing); err != nil {
		discardImage(ctx, h.Images, added, h.Logger)
		return nil, err
	}
	discardImage(ctx, h.Images, replaced, h.Logger)
	if h.Logger != nil {
		h.Logger.Info("crop updated", "crop_id", listing.ID, "actor_id", cmd.ActorID)
	}
	result := dto.MapCrop(listing)
	return &result, nil
}

type DeleteCropCommand struct {
	ActorID      string
	ActorIsAdmin bool
	CropID       string
}

func (c DeleteCropCommand) Key() string { return deleteCropKey }

// DeleteCropHandler removes the stored photo before the listing. A failed
// photo removal is logged and does not block the delete.
type DeleteCropHandler struct {
	Images  policies.ImageStore
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Now     func() time.Time
	Logger  *slog.Logger
}

func (h *DeleteCropHandler) Handle(ctx context.Context, cmd DeleteCropCommand) (*dto.Crop, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	listing, err := loadOwned(ctx, unit, cmd.CropID, cmd.ActorID, cmd.ActorIsAdmin)
	if err != nil {
		return nil, err
	}
	discardImage(ctx, h.Images, listing.ImageKey, h.Logger)
	if err := unit.Listings().Delete(ctx, listing.ID); err != nil {
		return nil, err
	}
	listing.MarkDeleted(now(h.Now))
	if err := outbox.RecordPending(ctx, h.Outbox, h.Encoder, listing); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("crop deleted", "crop_id", listing.ID, "actor_id", cmd.ActorID)
	}
	result := dto.MapCrop(listing)
	return &result, nil
}

func loadOwned(ctx context.Context, unit uow.UnitOfWork, cropID, actorID string, admin bool) (*domainlistings.Listing, error) {
	if strings.TrimSpace(cropID) == "" {
		return nil, domainlistings.ErrNotFound
	}
	listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(cropID))
	if err != nil {
		return nil, err
	}
	if !admin && !listing.OwnedBy(domainlistings.SellerID(actorID)) {
		return nil, domainlistings.ErrNotOwner
	}
	return listing, nil
}

func discardImage(ctx context.Context, images policies.ImageStore, key string, logger *slog.Logger) {
	if images == nil || key == "" {
		return
	}
	if err := images.Delete(ctx, key); err != nil && logger != nil {
		logger.Warn("crop image cleanup failed", "key", key, "error", err)
	}
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now()
}

var (
	_ commands.Handler[CreateCropCommand, *dto.Crop] = (*CreateCropHandler)(nil)
	_ commands.Handler[UpdateCropCommand, *dto.Crop] = (*UpdateCropHandler)(nil)
	_ commands.Handler[DeleteCropCommand, *dto.Crop] = (*DeleteCropHandler)(nil)
)
