package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/infra/storage/s3"
)

var (
	ErrImageTooLarge = errors.New("media: image exceeds the upload limit")
	ErrImageInvalid  = errors.New("media: unsupported or corrupt image")
)

const (
	MaxUploadBytes = 5 << 20
	jpegQuality    = 82

	cropWidth     = 800
	cropHeight    = 600
	profileWidth  = 500
	profileHeight = 500
)

// Pipeline normalizes uploads to JPEG and stores them. Crop photos keep their
// aspect ratio inside 800x600; profile pictures are cropped to 500x500.
type Pipeline struct {
	Uploader s3.Uploader
	Logger   *slog.Logger
}

func (p *Pipeline) StoreCropImage(ctx context.Context, r io.Reader) (policies.StoredImage, error) {
	return p.store(ctx, "crops", r, func(img image.Image) image.Image {
		return imaging.Fit(img, cropWidth, cropHeight, imaging.Lanczos)
	})
}

func (p *Pipeline) StoreProfileImage(ctx context.Context, r io.Reader) (policies.StoredImage, error) {
	return p.store(ctx, "profile", r, func(img image.Image) image.Image {
		return imaging.Fill(img, profileWidth, profileHeight, imaging.Center, imaging.Lanczos)
	})
}

func (p *Pipeline) Delete(ctx context.Context, key string) error {
	if p.Uploader == nil || key == "" {
		return nil
	}
	return p.Uploader.Delete(ctx, key)
}

func (p *Pipeline) store(ctx context.Context, folder string, r io.Reader, transform func(image.Image) image.Image) (policies.StoredImage, error) {
	if p.Uploader == nil {
		return policies.StoredImage{}, errors.New("media: uploader is not configured")
	}
	data, err := Resize(r, transform)
	if err != nil {
		return policies.StoredImage{}, err
	}
	key := fmt.Sprintf("%s/%s.jpg", folder, uuid.NewString())
	url, err := p.Uploader.Upload(ctx, key, bytes.NewReader(data), "image/jpeg")
	if err != nil {
		return policies.StoredImage{}, fmt.Errorf("upload image: %w", err)
	}
	if p.Logger != nil {
		p.Logger.Debug("image stored", "key", key, "bytes", len(data))
	}
	return policies.StoredImage{URL: url, Key: key}, nil
}

// Resize decodes r, applies transform and encodes the result as JPEG.
func Resize(r io.Reader, transform func(image.Image) image.Image) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, ErrImageTooLarge
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageInvalid, err)
	}
	if transform != nil {
		img = transform(img)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

var _ policies.ImageStore = (*Pipeline)(nil)
