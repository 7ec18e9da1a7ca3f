package policies

import (
	"context"
	"io"
)

type StoredImage struct {
	URL string
	Key string
}

// ImageStore resizes uploaded pictures and keeps them in object storage.
type ImageStore interface {
	StoreCropImage(ctx context.Context, r io.Reader) (StoredImage, error)
	StoreProfileImage(ctx context.Context, r io.Reader) (StoredImage, error)
	Delete(ctx context.Context, key string) error
}
