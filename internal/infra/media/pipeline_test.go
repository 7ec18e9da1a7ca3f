package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

type memoryUploader struct {
	objects map[string][]byte
	deleted []string
}

func (m *memoryUploader) Upload(_ context.Context, key string, r io.Reader, contentType string) (string, error) {
	if contentType != "image/jpeg" {
		return "", errors.New("unexpected content type " + contentType)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return "/uploads/" + key, nil
}

func (m *memoryUploader) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func pngOf(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, G: 120, B: 30, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return &buf
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode stored image: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestCropImageFitsInsideBounds(t *testing.T) {
	up := &memoryUploader{}
	p := &Pipeline{Uploader: up}

	stored, err := p.StoreCropImage(context.Background(), pngOf(t, 1600, 800))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(stored.Key, "crops/") || !strings.HasSuffix(stored.Key, ".jpg") {
		t.Fatalf("unexpected key %q", stored.Key)
	}
	if stored.URL != "/uploads/"+stored.Key {
		t.Fatalf("unexpected url %q", stored.URL)
	}
	w, h := decodedSize(t, up.objects[stored.Key])
	if w != 800 || h != 400 {
		t.Fatalf("expected 800x400, got %dx%d", w, h)
	}
}

func TestProfileImageIsSquare(t *testing.T) {
	up := &memoryUploader{}
	p := &Pipeline{Uploader: up}

	stored, err := p.StoreProfileImage(context.Background(), pngOf(t, 900, 300))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(stored.Key, "profile/") {
		t.Fatalf("unexpected key %q", stored.Key)
	}
	w, h := decodedSize(t, up.objects[stored.Key])
	if w != 500 || h != 500 {
		t.Fatalf("expected 500x500, got %dx%d", w, h)
	}

	if err := p.Delete(context.Background(), stored.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(up.deleted) != 1 || up.deleted[0] != stored.Key {
		t.Fatalf("expected delete of %s, got %v", stored.Key, up.deleted)
	}
}

func TestResizeRejectsGarbage(t *testing.T) {
	_, err := Resize(strings.NewReader("definitely not an image"), nil)
	if !errors.Is(err, ErrImageInvalid) {
		t.Fatalf("expected ErrImageInvalid, got %v", err)
	}
}
