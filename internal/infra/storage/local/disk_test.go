package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskUploadAndDelete(t *testing.T) {
	root := t.TempDir()
	d := &Disk{Root: root, URLPrefix: "/uploads/"}
	ctx := context.Background()

	url, err := d.Upload(ctx, "crops/abc.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "/uploads/crops/abc.jpg" {
		t.Fatalf("unexpected url %q", url)
	}
	data, err := os.ReadFile(filepath.Join(root, "crops", "abc.jpg"))
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("expected stored file, got %q (%v)", data, err)
	}

	if err := d.Delete(ctx, "crops/abc.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := d.Delete(ctx, "crops/abc.jpg"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
}

func TestDiskKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	d := &Disk{Root: root}

	url, err := d.Upload(context.Background(), "../../etc/evil.jpg", strings.NewReader("x"), "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "/uploads/etc/evil.jpg" {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := os.Stat(filepath.Join(root, "etc", "evil.jpg")); err != nil {
		t.Fatalf("expected file under root: %v", err)
	}
	if _, err := d.Upload(context.Background(), "  ", strings.NewReader("x"), ""); !errors.Is(err, ErrKeyInvalid) {
		t.Fatalf("expected ErrKeyInvalid, got %v", err)
	}
}
