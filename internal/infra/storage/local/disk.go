package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"kisaanconnect/internal/infra/storage/s3"
)

var ErrKeyInvalid = errors.New("local: object key is invalid")

// Disk stores objects under Root and serves them below URLPrefix. It stands
// in for object storage when no S3 endpoint is configured.
type Disk struct {
	Root      string
	URLPrefix string
	Logger    *slog.Logger
}

func (d *Disk) Upload(ctx context.Context, key string, reader io.Reader, _ string) (string, error) {
	if reader == nil {
		return "", errors.New("local: reader is required")
	}
	target, clean, err := d.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("local: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("local: create file: %w", err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("local: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("local: close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("local: move file: %w", err)
	}
	url := d.url(clean)
	if d.Logger != nil {
		d.Logger.Info("local upload completed", "key", clean, "url", url)
	}
	return url, nil
}

// Delete removes the file. A missing file is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	target, _, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local: remove file: %w", err)
	}
	return nil
}

func (d *Disk) resolve(key string) (string, string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", "", ErrKeyInvalid
	}
	return filepath.Join(d.Root, filepath.FromSlash(clean)), clean, nil
}

func (d *Disk) url(key string) string {
	prefix := strings.TrimRight(d.URLPrefix, "/")
	if prefix == "" {
		prefix = "/uploads"
	}
	return prefix + "/" + key
}

var _ s3.Uploader = (*Disk)(nil)
