package ginserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	gin "github.com/gin-gonic/gin"
)

const maxImageSizeBytes int64 = 5 * 1024 * 1024

// formImage reads an optional image part. It returns nil when the field is
// absent and errBadRequest for oversized or non-image uploads.
func formImage(c *gin.Context, field string) (io.Reader, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s could not be read", errBadRequest, field)
	}
	if fileHeader.Size > maxImageSizeBytes {
		return nil, fmt.Errorf("%w: image too large (max %d MB)", errBadRequest, maxImageSizeBytes/1024/1024)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", errBadRequest, field)
	}
	if int64(len(data)) > maxImageSizeBytes {
		return nil, fmt.Errorf("%w: image too large (max %d MB)", errBadRequest, maxImageSizeBytes/1024/1024)
	}
	if !isAllowedImageType(http.DetectContentType(data)) {
		return nil, fmt.Errorf("%w: only JPEG, PNG and GIF images are accepted", errBadRequest)
	}
	return bytes.NewReader(data), nil
}

func isAllowedImageType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif":
		return true
	default:
		return false
	}
}
