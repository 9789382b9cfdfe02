package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
)

const (
	MaxImages    = 5
	MaxImageSize = 5 << 20
)

// ErrInvalidImage wraps every client-caused upload failure.
var ErrInvalidImage = errors.New("invalid image upload")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Uploader struct {
	storage Storage
	logger  *slog.Logger
}

func NewUploader(storage Storage, logger *slog.Logger) *Uploader {
	return &Uploader{storage: storage, logger: logger}
}

// SaveAll validates and stores a listing's photos, returning their keys in
// upload order. Either every file is stored or none is.
func (u *Uploader) SaveAll(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrInvalidImage)
	}
	if len(files) > MaxImages {
		return nil, fmt.Errorf("%w: at most %d images are allowed", ErrInvalidImage, MaxImages)
	}

	keys := make([]string, 0, len(files))
	for _, fh := range files {
		key, err := u.save(ctx, fh)
		if err != nil {
			u.DeleteAll(ctx, keys)
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (u *Uploader) save(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxImageSize {
		return "", fmt.Errorf("%w: %s is larger than 5MB", ErrInvalidImage, fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", fmt.Errorf("%w: %s is larger than 5MB", ErrInvalidImage, fh.Filename)
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s is not a jpeg, png, gif or webp image", ErrInvalidImage, fh.Filename)
	}

	key := uuid.NewString() + ext
	if err := u.storage.Save(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// DeleteAll removes stored images. Failures are logged, not returned; a
// leftover object is harmless.
func (u *Uploader) DeleteAll(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := u.storage.Delete(ctx, key); err != nil {
			u.logger.Warn("failed to delete image", "key", key, "error", err)
		}
	}
}

// URLs maps keys to client URLs.
func (u *Uploader) URLs(keys []string) []string {
	urls := make([]string, len(keys))
	for i, key := range keys {
		urls[i] = u.storage.URL(key)
	}
	return urls
}
