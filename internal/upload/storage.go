// Package upload validates item photos and stores them on local disk or in
// an S3-compatible bucket.
package upload

import (
	"context"
	"errors"
	"io"
	"regexp"
)

var ErrNotFound = errors.New("image not found")

// Storage persists image objects under opaque keys.
type Storage interface {
	Save(ctx context.Context, key, contentType string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	// URL is where clients fetch the object.
	URL(key string) string
}

var keyPattern = regexp.MustCompile(`^[0-9a-f-]{36}\.(jpg|png|gif|webp)$`)

// ValidKey reports whether key has the shape of a generated image key.
// Anything else is rejected before touching storage.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
