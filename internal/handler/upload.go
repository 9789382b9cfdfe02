package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/rewear/internal/upload"
)

type UploadHandler struct {
	storage upload.Storage
	logger  *slog.Logger
}

func NewUploadHandler(s upload.Storage, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{storage: s, logger: logger}
}

// Serve streams a stored item image. Keys are generated by the uploader, so
// anything else is a 404 without touching storage.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !upload.ValidKey(key) {
		http.NotFound(w, r)
		return
	}

	body, contentType, err := h.storage.Open(r.Context(), key)
	if errors.Is(err, upload.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("open image", "key", key, "error", err)
		http.Error(w, "failed to load image", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	// Keys are content-unique and never rewritten.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream image", "key", key, "error", err)
	}
}
