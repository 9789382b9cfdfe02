package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/rewear/internal/cache"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
)

const featuredLimit = 8

type PublicHandler struct {
	categoryStore *store.CategoryStore
	itemStore     *store.ItemStore
	statsStore    *store.StatsStore
	uploader      *upload.Uploader
	cache         cache.Cache
	logger        *slog.Logger
}

func NewPublicHandler(cs *store.CategoryStore, is *store.ItemStore, ss *store.StatsStore, u *upload.Uploader, c cache.Cache, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		categoryStore: cs,
		itemStore:     is,
		statsStore:    ss,
		uploader:      u,
		cache:         c,
		logger:        logger,
	}
}

// cached serves key from the cache, falling back to load. Cache failures
// only cost a trip to the database. A miss is filled under the generation
// the lookup saw, and never after a failed lookup.
func cached[T any](ctx context.Context, c cache.Cache, logger *slog.Logger, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	ticket, hit, getErr := c.Get(ctx, key, &v)
	if getErr != nil {
		logger.Warn("cache get", "key", key, "error", getErr)
	}
	if hit {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if getErr == nil {
		if err := c.Set(ctx, ticket, v); err != nil {
			logger.Warn("cache set", "key", key, "error", err)
		}
	}
	return v, nil
}

func (h *PublicHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := cached(r.Context(), h.cache, h.logger, "categories", h.categoryStore.List)
	if err != nil {
		h.logger.Error("list categories", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching categories")
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *PublicHandler) Featured(w http.ResponseWriter, r *http.Request) {
	items, err := cached(r.Context(), h.cache, h.logger, "featured", func(ctx context.Context) ([]model.ItemView, error) {
		return h.itemStore.ListFeatured(ctx, featuredLimit)
	})
	if err != nil {
		h.logger.Error("list featured items", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching featured items")
		return
	}
	writeJSON(w, http.StatusOK, withImageURLs(h.uploader, items))
}

func (h *PublicHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := cached(r.Context(), h.cache, h.logger, "stats", h.statsStore.Public)
	if err != nil {
		h.logger.Error("public stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
