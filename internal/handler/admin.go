package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/cache"
	"github.com/dukerupert/rewear/internal/ledger"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
	"github.com/dukerupert/rewear/internal/websocket"
)

type AdminHandler struct {
	itemStore  *store.ItemStore
	userStore  *store.UserStore
	statsStore *store.StatsStore
	ledger     *ledger.Ledger
	uploader   *upload.Uploader
	cache      cache.Cache
	events     notifier
	logger     *slog.Logger
}

func NewAdminHandler(is *store.ItemStore, us *store.UserStore, ss *store.StatsStore, l *ledger.Ledger, u *upload.Uploader, c cache.Cache, hub *websocket.Hub, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		itemStore:  is,
		userStore:  us,
		statsStore: ss,
		ledger:     l,
		uploader:   u,
		cache:      c,
		events:     notifier{hub: hub},
		logger:     logger,
	}
}

func (h *AdminHandler) invalidate(ctx context.Context) {
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("cache invalidate", "error", err)
	}
}

func (h *AdminHandler) PendingItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.itemStore.ListPending(r.Context())
	if err != nil {
		h.logger.Error("list pending items", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching pending items")
		return
	}
	writeJSON(w, http.StatusOK, withImageURLs(h.uploader, items))
}

type approveResponse struct {
	Message       string `json:"message"`
	PointsAwarded int    `json:"pointsAwarded"`
}

func (h *AdminHandler) ApproveItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	approval, err := h.ledger.Approve(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, "approve item", err)
		return
	}
	h.invalidate(r.Context())

	h.events.broadcast(websocket.NewMessage(websocket.EntityItem, websocket.ActionListed, approval.ItemID, map[string]any{
		"title": approval.Title,
	}))
	h.events.notify(approval.OwnerID, websocket.NewMessage(websocket.EntityItem, websocket.ActionApproved, approval.ItemID, map[string]any{
		"title":  approval.Title,
		"points": approval.PointsAwarded,
	}))

	writeJSON(w, http.StatusOK, approveResponse{
		Message:       "Item approved successfully",
		PointsAwarded: approval.PointsAwarded,
	})
}

func (h *AdminHandler) RejectItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rejection, err := h.ledger.Reject(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, "reject item", err)
		return
	}
	h.uploader.DeleteAll(r.Context(), rejection.Images)

	h.events.notify(rejection.OwnerID, websocket.NewMessage(websocket.EntityItem, websocket.ActionRejected, rejection.ItemID, map[string]any{
		"title": rejection.Title,
	}))

	writeJSON(w, http.StatusOK, map[string]string{"message": "Item rejected and removed successfully"})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsStore.Admin(r.Context())
	if err != nil {
		h.logger.Error("admin stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.ListSummaries(r.Context())
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching users")
		return
	}
	if users == nil {
		users = []model.UserSummary{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if id == auth.UserID(r.Context()) {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	// Collect image keys first; the rows cascade away with the user.
	items, err := h.itemStore.ListByOwner(r.Context(), id)
	if err != nil {
		h.logger.Error("list user items", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error removing user")
		return
	}

	err = h.userStore.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("delete user", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error removing user")
		return
	}

	for _, it := range items {
		h.uploader.DeleteAll(r.Context(), it.Images)
	}
	h.invalidate(r.Context())

	h.logger.Info("user removed", "user_id", id, "by", auth.UserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "User removed successfully"})
}
