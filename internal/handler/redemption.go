package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
)

type RedemptionHandler struct {
	redemptionStore *store.RedemptionStore
	uploader        *upload.Uploader
	logger          *slog.Logger
}

func NewRedemptionHandler(rs *store.RedemptionStore, u *upload.Uploader, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{redemptionStore: rs, uploader: u, logger: logger}
}

// redemptionJSON adds image URLs to a redemption history row.
type redemptionJSON struct {
	model.RedemptionView
	ImageURLs []string `json:"image_urls"`
}

func (h *RedemptionHandler) toJSON(views []model.RedemptionView) []redemptionJSON {
	out := make([]redemptionJSON, len(views))
	for i, v := range views {
		out[i] = redemptionJSON{RedemptionView: v, ImageURLs: h.uploader.URLs(v.Images)}
	}
	return out
}

// MyRedemptions lists items the caller has redeemed.
func (h *RedemptionHandler) MyRedemptions(w http.ResponseWriter, r *http.Request) {
	views, err := h.redemptionStore.ListByRedeemer(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list redemptions", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching redemptions")
		return
	}
	writeJSON(w, http.StatusOK, h.toJSON(views))
}

// MyItemsRedeemed lists redemptions of the caller's own items.
func (h *RedemptionHandler) MyItemsRedeemed(w http.ResponseWriter, r *http.Request) {
	views, err := h.redemptionStore.ListByOwner(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list item redemptions", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching item redemptions")
		return
	}
	writeJSON(w, http.StatusOK, h.toJSON(views))
}
