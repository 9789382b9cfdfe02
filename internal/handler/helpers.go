package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/rewear/internal/ledger"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
	"github.com/dukerupert/rewear/internal/websocket"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError maps a ledger failure onto the HTTP error taxonomy.
// Internal failures are logged and reported without detail.
func writeLedgerError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch ledger.KindOf(err) {
	case ledger.KindNotFound:
		writeError(w, http.StatusNotFound, ledgerMessage(err))
	case ledger.KindPrecondition:
		writeError(w, http.StatusBadRequest, ledgerMessage(err))
	case ledger.KindConflict:
		writeError(w, http.StatusConflict, "Too many concurrent requests, please try again")
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

func ledgerMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "Item not found"
	case errors.Is(err, ledger.ErrItemUnavailable):
		return "Item not found or not available"
	case errors.Is(err, ledger.ErrSelfRedemption):
		return "Cannot redeem your own item"
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return "Insufficient points"
	case errors.Is(err, ledger.ErrAlreadyApproved):
		return "Item is already approved"
	default:
		return err.Error()
	}
}

// writeOwnerError reports a failed owner mutation from the item store.
func writeOwnerError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, store.ErrNotOwner):
		writeError(w, http.StatusForbidden, "Not authorized to modify this item")
	case errors.Is(err, store.ErrItemRedeemed):
		writeError(w, http.StatusBadRequest, "Cannot modify a redeemed item")
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

// withImageURLs fills in client URLs for stored image keys.
func withImageURLs(u *upload.Uploader, items []model.ItemView) []model.ItemView {
	if items == nil {
		return []model.ItemView{}
	}
	for i := range items {
		items[i].ImageURLs = u.URLs(items[i].Images)
	}
	return items
}

// notifier fans item events out over the hub. A nil hub drops them.
type notifier struct {
	hub *websocket.Hub
}

func (n notifier) broadcast(msg websocket.Message) {
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}

func (n notifier) notify(userID int64, msg websocket.Message) {
	if n.hub != nil {
		n.hub.Notify(userID, msg)
	}
}

func (n notifier) notifyAdmins(msg websocket.Message) {
	if n.hub != nil {
		n.hub.NotifyAdmins(msg)
	}
}
