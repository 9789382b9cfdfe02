package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/cache"
	"github.com/dukerupert/rewear/internal/ledger"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
	"github.com/dukerupert/rewear/internal/websocket"
)

const (
	maxTitleLength = 255
	// maxUploadBody bounds a create request: every image at full size plus
	// room for the text fields.
	maxUploadBody = upload.MaxImages*upload.MaxImageSize + 1<<20
)

type ItemHandler struct {
	itemStore     *store.ItemStore
	categoryStore *store.CategoryStore
	ledger        *ledger.Ledger
	uploader      *upload.Uploader
	cache         cache.Cache
	events        notifier
	logger        *slog.Logger
}

func NewItemHandler(is *store.ItemStore, cs *store.CategoryStore, l *ledger.Ledger, u *upload.Uploader, c cache.Cache, hub *websocket.Hub, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		itemStore:     is,
		categoryStore: cs,
		ledger:        l,
		uploader:      u,
		cache:         c,
		events:        notifier{hub: hub},
		logger:        logger,
	}
}

// invalidate drops cached catalog reads after a write.
func (h *ItemHandler) invalidate(ctx context.Context) {
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("cache invalidate", "error", err)
	}
}

type listResponse struct {
	Items      []model.ItemView `json:"items"`
	Pagination model.Pagination `json:"pagination"`
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, page, err := h.itemStore.ListAvailable(r.Context(), f)
	if err != nil {
		h.logger.Error("list items", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching items")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      withImageURLs(h.uploader, items),
		Pagination: page,
	})
}

func parseFilter(r *http.Request) (model.ItemFilter, error) {
	q := r.URL.Query()
	f := model.ItemFilter{
		Category:  q.Get("category"),
		Size:      q.Get("size"),
		Condition: q.Get("condition"),
		Search:    q.Get("search"),
	}

	var err error
	if f.MinPoints, err = optionalInt(q.Get("minPoints"), "minPoints"); err != nil {
		return f, err
	}
	if f.MaxPoints, err = optionalInt(q.Get("maxPoints"), "maxPoints"); err != nil {
		return f, err
	}
	if v, err := optionalInt(q.Get("page"), "page"); err != nil {
		return f, err
	} else if v != nil {
		f.Page = *v
	}
	if v, err := optionalInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	} else if v != nil {
		f.Limit = *v
	}
	return f, nil
}

func optionalInt(s, name string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, errors.New(name + " must be an integer")
	}
	return &n, nil
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.itemStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get item", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	item.ImageURLs = h.uploader.URLs(item.Images)
	writeJSON(w, http.StatusOK, item)
}

type createResponse struct {
	Message string          `json:"message"`
	Item    *model.ItemView `json:"item"`
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	ni, err := parseNewItem(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := h.categoryStore.GetByID(r.Context(), ni.CategoryID)
	if err != nil {
		h.logger.Error("check category", "category_id", ni.CategoryID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error creating item")
		return
	}
	if category == nil {
		writeError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	keys, err := h.uploader.SaveAll(r.Context(), r.MultipartForm.File["images"])
	if errors.Is(err, upload.ErrInvalidImage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("save images", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error creating item")
		return
	}
	ni.Images = keys

	item, err := h.itemStore.Create(r.Context(), ni)
	if err != nil {
		h.uploader.DeleteAll(r.Context(), keys)
		h.logger.Error("create item", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error creating item")
		return
	}
	item.ImageURLs = h.uploader.URLs(item.Images)

	h.logger.Info("item listed", "item_id", item.ID, "user_id", item.UserID)
	h.events.notifyAdmins(websocket.NewMessage(websocket.EntityItem, websocket.ActionPending, item.ID, map[string]any{
		"title": item.Title,
	}))

	writeJSON(w, http.StatusCreated, createResponse{
		Message: "Item created successfully and pending approval",
		Item:    item,
	})
}

func parseNewItem(r *http.Request) (model.NewItem, error) {
	form := func(name string) string {
		return strings.TrimSpace(r.FormValue(name))
	}

	ni := model.NewItem{
		UserID:      auth.UserID(r.Context()),
		Title:       form("title"),
		Description: form("description"),
		Type:        form("type"),
		Brand:       form("brand"),
		Size:        form("size"),
		Condition:   form("condition"),
		Tags:        parseTags(r.MultipartForm.Value["tags"]),
	}

	switch {
	case ni.Title == "":
		return ni, errors.New("title is required")
	case utf8.RuneCountInString(ni.Title) > maxTitleLength:
		return ni, errors.New("title must be at most 255 characters")
	case ni.Size == "":
		return ni, errors.New("size is required")
	case ni.Condition == "":
		return ni, errors.New("condition is required")
	}

	categoryID, err := strconv.ParseInt(form("category_id"), 10, 64)
	if err != nil {
		return ni, errors.New("category_id must be an integer")
	}
	ni.CategoryID = categoryID

	pointValue, err := strconv.Atoi(form("point_value"))
	if err != nil || pointValue < 1 {
		return ni, errors.New("point_value must be a positive integer")
	}
	ni.PointValue = pointValue

	return ni, nil
}

// parseTags accepts tags as repeated fields, comma separated values, or both.
func parseTags(values []string) []string {
	tags := []string{}
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func (h *ItemHandler) MyItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.itemStore.ListByOwner(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list own items", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching your items")
		return
	}
	writeJSON(w, http.StatusOK, withImageURLs(h.uploader, items))
}

type updateResponse struct {
	Message string          `json:"message"`
	Item    *model.ItemView `json:"item"`
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var upd model.ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateUpdate(&upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.itemStore.Update(r.Context(), id, auth.UserID(r.Context()), upd)
	if err != nil {
		writeOwnerError(w, h.logger, "update item", err)
		return
	}
	item.ImageURLs = h.uploader.URLs(item.Images)
	if item.IsApproved {
		h.invalidate(r.Context())
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Message: "Item updated successfully",
		Item:    item,
	})
}

func validateUpdate(upd *model.ItemUpdate) error {
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return errors.New("title cannot be empty")
		}
		if utf8.RuneCountInString(t) > maxTitleLength {
			return errors.New("title must be at most 255 characters")
		}
		upd.Title = &t
	}
	if upd.Condition != nil {
		c := strings.TrimSpace(*upd.Condition)
		if c == "" {
			return errors.New("condition cannot be empty")
		}
		upd.Condition = &c
	}
	if upd.PointValue != nil && *upd.PointValue < 1 {
		return errors.New("point_value must be a positive integer")
	}
	if upd.Tags != nil {
		upd.Tags = parseTags(upd.Tags)
	}
	return nil
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.itemStore.Delete(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeOwnerError(w, h.logger, "delete item", err)
		return
	}
	h.uploader.DeleteAll(r.Context(), item.Images)
	if item.IsApproved {
		h.invalidate(r.Context())
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deleted successfully"})
}

type redeemResponse struct {
	Message         string `json:"message"`
	PointsUsed      int    `json:"pointsUsed"`
	RemainingPoints int    `json:"remainingPoints"`
}

func (h *ItemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	receipt, err := h.ledger.Redeem(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeLedgerError(w, h.logger, "redeem item", err)
		return
	}
	h.invalidate(r.Context())

	h.events.broadcast(websocket.NewMessage(websocket.EntityItem, websocket.ActionRedeemed, receipt.ItemID, nil))
	h.events.notify(receipt.OwnerID, websocket.NewMessage(websocket.EntityItem, websocket.ActionRedeemed, receipt.ItemID, map[string]any{
		"redeemer_id": receipt.RedeemerID,
		"points":      receipt.PointsUsed,
	}))

	writeJSON(w, http.StatusOK, redeemResponse{
		Message:         "Item redeemed successfully",
		PointsUsed:      receipt.PointsUsed,
		RemainingPoints: receipt.RemainingPoints,
	})
}
