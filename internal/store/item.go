package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/model"
)

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemCols = `i.id, i.user_id, i.title, i.description, i.category_id, i.type, i.brand, i.size,
	i.condition, i.point_value, i.is_available, i.is_approved, i.images, i.tags,
	i.created_at, i.updated_at`

const itemViewSelect = `SELECT ` + itemCols + `,
	c.name AS category_name, u.first_name AS owner_first_name, u.last_name AS owner_last_name
	FROM items i
	JOIN categories c ON c.id = i.category_id
	JOIN users u ON u.id = i.user_id`

// Create stores a new listing. Listings start available and pending approval.
func (s *ItemStore) Create(ctx context.Context, ni model.NewItem) (*model.ItemView, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`INSERT INTO items (user_id, title, description, category_id, type, brand, size, condition, point_value, images, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		ni.UserID, ni.Title, ni.Description, ni.CategoryID, ni.Type, ni.Brand, ni.Size, ni.Condition,
		ni.PointValue, model.StringList(ni.Images), model.StringList(ni.Tags),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns an item regardless of approval or availability.
func (s *ItemStore) GetByID(ctx context.Context, id int64) (*model.ItemView, error) {
	var it model.ItemView
	err := s.db.GetContext(ctx, &it, s.db.Rebind(itemViewSelect+` WHERE i.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// ListFeatured returns the newest redeemable items.
func (s *ItemStore) ListFeatured(ctx context.Context, limit int) ([]model.ItemView, error) {
	items := []model.ItemView{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(itemViewSelect+`
		WHERE i.is_approved = TRUE AND i.is_available = TRUE
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list featured items: %w", err)
	}
	return items, nil
}

// ListByOwner returns every item a user has listed, in any state, newest first.
func (s *ItemStore) ListByOwner(ctx context.Context, userID int64) ([]model.ItemView, error) {
	items := []model.ItemView{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(itemViewSelect+`
		WHERE i.user_id = ?
		ORDER BY i.created_at DESC, i.id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list items by owner: %w", err)
	}
	return items, nil
}

// ListPending returns items awaiting moderation, oldest first.
func (s *ItemStore) ListPending(ctx context.Context) ([]model.ItemView, error) {
	items := []model.ItemView{}
	err := s.db.SelectContext(ctx, &items, itemViewSelect+`
		WHERE i.is_approved = FALSE
		ORDER BY i.created_at ASC, i.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	return items, nil
}

// Update applies a partial update to an item owned by ownerID. Redeemed items
// are frozen.
func (s *ItemStore) Update(ctx context.Context, id, ownerID int64, upd model.ItemUpdate) (*model.ItemView, error) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Type != nil {
		add("type", *upd.Type)
	}
	if upd.Brand != nil {
		add("brand", *upd.Brand)
	}
	if upd.Condition != nil {
		add("condition", *upd.Condition)
	}
	if upd.PointValue != nil {
		add("point_value", *upd.PointValue)
	}
	if upd.Tags != nil {
		add("tags", model.StringList(upd.Tags))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, ownerID)

	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE items SET `+strings.Join(sets, ", ")+`
		 WHERE id = ? AND user_id = ? AND is_available = TRUE`), args...)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, s.mutationError(ctx, id, ownerID)
	}
	return s.GetByID(ctx, id)
}

// Delete removes an available item owned by ownerID and returns it so the
// caller can release its images.
func (s *ItemStore) Delete(ctx context.Context, id, ownerID int64) (*model.ItemView, error) {
	it, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM items WHERE id = ? AND user_id = ? AND is_available = TRUE`), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, s.mutationError(ctx, id, ownerID)
	}
	return it, nil
}

// mutationError explains why a guarded owner mutation matched no rows.
func (s *ItemStore) mutationError(ctx context.Context, id, ownerID int64) error {
	it, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case it == nil:
		return ErrNotFound
	case it.UserID != ownerID:
		return ErrNotOwner
	default:
		return ErrItemRedeemed
	}
}
