package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/model"
)

// RedemptionStore reads the redemption history. Redemptions are only ever
// written by the ledger.
type RedemptionStore struct {
	db *sqlx.DB
}

func NewRedemptionStore(db *sqlx.DB) *RedemptionStore {
	return &RedemptionStore{db: db}
}

const redemptionCols = `r.id, r.item_id, r.redeemer_id, r.owner_id, r.points_used, r.status, r.created_at`

// ListByRedeemer returns what a user has redeemed, with each item's owner.
func (s *RedemptionStore) ListByRedeemer(ctx context.Context, userID int64) ([]model.RedemptionView, error) {
	out := []model.RedemptionView{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT `+redemptionCols+`, i.title AS item_title, i.images,
		       u.first_name AS counterparty_first_name, u.last_name AS counterparty_last_name
		FROM redemptions r
		JOIN items i ON i.id = r.item_id
		JOIN users u ON u.id = r.owner_id
		WHERE r.redeemer_id = ?
		ORDER BY r.created_at DESC, r.id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions by redeemer: %w", err)
	}
	return out, nil
}

// ListByOwner returns redemptions of a user's items, with each redeemer.
func (s *RedemptionStore) ListByOwner(ctx context.Context, userID int64) ([]model.RedemptionView, error) {
	out := []model.RedemptionView{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT `+redemptionCols+`, i.title AS item_title, i.images,
		       u.first_name AS counterparty_first_name, u.last_name AS counterparty_last_name
		FROM redemptions r
		JOIN items i ON i.id = r.item_id
		JOIN users u ON u.id = r.redeemer_id
		WHERE r.owner_id = ?
		ORDER BY r.created_at DESC, r.id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions by owner: %w", err)
	}
	return out, nil
}

// CountByItem returns how many redemptions reference an item.
func (s *RedemptionStore) CountByItem(ctx context.Context, itemID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM redemptions WHERE item_id = ?`), itemID); err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}
