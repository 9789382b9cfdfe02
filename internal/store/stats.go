package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/model"
)

type StatsStore struct {
	db *sqlx.DB
}

func NewStatsStore(db *sqlx.DB) *StatsStore {
	return &StatsStore{db: db}
}

// Public returns the landing page counters. Admin accounts are not counted
// as members.
func (s *StatsStore) Public(ctx context.Context) (*model.PublicStats, error) {
	var st model.PublicStats
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM items WHERE is_approved = TRUE) AS total_items,
			(SELECT COUNT(*) FROM users WHERE is_admin = FALSE) AS total_users,
			(SELECT COUNT(*) FROM redemptions WHERE status = ?) AS total_exchanges`),
		model.RedemptionCompleted)
	if err != nil {
		return nil, fmt.Errorf("public stats: %w", err)
	}
	return &st, nil
}

func (s *StatsStore) Admin(ctx context.Context) (*model.AdminStats, error) {
	var st model.AdminStats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE is_admin = FALSE) AS total_users,
			(SELECT COUNT(*) FROM items) AS total_items,
			(SELECT COUNT(*) FROM items WHERE is_approved = TRUE) AS approved_items,
			(SELECT COUNT(*) FROM items WHERE is_available = FALSE) AS redeemed_items,
			(SELECT COUNT(*) FROM redemptions) AS total_redemptions,
			(SELECT COALESCE(SUM(points_used), 0) FROM redemptions) AS total_points_circulated`)
	if err != nil {
		return nil, fmt.Errorf("admin stats: %w", err)
	}
	return &st, nil
}
