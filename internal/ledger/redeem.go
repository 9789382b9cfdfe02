package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/metrics"
	"github.com/dukerupert/rewear/internal/model"
)

// Receipt describes a committed redemption.
type Receipt struct {
	RedemptionID    int64
	ItemID          int64
	OwnerID         int64
	RedeemerID      int64
	PointsUsed      int
	RemainingPoints int
}

// Redeem exchanges the redeemer's points for an item. In one transaction it
// debits the redeemer by the item's point value, takes the item off the
// catalog and appends a redemption record. The owner is not credited; owners
// earn points when their listing is approved.
//
// Among concurrent redemptions of the same item exactly one succeeds; the
// rest get ErrItemUnavailable.
func (l *Ledger) Redeem(ctx context.Context, itemID, redeemerID int64) (*Receipt, error) {
	var receipt *Receipt
	err := l.run(ctx, "redeem", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := l.redeem(ctx, tx, itemID, redeemerID)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddPoints("debited", receipt.PointsUsed)
	l.logger.Info("item redeemed",
		"item_id", receipt.ItemID,
		"redeemer_id", receipt.RedeemerID,
		"owner_id", receipt.OwnerID,
		"points", receipt.PointsUsed,
	)
	return receipt, nil
}

func (l *Ledger) redeem(ctx context.Context, tx *sqlx.Tx, itemID, redeemerID int64) (*Receipt, error) {
	var item struct {
		UserID     int64 `db:"user_id"`
		PointValue int   `db:"point_value"`
	}
	err := tx.GetContext(ctx, &item, tx.Rebind(
		`SELECT user_id, point_value FROM items
		 WHERE id = ? AND is_available = TRUE AND is_approved = TRUE`+l.forUpdate()), itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}

	if item.UserID == redeemerID {
		return nil, ErrSelfRedemption
	}

	var balance int
	err = tx.GetContext(ctx, &balance, tx.Rebind(`SELECT points FROM users WHERE id = ?`+l.forUpdate()), redeemerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select redeemer: %w", err)
	}
	if balance < item.PointValue {
		return nil, ErrInsufficientPoints
	}

	// Each write restates its precondition so a stale read cannot slip through.
	var remaining int
	err = tx.QueryRowxContext(ctx, tx.Rebind(
		`UPDATE users SET points = points - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND points >= ? RETURNING points`),
		item.PointValue, redeemerID, item.PointValue,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientPoints
	}
	if err != nil {
		return nil, fmt.Errorf("debit redeemer: %w", err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE items SET is_available = FALSE, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_available = TRUE AND is_approved = TRUE`), itemID)
	if err != nil {
		return nil, fmt.Errorf("mark item redeemed: %w", err)
	}
	if ok, err := expectOneRow(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrItemUnavailable
	}

	var redemptionID int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(
		`INSERT INTO redemptions (item_id, redeemer_id, owner_id, points_used, status)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`),
		itemID, redeemerID, item.UserID, item.PointValue, model.RedemptionCompleted,
	).Scan(&redemptionID)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}

	return &Receipt{
		RedemptionID:    redemptionID,
		ItemID:          itemID,
		OwnerID:         item.UserID,
		RedeemerID:      redeemerID,
		PointsUsed:      item.PointValue,
		RemainingPoints: remaining,
	}, nil
}
