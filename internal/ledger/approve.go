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

// Approval describes a committed approval.
type Approval struct {
	ItemID        int64
	OwnerID       int64
	Title         string
	PointsAwarded int
}

// Approve publishes a pending item and credits its owner with the item's
// point value. Approving twice fails with ErrAlreadyApproved and credits
// nothing.
func (l *Ledger) Approve(ctx context.Context, itemID int64) (*Approval, error) {
	var approval *Approval
	err := l.run(ctx, "approve", func(ctx context.Context, tx *sqlx.Tx) error {
		a, err := l.approve(ctx, tx, itemID)
		if err != nil {
			return err
		}
		approval = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddPoints("credited", approval.PointsAwarded)
	l.logger.Info("item approved",
		"item_id", approval.ItemID,
		"owner_id", approval.OwnerID,
		"points", approval.PointsAwarded,
	)
	return approval, nil
}

func (l *Ledger) approve(ctx context.Context, tx *sqlx.Tx, itemID int64) (*Approval, error) {
	var item struct {
		UserID     int64  `db:"user_id"`
		Title      string `db:"title"`
		PointValue int    `db:"point_value"`
		IsApproved bool   `db:"is_approved"`
	}
	err := tx.GetContext(ctx, &item, tx.Rebind(
		`SELECT user_id, title, point_value, is_approved FROM items WHERE id = ?`+l.forUpdate()), itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}
	if item.IsApproved {
		return nil, ErrAlreadyApproved
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE items SET is_approved = TRUE, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_approved = FALSE`), itemID)
	if err != nil {
		return nil, fmt.Errorf("approve item: %w", err)
	}
	if ok, err := expectOneRow(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrAlreadyApproved
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(
		`UPDATE users SET points = points + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
		item.PointValue, item.UserID)
	if err != nil {
		return nil, fmt.Errorf("credit owner: %w", err)
	}
	if ok, err := expectOneRow(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}

	return &Approval{
		ItemID:        itemID,
		OwnerID:       item.UserID,
		Title:         item.Title,
		PointsAwarded: item.PointValue,
	}, nil
}

// Rejection describes a deleted pending item.
type Rejection struct {
	ItemID  int64
	OwnerID int64
	Title   string
	Images  []string
}

// Reject deletes a pending item. Approved items cannot be rejected. No
// points move.
func (l *Ledger) Reject(ctx context.Context, itemID int64) (*Rejection, error) {
	var rejection *Rejection
	err := l.run(ctx, "reject", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := l.reject(ctx, tx, itemID)
		if err != nil {
			return err
		}
		rejection = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("item rejected", "item_id", rejection.ItemID, "owner_id", rejection.OwnerID)
	return rejection, nil
}

func (l *Ledger) reject(ctx context.Context, tx *sqlx.Tx, itemID int64) (*Rejection, error) {
	var item struct {
		UserID     int64            `db:"user_id"`
		Title      string           `db:"title"`
		Images     model.StringList `db:"images"`
		IsApproved bool             `db:"is_approved"`
	}
	err := tx.GetContext(ctx, &item, tx.Rebind(
		`SELECT user_id, title, images, is_approved FROM items WHERE id = ?`+l.forUpdate()), itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}
	if item.IsApproved {
		return nil, ErrAlreadyApproved
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM items WHERE id = ? AND is_approved = FALSE`), itemID)
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	if ok, err := expectOneRow(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrAlreadyApproved
	}

	return &Rejection{
		ItemID:  itemID,
		OwnerID: item.UserID,
		Title:   item.Title,
		Images:  item.Images,
	}, nil
}
