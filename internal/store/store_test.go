package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/database"
	"github.com/dukerupert/rewear/internal/model"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sqlx.DB, email string, points int) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), NewUser{
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		Points:       points,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// createTestItem lists a pending item under Accessories.
func createTestItem(t *testing.T, db *sqlx.DB, ownerID int64, title string, points int) *model.ItemView {
	t.Helper()
	it, err := NewItemStore(db).Create(context.Background(), model.NewItem{
		UserID:     ownerID,
		Title:      title,
		CategoryID: categoryID(t, db, "Accessories"),
		Size:       "M",
		Condition:  "good",
		PointValue: points,
		Images:     []string{fmt.Sprintf("%s.jpg", title)},
	})
	if err != nil {
		t.Fatalf("create item %s: %v", title, err)
	}
	return it
}

func categoryID(t *testing.T, db *sqlx.DB, name string) int64 {
	t.Helper()
	var id int64
	if err := db.Get(&id, `SELECT id FROM categories WHERE name = ?`, name); err != nil {
		t.Fatalf("lookup category %s: %v", name, err)
	}
	return id
}

// approve flips the moderation flag directly; crediting is the ledger's job.
func approve(t *testing.T, db *sqlx.DB, itemID int64) {
	t.Helper()
	if _, err := db.Exec(`UPDATE items SET is_approved = TRUE WHERE id = ?`, itemID); err != nil {
		t.Fatalf("approve item: %v", err)
	}
}

func markRedeemed(t *testing.T, db *sqlx.DB, itemID, redeemerID, ownerID int64, points int) {
	t.Helper()
	if _, err := db.Exec(`UPDATE items SET is_available = FALSE WHERE id = ?`, itemID); err != nil {
		t.Fatalf("mark item unavailable: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO redemptions (item_id, redeemer_id, owner_id, points_used) VALUES (?, ?, ?, ?)`,
		itemID, redeemerID, ownerID, points,
	); err != nil {
		t.Fatalf("insert redemption: %v", err)
	}
}
