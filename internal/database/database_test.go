package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"users", "categories", "items", "redemptions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		t.Fatalf("count categories: %v", err)
	}
	if count != 8 {
		t.Errorf("categories = %d, want 8", count)
	}
}

func TestBrandColumnMigration(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('items') WHERE name = 'brand'`).Scan(&n)
	if err != nil {
		t.Fatalf("table info: %v", err)
	}
	if n != 1 {
		t.Errorf("brand column count = %d, want 1", n)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "whatever"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestPointsCheckConstraint(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO users (email, password_hash, first_name, last_name, points) VALUES ('a@example.com', 'x', 'A', 'B', -1)`)
	if err == nil {
		t.Fatal("expected CHECK constraint to reject negative points")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO categories (name) VALUES ('Tops')`)
	if err == nil {
		t.Fatal("expected duplicate category to fail")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
	if !IsUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})) {
		t.Error("expected wrapped pq 23505 to be a unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error should not be a unique violation")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("update: %w", &pq.Error{Code: "40P01"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient = %v, want %v", got, tt.want)
			}
		})
	}
}
