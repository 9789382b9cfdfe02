package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/database"
	"github.com/dukerupert/rewear/internal/model"
)

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, password_hash, first_name, last_name, points, is_admin, created_at, updated_at`

// NewUser holds the fields of an account before it is stored. Email is
// normalized to lower case.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Points       int
	IsAdmin      bool
}

func (s *UserStore) Create(ctx context.Context, nu NewUser) (*model.User, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`INSERT INTO users (email, password_hash, first_name, last_name, points, is_admin)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		normalizeEmail(nu.Email), nu.PasswordHash, nu.FirstName, nu.LastName, nu.Points, nu.IsAdmin,
	).Scan(&id)
	if database.IsUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userCols+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userCols+` FROM users WHERE email = ?`), normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// ListSummaries returns every user, newest first, with listing and
// redemption counts.
func (s *UserStore) ListSummaries(ctx context.Context) ([]model.UserSummary, error) {
	users := []model.UserSummary{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.points, u.is_admin,
		       u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM items i WHERE i.user_id = u.id) AS items_listed,
		       (SELECT COUNT(*) FROM redemptions r WHERE r.redeemer_id = u.id) AS items_redeemed
		FROM users u
		ORDER BY u.created_at DESC, u.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Delete removes a user. Their items and redemptions go with them.
func (s *UserStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAdmin creates the admin account if the email is not registered yet.
// It reports whether a row was inserted. An existing account is left as is.
func (s *UserStore) EnsureAdmin(ctx context.Context, nu NewUser) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (email, password_hash, first_name, last_name, points, is_admin)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (email) DO NOTHING`),
		normalizeEmail(nu.Email), nu.PasswordHash, nu.FirstName, nu.LastName, nu.Points, true,
	)
	if err != nil {
		return false, fmt.Errorf("insert admin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
