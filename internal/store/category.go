package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/model"
)

type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryCols = `id, name, created_at`

// List returns all categories by name.
func (s *CategoryStore) List(ctx context.Context) ([]model.Category, error) {
	categories := []model.Category{}
	if err := s.db.SelectContext(ctx, &categories, `SELECT `+categoryCols+` FROM categories ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *CategoryStore) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	var c model.Category
	err := s.db.GetContext(ctx, &c, s.db.Rebind(`SELECT `+categoryCols+` FROM categories WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}
