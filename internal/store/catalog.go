package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/rewear/internal/model"
)

const (
	DefaultPageLimit = 12
	MaxPageLimit     = 100
)

// NormalizeFilter clamps paging to sane bounds and trims text filters.
func NormalizeFilter(f model.ItemFilter) model.ItemFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	f.Category = strings.TrimSpace(f.Category)
	f.Size = strings.TrimSpace(f.Size)
	f.Condition = strings.TrimSpace(f.Condition)
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// ListAvailable returns one page of the public catalog. Only approved,
// available items are ever included; the total is counted under the same
// filters as the page.
func (s *ItemStore) ListAvailable(ctx context.Context, f model.ItemFilter) ([]model.ItemView, model.Pagination, error) {
	f = NormalizeFilter(f)
	where, args := catalogWhere(f)

	var total int
	err := s.db.GetContext(ctx, &total, s.db.Rebind(
		`SELECT COUNT(*) FROM items i JOIN categories c ON c.id = i.category_id WHERE `+where), args...)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("count catalog: %w", err)
	}

	items := []model.ItemView{}
	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	err = s.db.SelectContext(ctx, &items, s.db.Rebind(itemViewSelect+`
		WHERE `+where+`
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT ? OFFSET ?`), pageArgs...)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("list catalog: %w", err)
	}

	return items, model.Pagination{
		Page:  f.Page,
		Limit: f.Limit,
		Total: total,
		Pages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

func catalogWhere(f model.ItemFilter) (string, []any) {
	conds := []string{"i.is_approved = TRUE", "i.is_available = TRUE"}
	var args []any

	if f.Category != "" {
		conds = append(conds, "c.name = ?")
		args = append(args, f.Category)
	}
	if f.Size != "" {
		conds = append(conds, "i.size = ?")
		args = append(args, f.Size)
	}
	if f.Condition != "" {
		conds = append(conds, "i.condition = ?")
		args = append(args, f.Condition)
	}
	if f.MinPoints != nil {
		conds = append(conds, "i.point_value >= ?")
		args = append(args, *f.MinPoints)
	}
	if f.MaxPoints != nil {
		conds = append(conds, "i.point_value <= ?")
		args = append(args, *f.MaxPoints)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		conds = append(conds, `(LOWER(i.title) LIKE ? ESCAPE '\' OR LOWER(i.description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
