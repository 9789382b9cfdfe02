package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList is a list of strings persisted as a JSON array in a TEXT column.
type StringList []string

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan string list: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type Item struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	CategoryID  int64      `json:"category_id" db:"category_id"`
	Type        string     `json:"type" db:"type"`
	Brand       string     `json:"brand" db:"brand"`
	Size        string     `json:"size" db:"size"`
	Condition   string     `json:"condition" db:"condition"`
	PointValue  int        `json:"point_value" db:"point_value"`
	IsAvailable bool       `json:"is_available" db:"is_available"`
	IsApproved  bool       `json:"is_approved" db:"is_approved"`
	Images      StringList `json:"images" db:"images"`
	Tags        StringList `json:"tags" db:"tags"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Redeemable reports whether the item can currently be exchanged for points.
func (i Item) Redeemable() bool {
	return i.IsAvailable && i.IsApproved
}

// ItemView is an item joined with its category and owner names.
type ItemView struct {
	Item
	CategoryName   string   `json:"category_name" db:"category_name"`
	OwnerFirstName string   `json:"first_name" db:"owner_first_name"`
	OwnerLastName  string   `json:"last_name" db:"owner_last_name"`
	ImageURLs      []string `json:"image_urls,omitempty" db:"-"`
}

// NewItem holds the validated fields of a listing before it is stored.
type NewItem struct {
	UserID      int64
	Title       string
	Description string
	CategoryID  int64
	Type        string
	Brand       string
	Size        string
	Condition   string
	PointValue  int
	Images      []string
	Tags        []string
}

// ItemUpdate is a partial update; nil fields are left unchanged.
type ItemUpdate struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Type        *string  `json:"type"`
	Brand       *string  `json:"brand"`
	Condition   *string  `json:"condition"`
	PointValue  *int     `json:"point_value"`
	Tags        []string `json:"tags"`
}

// ItemFilter selects the public catalog.
type ItemFilter struct {
	Category  string
	Size      string
	Condition string
	MinPoints *int
	MaxPoints *int
	Search    string
	Page      int
	Limit     int
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}
