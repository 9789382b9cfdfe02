package model

import "time"

type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Points       int       `json:"points" db:"points"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UserSummary is the admin view of a user with activity counts.
type UserSummary struct {
	User
	ItemsListed   int `json:"items_listed" db:"items_listed"`
	ItemsRedeemed int `json:"items_redeemed" db:"items_redeemed"`
}
