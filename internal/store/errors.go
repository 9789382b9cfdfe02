package store

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrNotOwner     = errors.New("not the owner of this item")
	ErrItemRedeemed = errors.New("item has already been redeemed")
)
