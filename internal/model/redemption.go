package model

import "time"

const RedemptionCompleted = "completed"

// Redemption is an append-only record of a completed exchange.
type Redemption struct {
	ID         int64     `json:"id" db:"id"`
	ItemID     int64     `json:"item_id" db:"item_id"`
	RedeemerID int64     `json:"redeemer_id" db:"redeemer_id"`
	OwnerID    int64     `json:"owner_id" db:"owner_id"`
	PointsUsed int       `json:"points_used" db:"points_used"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RedemptionView joins a redemption with the item and the other party.
type RedemptionView struct {
	Redemption
	ItemTitle             string     `json:"item_title" db:"item_title"`
	Images                StringList `json:"images" db:"images"`
	CounterpartyFirstName string     `json:"counterparty_first_name" db:"counterparty_first_name"`
	CounterpartyLastName  string     `json:"counterparty_last_name" db:"counterparty_last_name"`
}
