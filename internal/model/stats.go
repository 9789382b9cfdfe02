package model

type PublicStats struct {
	TotalItems     int `json:"totalItems" db:"total_items"`
	TotalUsers     int `json:"totalUsers" db:"total_users"`
	TotalExchanges int `json:"totalExchanges" db:"total_exchanges"`
}

type AdminStats struct {
	TotalUsers            int `json:"totalUsers" db:"total_users"`
	TotalItems            int `json:"totalItems" db:"total_items"`
	ApprovedItems         int `json:"approvedItems" db:"approved_items"`
	RedeemedItems         int `json:"redeemedItems" db:"redeemed_items"`
	TotalRedemptions      int `json:"totalRedemptions" db:"total_redemptions"`
	TotalPointsCirculated int `json:"totalPointsCirculated" db:"total_points_circulated"`
}
