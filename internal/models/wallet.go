package models

import (
	"time"

	"github.com/google/uuid"
)

// Currency identifiers accepted by the conversion endpoint.
const (
	CurrencyCoins = "coins"
	CurrencyGQ    = "gq"
)

// Fixed economy constants.
const (
	CoinsPerGQ          = 100 // conversion rate in both directions
	StartingGrantCoins  = 30  // granted on lazy wallet creation
	SettlementCostCoins = 5   // flat cost to accept/fulfill any listing
)

type Wallet struct {
	UserID       uuid.UUID  `json:"user_id"`
	CoinBalance  int        `json:"coin_balance"`
	GQBalance    int        `json:"gq_balance"`
	Points       int        `json:"points"`
	DailyPoints  int        `json:"daily_points"`
	Role         string     `json:"role"`
	Verified     bool       `json:"verified"`
	LastTopUpAt  *time.Time `json:"last_top_up_at,omitempty"`
	LastTopUpRef *string    `json:"last_top_up_ref,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
