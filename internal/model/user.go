package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User holds the externally funded balances the engine reads.
type User struct {
	ID               string          `json:"id"`
	Name             string          `json:"name,omitempty"`
	Equity           decimal.Decimal `json:"equity"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Version          int64           `json:"-"`
}
