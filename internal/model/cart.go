package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartEntry struct {
	ID             int64           `json:"id,omitempty"`
	OfflineID      string          `json:"offline_id,omitempty"`
	ItemID         int64           `json:"item_id"`
	UserID         string          `json:"user_id"`
	Mode           Mode            `json:"mode"`
	Name           string          `json:"name,omitempty"`
	Quantity       int             `json:"quantity"`
	Unit           string          `json:"unit,omitempty"`
	Price          decimal.Decimal `json:"price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
	Synced         bool            `json:"synced"`
	OfflineCreated bool            `json:"offline_created"`
}

// LineTotal is max(0, price*quantity - discount).
func (c *CartEntry) LineTotal() decimal.Decimal {
	total := c.Price.Mul(decimal.NewFromInt(int64(c.Quantity))).Sub(c.DiscountAmount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
