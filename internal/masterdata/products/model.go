package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. Stock and Status are projections
// owned by the stock ledger: they are returned on reads but never
// accepted from callers.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	Unit          string          `json:"unit,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Stock         float64         `json:"stock"`
	MinStock      float64         `json:"min_stock"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
