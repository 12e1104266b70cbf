package products

import "github.com/shopspring/decimal"

// ProductForm carries the writable catalog fields. Stock and status are
// absent on purpose: only the ledger moves them.
type ProductForm struct {
	SKU           string          `json:"sku" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Category      string          `json:"category,omitempty"`
	Unit          string          `json:"unit,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	MinStock      float64         `json:"min_stock" validate:"gte=0"`
}

func (f ProductForm) toModel() Product {
	return Product{
		SKU:           f.SKU,
		Name:          f.Name,
		Category:      f.Category,
		Unit:          f.Unit,
		PurchasePrice: f.PurchasePrice,
		SalePrice:     f.SalePrice,
		MinStock:      f.MinStock,
	}
}
