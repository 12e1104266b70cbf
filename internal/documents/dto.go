package documents

import (
	"time"

	"github.com/shopspring/decimal"
)

type itemRequest struct {
	ProductID   *int64          `json:"product_id,omitempty"`
	Description string          `json:"description" validate:"required"`
	Quantity    float64         `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"required"`
}

type createRequest struct {
	ContactID     int64            `json:"contact_id" validate:"required,gt=0"`
	Date          string           `json:"date,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	VATRate       *decimal.Decimal `json:"vat_rate,omitempty"`
	WarehouseID   int64            `json:"warehouse_id,omitempty"`
	Items         []itemRequest    `json:"items" validate:"required,min=1,dive"`
}

type updateRequest struct {
	Date          *string        `json:"date,omitempty"`
	DueDate       *string        `json:"due_date,omitempty"`
	PaymentMethod *string        `json:"payment_method,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	Items         *[]itemRequest `json:"items,omitempty"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

func toItemInputs(items []itemRequest) []ItemInput {
	inputs := make([]ItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, ItemInput{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return inputs
}
