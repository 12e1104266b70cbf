package documents

import "github.com/shopspring/decimal"

// DefaultVATRate is the Moroccan standard VAT rate in percent.
var DefaultVATRate = decimal.NewFromInt(20)

var hundred = decimal.NewFromInt(100)

// LineTotal computes quantity times unit price, rounded to 2 decimals.
func LineTotal(quantity float64, unitPrice decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(quantity).Mul(unitPrice).Round(2)
}

// ComputeTotals derives header totals from line items. Header totals are
// stored redundantly for read efficiency and must always equal this
// recomputation.
func ComputeTotals(items []Item, vatRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(item.Quantity, item.UnitPrice))
	}
	tax = subtotal.Mul(vatRate).Div(hundred).Round(2)
	total = subtotal.Add(tax)
	return subtotal, tax, total
}
