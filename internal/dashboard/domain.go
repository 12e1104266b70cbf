package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthMetrics aggregates invoice figures for one calendar month.
type MonthMetrics struct {
	Revenue      decimal.Decimal `json:"revenue"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	InvoiceCount int             `json:"invoice_count"`
	OverdueCount int             `json:"overdue_count"`
}

// StockSummary aggregates the current shelf state.
type StockSummary struct {
	Valuation       decimal.Decimal `json:"valuation"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	ProductCount    int             `json:"product_count"`
}

// Snapshot is the dashboard payload: current month KPIs, shelf summary
// and percentage deltas against the previous month.
type Snapshot struct {
	Month        string           `json:"month"` // YYYY-MM
	Metrics      MonthMetrics     `json:"metrics"`
	Stock        StockSummary     `json:"stock"`
	RevenueDelta *decimal.Decimal `json:"revenue_delta_pct,omitempty"`
	InvoiceDelta *decimal.Decimal `json:"invoice_delta_pct,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// pctDelta returns the percentage change from previous to current, nil
// when the previous period has no data to compare against.
func pctDelta(current, previous decimal.Decimal) *decimal.Decimal {
	if previous.IsZero() {
		return nil
	}
	d := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1)
	return &d
}

func intDecimal(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
