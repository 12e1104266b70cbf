package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository computes KPI aggregates straight from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MonthMetrics aggregates invoices dated within [from, to).
func (r *Repository) MonthMetrics(ctx context.Context, from, to time.Time) (MonthMetrics, error) {
	var m MonthMetrics
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE(SUM(total) FILTER (WHERE status = 'paid'), 0),
  COALESCE(SUM(total) FILTER (WHERE status IN ('pending', 'overdue')), 0),
  COUNT(*) FILTER (WHERE status <> 'cancelled'),
  COUNT(*) FILTER (WHERE status = 'overdue')
FROM invoices
WHERE date >= $1 AND date < $2`, from, to).
		Scan(&m.Revenue, &m.Outstanding, &m.InvoiceCount, &m.OverdueCount)
	return m, err
}

// StockSummary values the shelf at purchase price and counts threshold
// breaches.
func (r *Repository) StockSummary(ctx context.Context) (StockSummary, error) {
	var s StockSummary
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE(SUM(GREATEST(stock, 0) * purchase_price), 0),
  COUNT(*) FILTER (WHERE status = 'low_stock'),
  COUNT(*) FILTER (WHERE status = 'out_of_stock'),
  COUNT(*)
FROM products
WHERE deleted_at IS NULL`).
		Scan(&s.Valuation, &s.LowStockCount, &s.OutOfStockCount, &s.ProductCount)
	return s, err
}
