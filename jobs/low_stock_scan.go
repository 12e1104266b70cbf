package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/atlas-erp/atlas-erp/internal/jobs"
	"github.com/atlas-erp/atlas-erp/internal/notifications"
)

// LowStockScanJob raises one notification per product whose projection
// sits at low_stock or out_of_stock. Dedup rides on InsertUnlessOpen: a
// product with an unread alert is not alerted again.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Notify  *notifications.Repository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, notify *notifications.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Pool: pool, Notify: notify, Logger: logger, Metrics: metrics}
}

// Handle executes the low stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Pool == nil || j.Notify == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 200
	}

	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	rows, err := j.Pool.Query(ctx, `SELECT id, name, sku, stock, min_stock, status FROM products
WHERE deleted_at IS NULL AND status IN ('low_stock', 'out_of_stock')
ORDER BY status DESC, stock ASC
LIMIT $1`, payload.Limit)
	if err != nil {
		resultErr = fmt.Errorf("low stock scan: query: %w", err)
		return resultErr
	}
	defer rows.Close()

	type breach struct {
		id              int64
		name, sku       string
		stock, minStock float64
		status          string
	}
	var breaches []breach
	for rows.Next() {
		var b breach
		if err := rows.Scan(&b.id, &b.name, &b.sku, &b.stock, &b.minStock, &b.status); err != nil {
			resultErr = err
			return resultErr
		}
		breaches = append(breaches, b)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	userIDs, err := writerUserIDs(ctx, j.Pool)
	if err != nil {
		resultErr = err
		return resultErr
	}

	raised := 0
	for _, b := range breaches {
		severity := notifications.SeverityInfo
		if b.status == "out_of_stock" {
			severity = notifications.SeverityWarning
		}
		for _, userID := range userIDs {
			id, err := j.Notify.InsertUnlessOpen(ctx, notifications.Notification{
				UserID:   userID,
				Severity: severity,
				Title:    fmt.Sprintf("%s (%s) is %s", b.name, b.sku, b.status),
				Body:     fmt.Sprintf("stock %.2f, minimum %.2f", b.stock, b.minStock),
				RefType:  "product",
				RefID:    b.id,
			})
			if err != nil {
				resultErr = err
				return resultErr
			}
			if id != 0 {
				raised++
			}
		}
	}

	j.Metrics.AddAlerts("low_stock", raised)
	j.Logger.Info("low stock scan finished",
		slog.Int("breaches", len(breaches)), slog.Int("raised", raised))
	return nil
}
