package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/documents"
	jobmetrics "github.com/atlas-erp/atlas-erp/internal/jobs"
	"github.com/atlas-erp/atlas-erp/internal/notifications"
)

// OverdueScanJob flips pending invoices past their due date to overdue
// through the document lifecycle manager, so the transition table and
// audit trail apply exactly as they do for interactive changes.
type OverdueScanJob struct {
	Pool      *pgxpool.Pool
	Documents *documents.Service
	Notify    *notifications.Repository
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewOverdueScanJob initialises the overdue scan handler.
func NewOverdueScanJob(pool *pgxpool.Pool, docs *documents.Service, notify *notifications.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Pool:      pool,
		Documents: docs,
		Notify:    notify,
		Logger:    logger,
		Metrics:   metrics,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the overdue scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Pool == nil || j.Documents == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskOverdueScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	cutoff := j.clock().AddDate(0, 0, -payload.GraceDays)
	rows, err := j.Pool.Query(ctx, `SELECT id, number FROM invoices
WHERE status = 'pending' AND due_date IS NOT NULL AND due_date < $1`, cutoff)
	if err != nil {
		resultErr = fmt.Errorf("overdue scan: query: %w", err)
		return resultErr
	}
	defer rows.Close()

	type candidate struct {
		id     int64
		number string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.number); err != nil {
			resultErr = err
			return resultErr
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	flipped := 0
	for _, c := range candidates {
		if _, err := j.Documents.ChangeStatus(ctx, documents.KindInvoice, c.id, documents.StatusOverdue, 0); err != nil {
			// Losing the race to a concurrent payment is fine; log and move on.
			j.Logger.Warn("overdue flip skipped",
				slog.Int64("invoice_id", c.id), slog.Any("error", err))
			continue
		}
		flipped++
		if j.Notify != nil {
			if err := j.notifyManagers(ctx, c.id, c.number); err != nil {
				j.Logger.Warn("overdue notification failed",
					slog.Int64("invoice_id", c.id), slog.Any("error", err))
			}
		}
	}

	j.Metrics.AddAlerts("overdue_invoice", flipped)
	j.Logger.Info("overdue scan finished",
		slog.Int("candidates", len(candidates)), slog.Int("flipped", flipped))
	return nil
}

func (j *OverdueScanJob) notifyManagers(ctx context.Context, invoiceID int64, number string) error {
	userIDs, err := writerUserIDs(ctx, j.Pool)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		_, err := j.Notify.InsertUnlessOpen(ctx, notifications.Notification{
			UserID:   userID,
			Severity: notifications.SeverityWarning,
			Title:    fmt.Sprintf("Invoice %s is overdue", number),
			RefType:  "invoice",
			RefID:    invoiceID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writerUserIDs lists active accounts that should receive operational
// alerts.
func writerUserIDs(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE is_active AND role IN ('admin', 'manager')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
