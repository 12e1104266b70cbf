package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps dashboard aggregates warm without letting them drift
// far behind the ledger.
const DefaultTTL = 5 * time.Minute

// MetricsPort abstracts the SQL aggregates for tests.
type MetricsPort interface {
	MonthMetrics(ctx context.Context, from, to time.Time) (MonthMetrics, error)
	StockSummary(ctx context.Context) (StockSummary, error)
}

// Service assembles dashboard snapshots behind a short-lived Redis cache.
type Service struct {
	repo   MetricsPort
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service. A nil redis client disables caching.
func NewService(repo MetricsPort, rdb *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, redis: rdb, ttl: DefaultTTL, logger: logger, now: time.Now}
}

// Snapshot returns the current month's KPI snapshot, cached briefly. A
// cache outage degrades to direct SQL; it never fails the request.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	now := s.now().UTC()
	key := fmt.Sprintf("dashboard:snapshot:%s", now.Format("2006-01"))

	if s.redis != nil {
		raw, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			var snap Snapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return snap, nil
			}
		} else if err != redis.Nil && s.logger != nil {
			s.logger.Warn("dashboard cache read failed", slog.Any("error", err))
		}
	}

	snap, err := s.build(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}

	if s.redis != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.redis.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
				s.logger.Warn("dashboard cache write failed", slog.Any("error", err))
			}
		}
	}
	return snap, nil
}

func (s *Service) build(ctx context.Context, now time.Time) (Snapshot, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := monthStart.AddDate(0, -1, 0)
	nextStart := monthStart.AddDate(0, 1, 0)

	current, err := s.repo.MonthMetrics(ctx, monthStart, nextStart)
	if err != nil {
		return Snapshot{}, err
	}
	previous, err := s.repo.MonthMetrics(ctx, prevStart, monthStart)
	if err != nil {
		return Snapshot{}, err
	}
	stock, err := s.repo.StockSummary(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Month:        monthStart.Format("2006-01"),
		Metrics:      current,
		Stock:        stock,
		RevenueDelta: pctDelta(current.Revenue, previous.Revenue),
		GeneratedAt:  now,
	}
	if previous.InvoiceCount > 0 {
		snap.InvoiceDelta = pctDelta(
			intDecimal(current.InvoiceCount),
			intDecimal(previous.InvoiceCount),
		)
	}
	return snap, nil
}
