package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	current  MonthMetrics
	previous MonthMetrics
	stock    StockSummary
	calls    int
}

func (f *fakeMetrics) MonthMetrics(ctx context.Context, from, to time.Time) (MonthMetrics, error) {
	f.calls++
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if from.Before(monthStart) {
		return f.previous, nil
	}
	return f.current, nil
}

func (f *fakeMetrics) StockSummary(ctx context.Context) (StockSummary, error) {
	return f.stock, nil
}

func newTestService(t *testing.T, metrics *fakeMetrics) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(metrics, rdb, nil)
	return svc, mr
}

func TestSnapshotComputesDeltas(t *testing.T) {
	metrics := &fakeMetrics{
		current:  MonthMetrics{Revenue: decimal.NewFromInt(1200), InvoiceCount: 12},
		previous: MonthMetrics{Revenue: decimal.NewFromInt(1000), InvoiceCount: 10},
		stock:    StockSummary{Valuation: decimal.NewFromInt(5000), LowStockCount: 3, ProductCount: 40},
	}
	svc, _ := newTestService(t, metrics)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.RevenueDelta)
	require.True(t, decimal.NewFromInt(20).Equal(*snap.RevenueDelta), "delta %s", snap.RevenueDelta)
	require.NotNil(t, snap.InvoiceDelta)
	require.True(t, decimal.NewFromInt(20).Equal(*snap.InvoiceDelta))
	require.Equal(t, 3, snap.Stock.LowStockCount)
}

func TestSnapshotOmitsDeltaWithoutHistory(t *testing.T) {
	metrics := &fakeMetrics{
		current: MonthMetrics{Revenue: decimal.NewFromInt(500), InvoiceCount: 5},
	}
	svc, _ := newTestService(t, metrics)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap.RevenueDelta)
	require.Nil(t, snap.InvoiceDelta)
}

func TestSnapshotIsCached(t *testing.T) {
	metrics := &fakeMetrics{
		current: MonthMetrics{Revenue: decimal.NewFromInt(100), InvoiceCount: 1},
	}
	svc, _ := newTestService(t, metrics)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	firstCalls := metrics.calls

	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, firstCalls, metrics.calls, "second snapshot should come from cache")
}

func TestSnapshotRecomputesAfterTTL(t *testing.T) {
	metrics := &fakeMetrics{
		current: MonthMetrics{Revenue: decimal.NewFromInt(100), InvoiceCount: 1},
	}
	svc, mr := newTestService(t, metrics)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	firstCalls := metrics.calls

	mr.FastForward(DefaultTTL + time.Second)

	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Greater(t, metrics.calls, firstCalls)
}
