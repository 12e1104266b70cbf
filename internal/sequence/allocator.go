package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CounterPort increments and returns the durable counter for a bucket.
// Implementations are expected to run on the caller's transaction so the
// allocation commits or rolls back together with the document insert.
type CounterPort interface {
	IncrementSequence(ctx context.Context, prefix string, year, month int) (int64, error)
}

// ScanPort lists already-issued numbers for a bucket. Used only by the
// degraded fallback path.
type ScanPort interface {
	ExistingNumbers(ctx context.Context, prefix string, year, month int) ([]string, error)
}

// Allocator produces the next unique document number for a bucket.
//
// The primary path is an atomic increment-and-return against the
// document_sequences counter. When that path fails and a ScanPort is
// available, the allocator falls back to scanning issued numbers and taking
// max+1. The fallback is not safe under concurrent writers; it is retained
// as a last resort and every use is logged with the weaker guarantee named.
type Allocator struct {
	counter CounterPort
	scan    ScanPort
	logger  *slog.Logger
}

// NewAllocator constructs an Allocator. scan may be nil, in which case the
// fallback path is disabled and counter errors surface directly.
func NewAllocator(counter CounterPort, scan ScanPort, logger *slog.Logger) *Allocator {
	return &Allocator{counter: counter, scan: scan, logger: logger}
}

// Next returns the next document number for the prefix and effective date.
func (a *Allocator) Next(ctx context.Context, prefix string, date time.Time) (string, error) {
	if a == nil || a.counter == nil {
		return "", errors.New("sequence: allocator not initialised")
	}
	if prefix == "" {
		return "", errors.New("sequence: prefix required")
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	year := date.Year()
	month := int(date.Month())

	n, err := a.counter.IncrementSequence(ctx, prefix, year, month)
	if err == nil {
		return Format(prefix, date, n), nil
	}
	if a.scan == nil {
		return "", fmt.Errorf("sequence: increment %s %d-%02d: %w", prefix, year, month, err)
	}

	if a.logger != nil {
		a.logger.Warn("sequence counter unavailable, falling back to scan allocation (duplicates possible under concurrent writers)",
			slog.String("prefix", prefix),
			slog.Any("error", err))
	}
	n, scanErr := a.maxIssued(ctx, prefix, year, month)
	if scanErr != nil {
		return "", fmt.Errorf("sequence: fallback scan %s: %w", prefix, scanErr)
	}
	return Format(prefix, date, n+1), nil
}

func (a *Allocator) maxIssued(ctx context.Context, prefix string, year, month int) (int64, error) {
	numbers, err := a.scan.ExistingNumbers(ctx, prefix, year, month)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, number := range numbers {
		c, err := Parse(number)
		if err != nil {
			continue
		}
		if c.Prefix == prefix && c.Month == month && c.Year == year%100 && c.Seq > max {
			max = c.Seq
		}
	}
	return max, nil
}
