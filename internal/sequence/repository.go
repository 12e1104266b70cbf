package sequence

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the counter can join an ambient transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements CounterPort against the document_sequences table.
type Repository struct {
	q Querier
}

// NewRepository constructs Repository over a pool or an open transaction.
func NewRepository(q Querier) *Repository {
	return &Repository{q: q}
}

// IncrementSequence atomically bumps and returns the counter for a bucket.
// A failed surrounding transaction rolls the increment back, so no number
// is burnt on failure.
func (r *Repository) IncrementSequence(ctx context.Context, prefix string, year, month int) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `INSERT INTO document_sequences (prefix, year, month, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (prefix, year, month) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, prefix, year, month).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
