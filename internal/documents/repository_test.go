package documents

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/sequence"
)

var (
	errCounterBroken = errors.New(`relation "document_sequences" does not exist`)
	errTxAborted     = errors.New("current transaction is aborted, commands ignored until end of transaction block (SQLSTATE 25P02)")
)

// conTx fakes the slice of pgx.Tx the wrapper touches, including the
// postgres abort rule: once a statement fails, the transaction refuses
// further work until a rollback to a savepoint.
type conTx struct {
	failCounter bool
	aborted     bool
	counter     int64
	numbers     []string

	savepoints int
	released   int
	rolledBack int
}

func (c *conTx) Begin(ctx context.Context) (pgx.Tx, error) {
	if c.aborted {
		return nil, errTxAborted
	}
	c.savepoints++
	return &conSavepoint{parent: c}, nil
}

func (c *conTx) Commit(ctx context.Context) error { return nil }
func (c *conTx) Rollback(ctx context.Context) error { return nil }

func (c *conTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.aborted {
		return nil, errTxAborted
	}
	return &numberRows{numbers: c.numbers}, nil
}

func (c *conTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if c.aborted {
		return errRow{err: errTxAborted}
	}
	return errRow{err: errors.New("unexpected statement")}
}

func (c *conTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.aborted {
		return pgconn.CommandTag{}, errTxAborted
	}
	return pgconn.CommandTag{}, nil
}

func (c *conTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}
func (c *conTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (c *conTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (c *conTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported")
}
func (c *conTx) Conn() *pgx.Conn { return nil }

// conSavepoint is the pseudo nested transaction produced by Begin. Its
// rollback clears the parent's aborted state, releasing holds it.
type conSavepoint struct {
	parent *conTx
}

func (s *conSavepoint) Begin(ctx context.Context) (pgx.Tx, error) { return s.parent.Begin(ctx) }

func (s *conSavepoint) Commit(ctx context.Context) error {
	s.parent.released++
	return nil
}

func (s *conSavepoint) Rollback(ctx context.Context) error {
	s.parent.rolledBack++
	s.parent.aborted = false
	return nil
}

func (s *conSavepoint) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.parent.aborted {
		return errRow{err: errTxAborted}
	}
	if s.parent.failCounter {
		s.parent.aborted = true
		return errRow{err: errCounterBroken}
	}
	s.parent.counter++
	return intRow{n: s.parent.counter}
}

func (s *conSavepoint) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.parent.Query(ctx, sql, args...)
}

func (s *conSavepoint) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.parent.Exec(ctx, sql, args...)
}

func (s *conSavepoint) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}
func (s *conSavepoint) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (s *conSavepoint) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (s *conSavepoint) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported")
}
func (s *conSavepoint) Conn() *pgx.Conn { return nil }

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

type intRow struct{ n int64 }

func (r intRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.n
	return nil
}

type numberRows struct {
	numbers []string
	i       int
}

func (r *numberRows) Close() {}

func (r *numberRows) Err() error { return nil }

func (r *numberRows) RawValues() [][]byte { return nil }

func (r *numberRows) Conn() *pgx.Conn { return nil }

func (r *numberRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *numberRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *numberRows) Next() bool { r.i++; return r.i <= len(r.numbers) }

func (r *numberRows) Values() ([]any, error) { return nil, errors.New("not supported") }

func (r *numberRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.numbers[r.i-1]
	return nil
}

func TestCounterRunsUnderSavepoint(t *testing.T) {
	con := &conTx{}
	wrapper := &txRepo{tx: con}
	alloc := sequence.NewAllocator(wrapper, wrapper, slog.Default())

	number, err := alloc.Next(context.Background(), sequence.PrefixInvoice, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "INV-03/26/0001", number)
	require.Equal(t, 1, con.savepoints)
	require.Equal(t, 1, con.released)
}

func TestNumberFallbackSurvivesCounterFailure(t *testing.T) {
	con := &conTx{
		failCounter: true,
		numbers:     []string{"INV-03/26/0002", "INV-03/26/0007"},
	}
	wrapper := &txRepo{tx: con}
	alloc := sequence.NewAllocator(wrapper, wrapper, slog.Default())

	// The counter statement fails server-side and aborts everything up to
	// the savepoint; after rolling back to it, the scan of issued numbers
	// must still run on the same transaction.
	number, err := alloc.Next(context.Background(), sequence.PrefixInvoice, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "INV-03/26/0008", number)
	require.Equal(t, 1, con.rolledBack)
}
