package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxPort wraps an open transaction as a ledger port, so other modules
// can write movements on their own transaction.
func NewTxPort(tx pgx.Tx) TxPort {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxPort) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, COALESCE(warehouse_id, 0), qty, movement_type, COALESCE(ref_doc_type, ''), COALESCE(ref_doc_id, 0), description, COALESCE(created_by, 0), created_at
FROM stock_movements
WHERE product_id=$1
  AND ($2=0 OR warehouse_id=$2)
  AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $5`, filter.ProductID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *Repository) GetProductState(ctx context.Context, productID int64) (ProductState, error) {
	var state ProductState
	err := r.pool.QueryRow(ctx, `SELECT id, stock, min_stock, status FROM products WHERE id=$1 AND deleted_at IS NULL`, productID).
		Scan(&state.ProductID, &state.Stock, &state.MinStock, &state.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductState{}, ErrProductNotFound
		}
		return ProductState{}, err
	}
	return state, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (ProductState, error) {
	var state ProductState
	err := r.tx.QueryRow(ctx, `SELECT id, stock, min_stock, status FROM products WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, productID).
		Scan(&state.ProductID, &state.Stock, &state.MinStock, &state.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductState{}, ErrProductNotFound
		}
		return ProductState{}, err
	}
	return state, nil
}

func (r *txRepository) UpdateProductStock(ctx context.Context, productID int64, stock float64, status ProductStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock=$2, status=$3, updated_at=NOW() WHERE id=$1`, productID, stock, string(status))
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, qty, movement_type, ref_doc_type, ref_doc_id, description, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		m.ProductID, nullInt(m.WarehouseID), m.Qty, string(m.Type), nullString(m.RefDocType), nullInt(m.RefDocID), m.Description, nullInt(m.CreatedBy), m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) ListDocumentMovements(ctx context.Context, refDocType string, refDocID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, COALESCE(warehouse_id, 0), qty, movement_type, COALESCE(ref_doc_type, ''), COALESCE(ref_doc_id, 0), description, COALESCE(created_by, 0), created_at
FROM stock_movements
WHERE ref_doc_type=$1 AND ref_doc_id=$2
ORDER BY id ASC`, refDocType, refDocID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.Qty, &m.Type, &m.RefDocType, &m.RefDocID, &m.Description, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
