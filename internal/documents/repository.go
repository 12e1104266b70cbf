package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/platform/db"
	"github.com/atlas-erp/atlas-erp/internal/sequence"
	"github.com/atlas-erp/atlas-erp/internal/stock"
)

// dbtx is the query surface shared by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists documents in PostgreSQL across the per-kind tables
// named by the Definition registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	stock.TxPort
	tx pgx.Tx
}

// WithTx runs one document operation inside a repeatable-read transaction.
// The wrapper also serves as the stock ledger port and the sequence counter
// so every side effect of the operation shares the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("documents repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		wrapper := &txRepo{
			TxPort: stock.NewTxPort(tx),
			tx:     tx,
		}
		return fn(ctx, wrapper)
	})
}

func (r *Repository) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	return getDocument(ctx, r.pool, kind, id)
}

func (r *Repository) List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, int, error) {
	def, err := Lookup(kind)
	if err != nil {
		return nil, 0, err
	}

	conditions := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if def.Discriminator != "" {
		conditions = append(conditions, "document_type="+arg(def.Discriminator))
	}
	if filter.ContactID != 0 {
		conditions = append(conditions, "contact_id="+arg(filter.ContactID))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status="+arg(string(filter.Status)))
	}
	if !filter.DateFrom.IsZero() {
		conditions = append(conditions, "date >= "+arg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		conditions = append(conditions, "date <= "+arg(filter.DateTo))
	}
	offset := (filter.Page - 1) * filter.PerPage

	query := fmt.Sprintf(`SELECT %s, COUNT(*) OVER() AS total
FROM %s
WHERE %s
ORDER BY date DESC, id DESC
LIMIT %s OFFSET %s`, headerColumns, def.HeaderTable, strings.Join(conditions, " AND "), arg(filter.PerPage), arg(offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []Document{}
	total := 0
	for rows.Next() {
		doc, t, err := scanHeaderWithTotal(rows, kind)
		if err != nil {
			return nil, 0, err
		}
		total = t
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// headerColumns is the uniform column set shared by every header table.
const headerColumns = `id, number, contact_id, date, status, due_date, payment_method, notes, vat_rate, subtotal, tax_amount, total, COALESCE(warehouse_id, 0), COALESCE(created_by, 0), created_at, updated_at`

// IncrementSequence bumps the counter under a savepoint. A server-side
// failure would otherwise abort the whole document transaction and take
// the scan fallback down with it; rolling back to the savepoint keeps the
// transaction usable.
func (r *txRepo) IncrementSequence(ctx context.Context, prefix string, year, month int) (int64, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := sequence.NewRepository(sp).IncrementSequence(ctx, prefix, year, month)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// ExistingNumbers serves the degraded allocator path by scanning the
// issued numbers of the prefix's own bucket.
func (r *txRepo) ExistingNumbers(ctx context.Context, prefix string, year, month int) ([]string, error) {
	def, ok := defByPrefix(prefix)
	if !ok {
		return nil, fmt.Errorf("documents: no table registered for prefix %q", prefix)
	}
	pattern := fmt.Sprintf("%s-%02d/%02d/%%", prefix, month, year%100)
	query := fmt.Sprintf(`SELECT number FROM %s WHERE number LIKE $1`, def.HeaderTable)
	rows, err := r.tx.Query(ctx, query, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func defByPrefix(prefix string) (Definition, bool) {
	for _, def := range registry {
		if def.Prefix == prefix {
			return def, true
		}
	}
	return Definition{}, false
}

func (r *txRepo) InsertHeader(ctx context.Context, doc Document) (int64, error) {
	def, err := Lookup(doc.Kind)
	if err != nil {
		return 0, err
	}

	columns := `number, contact_id, date, status, due_date, payment_method, notes, vat_rate, subtotal, tax_amount, total, warehouse_id, created_by, created_at, updated_at`
	placeholders := `$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()`
	args := []any{
		doc.Number, doc.ContactID, doc.Date, string(doc.Status),
		doc.DueDate, doc.PaymentMethod, doc.Notes,
		doc.VATRate, doc.Subtotal, doc.TaxAmount, doc.Total,
		nullID(doc.WarehouseID), nullID(doc.CreatedBy),
	}
	if def.Discriminator != "" {
		columns += ", document_type"
		placeholders += ",$14"
		args = append(args, def.Discriminator)
	}

	var id int64
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`, def.HeaderTable, columns, placeholders)
	if err := r.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) UpdateHeader(ctx context.Context, doc Document) error {
	def, err := Lookup(doc.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s
SET date=$2, due_date=$3, payment_method=$4, notes=$5, subtotal=$6, tax_amount=$7, total=$8, updated_at=NOW()
WHERE id=$1`, def.HeaderTable)
	tag, err := r.tx.Exec(ctx, query,
		doc.ID, doc.Date, doc.DueDate, doc.PaymentMethod, doc.Notes,
		doc.Subtotal, doc.TaxAmount, doc.Total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, kind Kind, id int64, status Status) error {
	def, err := Lookup(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET status=$2, updated_at=NOW() WHERE id=$1`, def.HeaderTable)
	tag, err := r.tx.Exec(ctx, query, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertItem(ctx context.Context, kind Kind, item Item) (int64, error) {
	def, err := Lookup(kind)
	if err != nil {
		return 0, err
	}
	var id int64
	query := fmt.Sprintf(`INSERT INTO %s (%s, product_id, description, quantity, unit_price, line_total, position)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, def.ItemTable, def.FKColumn)
	err = r.tx.QueryRow(ctx, query,
		item.DocumentID, item.ProductID, item.Description,
		item.Quantity, item.UnitPrice, item.LineTotal, item.Position).Scan(&id)
	return id, err
}

func (r *txRepo) DeleteItems(ctx context.Context, kind Kind, docID int64) error {
	def, err := Lookup(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s=$1`, def.ItemTable, def.FKColumn)
	_, err = r.tx.Exec(ctx, query, docID)
	return err
}

func (r *txRepo) DeleteHeader(ctx context.Context, kind Kind, id int64) error {
	def, err := Lookup(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, def.HeaderTable)
	tag, err := r.tx.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	return getDocument(ctx, r.tx, kind, id)
}

func getDocument(ctx context.Context, q dbtx, kind Kind, id int64) (Document, error) {
	def, err := Lookup(kind)
	if err != nil {
		return Document{}, err
	}

	condition := "id=$1"
	args := []any{id}
	if def.Discriminator != "" {
		condition += " AND document_type=$2"
		args = append(args, def.Discriminator)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, headerColumns, def.HeaderTable, condition)

	doc, err := scanHeader(q.QueryRow(ctx, query, args...), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}

	items, err := listItems(ctx, q, def, id)
	if err != nil {
		return Document{}, err
	}
	doc.Items = items
	return doc, nil
}

func listItems(ctx context.Context, q dbtx, def Definition, docID int64) ([]Item, error) {
	query := fmt.Sprintf(`SELECT id, %s, product_id, description, quantity, unit_price, line_total, position
FROM %s WHERE %s=$1 ORDER BY position ASC, id ASC`, def.FKColumn, def.ItemTable, def.FKColumn)
	rows, err := q.Query(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.ProductID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.LineTotal, &item.Position); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanHeader(row pgx.Row, kind Kind) (Document, error) {
	var (
		doc           Document
		status        string
		dueDate       *time.Time
		paymentMethod *string
		notes         *string
	)
	err := row.Scan(&doc.ID, &doc.Number, &doc.ContactID, &doc.Date, &status,
		&dueDate, &paymentMethod, &notes,
		&doc.VATRate, &doc.Subtotal, &doc.TaxAmount, &doc.Total,
		&doc.WarehouseID, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Kind = kind
	doc.Status = Status(status)
	doc.DueDate = dueDate
	doc.PaymentMethod = paymentMethod
	doc.Notes = notes
	return doc, nil
}

func scanHeaderWithTotal(rows pgx.Rows, kind Kind) (Document, int, error) {
	var (
		doc           Document
		status        string
		dueDate       *time.Time
		paymentMethod *string
		notes         *string
		total         int
	)
	err := rows.Scan(&doc.ID, &doc.Number, &doc.ContactID, &doc.Date, &status,
		&dueDate, &paymentMethod, &notes,
		&doc.VATRate, &doc.Subtotal, &doc.TaxAmount, &doc.Total,
		&doc.WarehouseID, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt, &total)
	if err != nil {
		return Document{}, 0, err
	}
	doc.Kind = kind
	doc.Status = Status(status)
	doc.DueDate = dueDate
	doc.PaymentMethod = paymentMethod
	doc.Notes = notes
	return doc, total, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
