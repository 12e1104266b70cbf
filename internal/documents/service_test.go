package documents

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/shared"
	"github.com/atlas-erp/atlas-erp/internal/stock"
)

type memoryRepo struct {
	docs      map[Kind]map[int64]*Document
	products  map[int64]*stock.ProductState
	movements []stock.Movement
	counters  map[string]int64
	nextID    int64

	duplicateInserts int // InsertHeader calls to fail with ErrDuplicateNumber
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		docs:     make(map[Kind]map[int64]*Document),
		products: make(map[int64]*stock.ProductState),
		counters: make(map[string]int64),
	}
}

func (r *memoryRepo) addProduct(id int64, qty, minStock float64) {
	r.products[id] = &stock.ProductState{
		ProductID: id, Stock: qty, MinStock: minStock,
		Status: stock.ProjectStatus(qty, minStock),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	if doc, ok := r.docs[kind][id]; ok {
		return *doc, nil
	}
	return Document{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, int, error) {
	out := []Document{}
	for _, doc := range r.docs[kind] {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, *doc)
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) IncrementSequence(ctx context.Context, prefix string, year, month int) (int64, error) {
	key := fmt.Sprintf("%s:%d:%d", prefix, year, month)
	tx.repo.counters[key]++
	return tx.repo.counters[key], nil
}

func (tx *memoryTx) ExistingNumbers(ctx context.Context, prefix string, year, month int) ([]string, error) {
	return nil, nil
}

func (tx *memoryTx) InsertHeader(ctx context.Context, doc Document) (int64, error) {
	if tx.repo.duplicateInserts > 0 {
		tx.repo.duplicateInserts--
		return 0, ErrDuplicateNumber
	}
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	doc.Items = nil
	if tx.repo.docs[doc.Kind] == nil {
		tx.repo.docs[doc.Kind] = make(map[int64]*Document)
	}
	tx.repo.docs[doc.Kind][doc.ID] = &doc
	return doc.ID, nil
}

func (tx *memoryTx) UpdateHeader(ctx context.Context, doc Document) error {
	stored, ok := tx.repo.docs[doc.Kind][doc.ID]
	if !ok {
		return ErrNotFound
	}
	items := stored.Items
	*stored = doc
	stored.Items = items
	return nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, kind Kind, id int64, status Status) error {
	doc, ok := tx.repo.docs[kind][id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	return nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, kind Kind, item Item) (int64, error) {
	doc, ok := tx.repo.docs[kind][item.DocumentID]
	if !ok {
		return 0, ErrNotFound
	}
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	doc.Items = append(doc.Items, item)
	return item.ID, nil
}

func (tx *memoryTx) DeleteItems(ctx context.Context, kind Kind, docID int64) error {
	if doc, ok := tx.repo.docs[kind][docID]; ok {
		doc.Items = nil
	}
	return nil
}

func (tx *memoryTx) DeleteHeader(ctx context.Context, kind Kind, id int64) error {
	if _, ok := tx.repo.docs[kind][id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.docs[kind], id)
	return nil
}

func (tx *memoryTx) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	return tx.repo.Get(ctx, kind, id)
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (stock.ProductState, error) {
	if p, ok := tx.repo.products[productID]; ok {
		return *p, nil
	}
	return stock.ProductState{}, stock.ErrProductNotFound
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, productID int64, qty float64, status stock.ProductStatus) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return stock.ErrProductNotFound
	}
	p.Stock = qty
	p.Status = status
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) ListDocumentMovements(ctx context.Context, refDocType string, refDocID int64) ([]stock.Movement, error) {
	out := []stock.Movement{}
	for _, m := range tx.repo.movements {
		if m.RefDocType == refDocType && m.RefDocID == refDocID {
			out = append(out, m)
		}
	}
	return out, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, slog.Default())
}

func ptrInt64(v int64) *int64 { return &v }

func invoiceInput(items ...ItemInput) CreateInput {
	return CreateInput{
		Kind:      KindInvoice,
		ContactID: 7,
		Date:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Items:     items,
		ActorID:   1,
	}
}

func TestCreateInvoiceAllocatesNumberAndTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceInput(
		ItemInput{Description: "Widget", Quantity: 3, UnitPrice: decimal.NewFromInt(100)},
		ItemInput{Description: "Bracket", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
	))
	require.NoError(t, err)
	require.Equal(t, "INV-03/26/0001", doc.Number)
	require.Equal(t, StatusDraft, doc.Status)
	require.True(t, decimal.NewFromInt(350).Equal(doc.Subtotal), "subtotal %s", doc.Subtotal)
	require.True(t, decimal.NewFromInt(70).Equal(doc.TaxAmount), "tax %s", doc.TaxAmount)
	require.True(t, decimal.NewFromInt(420).Equal(doc.Total), "total %s", doc.Total)
	require.Len(t, doc.Items, 2)

	// Invoices never touch stock.
	require.Empty(t, repo.movements)

	second, err := svc.Create(context.Background(), invoiceInput(
		ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	))
	require.NoError(t, err)
	require.Equal(t, "INV-03/26/0002", second.Number)
}

func TestCreateRejectsAnyInvalidItem(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, invoiceInput())
	require.ErrorIs(t, err, ErrNoItems)

	// One bad line poisons the whole document, valid siblings included.
	_, err = svc.Create(ctx, invoiceInput(
		ItemInput{Description: "Widget", Quantity: 3, UnitPrice: decimal.NewFromInt(100)},
		ItemInput{Description: "  ", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
	))
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = svc.Create(ctx, invoiceInput(
		ItemInput{Description: "Widget", Quantity: 0, UnitPrice: decimal.NewFromInt(100)},
	))
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = svc.Create(ctx, invoiceInput(
		ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.Zero},
	))
	require.ErrorIs(t, err, ErrInvalidItem)
}

func TestCreateRetriesOnceOnDuplicateNumber(t *testing.T) {
	repo := newMemoryRepo()
	repo.duplicateInserts = 1
	svc := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceInput(
		ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	))
	require.NoError(t, err)
	require.NotZero(t, doc.ID)

	repo.duplicateInserts = 2
	_, err = svc.Create(context.Background(), invoiceInput(
		ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	))
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestDeliveryNoteCreateDebitsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(11, 10, 5)
	svc := newTestService(repo)

	doc, err := svc.Create(context.Background(), CreateInput{
		Kind:      KindDeliveryNote,
		ContactID: 7,
		Date:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Items: []ItemInput{
			{ProductID: ptrInt64(11), Description: "Widget", Quantity: 6, UnitPrice: decimal.NewFromInt(100)},
		},
		ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "DN-03/26/0001", doc.Number)
	require.Equal(t, StatusPending, doc.Status)

	require.Len(t, repo.movements, 1)
	require.EqualValues(t, -6, repo.movements[0].Qty)
	require.Equal(t, stock.MovementTypeDocumentCreate, repo.movements[0].Type)
	require.EqualValues(t, 4, repo.products[11].Stock)
	require.Equal(t, stock.StatusLowStock, repo.products[11].Status)
}

func TestUpdateItemsIssuesQuantityDeltas(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(11, 10, 2)
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		Kind:      KindDeliveryNote,
		ContactID: 7,
		Items: []ItemInput{
			{ProductID: ptrInt64(11), Description: "Widget", Quantity: 6, UnitPrice: decimal.NewFromInt(100)},
		},
		ActorID: 1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, repo.products[11].Stock)

	items := []ItemInput{
		{ProductID: ptrInt64(11), Description: "Widget", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
	}
	updated, err := svc.Update(ctx, KindDeliveryNote, doc.ID, UpdateInput{Items: &items, ActorID: 1})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(200).Equal(updated.Subtotal), "subtotal %s", updated.Subtotal)

	// 6 reserved, now 2: four units come back.
	require.EqualValues(t, 8, repo.products[11].Stock)
	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, stock.MovementTypeDocumentUpdate, last.Type)
	require.EqualValues(t, 4, last.Qty)
}

func TestUpdateProductSwapMovesBothProducts(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(11, 10, 2)
	repo.addProduct(12, 10, 2)
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		Kind:      KindDeliveryNote,
		ContactID: 7,
		Items: []ItemInput{
			{ProductID: ptrInt64(11), Description: "Widget", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		},
		ActorID: 1,
	})
	require.NoError(t, err)

	items := []ItemInput{
		{ProductID: ptrInt64(12), Description: "Bracket", Quantity: 3, UnitPrice: decimal.NewFromInt(100)},
	}
	_, err = svc.Update(ctx, KindDeliveryNote, doc.ID, UpdateInput{Items: &items, ActorID: 1})
	require.NoError(t, err)

	// Old product fully restored, new product debited separately.
	require.EqualValues(t, 10, repo.products[11].Stock)
	require.EqualValues(t, 7, repo.products[12].Stock)
}

func TestChangeStatusEnforcesTransitionTable(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, invoiceInput(
		ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	))
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, KindInvoice, doc.ID, StatusPaid, 1)
	require.ErrorIs(t, err, ErrIllegalTransition)

	stored, err := svc.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)

	updated, err := svc.ChangeStatus(ctx, KindInvoice, doc.ID, StatusPending, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)

	updated, err = svc.ChangeStatus(ctx, KindInvoice, doc.ID, StatusPaid, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)
}

func TestCancelReversesStockOnce(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(11, 10, 2)
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		Kind:      KindDeliveryNote,
		ContactID: 7,
		Items: []ItemInput{
			{ProductID: ptrInt64(11), Description: "Widget", Quantity: 6, UnitPrice: decimal.NewFromInt(100)},
		},
		ActorID: 1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, repo.products[11].Stock)

	_, err = svc.ChangeStatus(ctx, KindDeliveryNote, doc.ID, StatusCancelled, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, repo.products[11].Stock)

	// Deleting afterwards must not restore the same units twice.
	require.NoError(t, svc.Delete(ctx, KindDeliveryNote, doc.ID, 1))
	require.EqualValues(t, 10, repo.products[11].Stock)
	_, err = svc.Get(ctx, KindDeliveryNote, doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteReversesOutstandingStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(11, 10, 2)
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		Kind:      KindDeliveryNote,
		ContactID: 7,
		Items: []ItemInput{
			{ProductID: ptrInt64(11), Description: "Widget", Quantity: 6, UnitPrice: decimal.NewFromInt(100)},
		},
		ActorID: 1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, KindDeliveryNote, doc.ID, 1))
	require.EqualValues(t, 10, repo.products[11].Stock)
	require.Equal(t, stock.StatusInStock, repo.products[11].Status)
}

func TestDeleteMissingDocument(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	err := svc.Delete(context.Background(), KindInvoice, 999, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTerminalDocumentIsRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, invoiceInput(
		ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, KindInvoice, doc.ID, StatusCancelled, 1)
	require.NoError(t, err)

	notes := "late edit"
	_, err = svc.Update(ctx, KindInvoice, doc.ID, UpdateInput{Notes: &notes, ActorID: 1})
	require.ErrorIs(t, err, ErrIllegalTransition)
}

type memoryIdem struct {
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestCreateWithIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	svc.SetIdempotency(&memoryIdem{keys: make(map[string]bool)})
	ctx := context.Background()

	input := invoiceInput(ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})
	input.IdempotencyKey = "req-1"

	_, err := svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestFailedCreateReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.duplicateInserts = 2
	svc := newTestService(repo)
	svc.SetIdempotency(&memoryIdem{keys: make(map[string]bool)})
	ctx := context.Background()

	input := invoiceInput(ItemInput{Description: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})
	input.IdempotencyKey = "req-2"

	_, err := svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrDuplicateNumber)

	// The failed attempt must not poison the retry.
	_, err = svc.Create(ctx, input)
	require.NoError(t, err)
}
