package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products  map[int64]*ProductState
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]*ProductState)}
}

func (r *memoryRepo) addProduct(id int64, stock, minStock float64) {
	r.products[id] = &ProductState{ProductID: id, Stock: stock, MinStock: minStock, Status: ProjectStatus(stock, minStock)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxPort) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.ProductID == filter.ProductID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetProductState(ctx context.Context, productID int64) (ProductState, error) {
	if p, ok := r.products[productID]; ok {
		return *p, nil
	}
	return ProductState{}, ErrProductNotFound
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (ProductState, error) {
	return tx.repo.GetProductState(ctx, productID)
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, productID int64, stock float64, status ProductStatus) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock = stock
	p.Status = status
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) ListDocumentMovements(ctx context.Context, refDocType string, refDocID int64) ([]Movement, error) {
	var out []Movement
	for _, m := range tx.repo.movements {
		if m.RefDocType == refDocType && m.RefDocID == refDocID {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestProjectStatus(t *testing.T) {
	cases := []struct {
		stock, minStock float64
		want            ProductStatus
	}{
		{0, 5, StatusOutOfStock},
		{-2, 5, StatusOutOfStock},
		{3, 5, StatusLowStock},
		{5, 5, StatusLowStock},
		{6, 5, StatusInStock},
		{10, 0, StatusInStock},
		{0, 0, StatusOutOfStock},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ProjectStatus(c.stock, c.minStock), "stock=%v min=%v", c.stock, c.minStock)
	}
}

func TestRecordUpdatesProjection(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5)
	svc := NewService(repo, nil)
	ctx := context.Background()

	m, err := svc.Record(ctx, RecordInput{
		ProductID:  1,
		Qty:        -6,
		Type:       MovementTypeDocumentCreate,
		RefDocType: "delivery_note",
		RefDocID:   42,
	})
	require.NoError(t, err)
	require.EqualValues(t, -6, m.Qty)

	state, err := svc.ProductState(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, state.Stock)
	require.Equal(t, StatusLowStock, state.Status)
}

func TestCreateThenReverseRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{ProductID: 1, Qty: -6, Type: MovementTypeDocumentCreate, RefDocType: "delivery_note", RefDocID: 42})
	require.NoError(t, err)

	reversals, err := svc.Reverse(ctx, "delivery_note", 42, "document deleted", 0)
	require.NoError(t, err)
	require.Len(t, reversals, 1)
	require.EqualValues(t, 6, reversals[0].Qty)
	require.Equal(t, MovementTypeDocumentCancel, reversals[0].Type)

	state, err := svc.ProductState(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, state.Stock)
	require.Equal(t, StatusInStock, state.Status)

	// Original entry is untouched; the reversal is a new entry.
	movements, err := svc.Movements(ctx, MovementFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.EqualValues(t, -6, movements[0].Qty)
	require.EqualValues(t, 6, movements[1].Qty)
}

func TestReverseIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{ProductID: 1, Qty: -6, Type: MovementTypeDocumentCreate, RefDocType: "delivery_note", RefDocID: 42})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, "delivery_note", 42, "cancelled", 0)
	require.NoError(t, err)
	again, err := svc.Reverse(ctx, "delivery_note", 42, "cancelled", 0)
	require.NoError(t, err)
	require.Empty(t, again)

	state, err := svc.ProductState(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, state.Stock)
}

func TestReverseSkipsFloatResidue(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5)
	svc := NewService(repo, nil)
	ctx := context.Background()

	// 0.1 + 0.2 is not 0.3 in float64. A document whose deltas net out on
	// paper must not leave a residue reversal entry behind.
	for _, qty := range []float64{-0.1, -0.2, 0.3} {
		_, err := svc.Record(ctx, RecordInput{ProductID: 1, Qty: qty, Type: MovementTypeDocumentUpdate, RefDocType: "delivery_note", RefDocID: 42})
		require.NoError(t, err)
	}

	reversals, err := svc.Reverse(ctx, "delivery_note", 42, "cancelled", 0)
	require.NoError(t, err)
	require.Empty(t, reversals)
}

func TestReverseUnknownDocumentIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	reversals, err := svc.Reverse(context.Background(), "delivery_note", 999, "nothing", 0)
	require.NoError(t, err)
	require.Empty(t, reversals)
}

func TestRecordRejectsZeroDelta(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5)
	svc := NewService(repo, nil)

	_, err := svc.Record(context.Background(), RecordInput{ProductID: 1, Qty: 0, Type: MovementTypeManualAdjustment})
	require.ErrorIs(t, err, ErrZeroQuantity)
}

func TestRecordUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Record(context.Background(), RecordInput{ProductID: 7, Qty: 1, Type: MovementTypeManualAdjustment})
	require.ErrorIs(t, err, ErrProductNotFound)
}
