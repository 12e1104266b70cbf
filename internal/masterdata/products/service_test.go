package products

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/masterdata/shared"
	"github.com/atlas-erp/atlas-erp/internal/stock"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64

	// beforeUpdate interleaves a write between the caller's read and the
	// UPDATE, the way a concurrent ledger entry would.
	beforeUpdate func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, product Product) (Product, error) {
	for _, p := range r.products {
		if p.SKU == product.SKU {
			return Product{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product, nil
}

// Update mirrors the SQL statement: stock is never written and status is
// recomputed from the row's stock at write time, not from the caller.
func (r *memoryRepo) Update(ctx context.Context, id int64, product Product) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	current, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	product.ID = id
	product.Stock = current.Stock
	product.Status = string(stock.ProjectStatus(current.Stock, product.MinStock))
	r.products[id] = product
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

// setStock emulates the ledger projection outside the catalog API: the
// ledger updates stock and status together.
func (r *memoryRepo) setStock(id int64, qty float64) {
	p := r.products[id]
	p.Stock = qty
	p.Status = string(stock.ProjectStatus(qty, p.MinStock))
	r.products[id] = p
}

func testProduct(sku string) Product {
	return Product{
		SKU:       sku,
		Name:      "Widget " + sku,
		SalePrice: decimal.NewFromInt(100),
		MinStock:  5,
	}
}

func TestCreateEnforcesUniqueSKU(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, testProduct("SKU-1"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, testProduct("SKU-1"))
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateStartsWithZeroStock(t *testing.T) {
	svc := NewService(newMemoryRepo())

	p, err := svc.Create(context.Background(), testProduct("SKU-1"))
	require.NoError(t, err)
	require.Zero(t, p.Stock)
	require.Equal(t, "out_of_stock", p.Status)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	bad := testProduct("")
	_, err := svc.Create(ctx, bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = testProduct("SKU-1")
	bad.Name = " "
	_, err = svc.Create(ctx, bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = testProduct("SKU-1")
	bad.MinStock = -1
	_, err = svc.Create(ctx, bad)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateMinStockRecomputesStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, testProduct("SKU-1"))
	require.NoError(t, err)
	repo.setStock(p.ID, 8)

	// 8 on hand, threshold 5: healthy.
	form := testProduct("SKU-1")
	updated, err := svc.Update(ctx, p.ID, form)
	require.NoError(t, err)
	require.Equal(t, "in_stock", updated.Status)

	// Raising the threshold above the level flips the projection.
	form.MinStock = 10
	updated, err = svc.Update(ctx, p.ID, form)
	require.NoError(t, err)
	require.Equal(t, "low_stock", updated.Status)
	require.EqualValues(t, 8, updated.Stock)
}

func TestUpdateStatusSurvivesConcurrentDebit(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, testProduct("SKU-1"))
	require.NoError(t, err)
	repo.setStock(p.ID, 10)

	// A delivery debits the product after the catalog form was read but
	// before its write lands. The persisted status must follow the stock
	// the row actually has.
	repo.beforeUpdate = func() { repo.setStock(p.ID, 4) }

	updated, err := svc.Update(ctx, p.ID, testProduct("SKU-1"))
	require.NoError(t, err)
	require.EqualValues(t, 4, updated.Stock)
	require.Equal(t, "low_stock", updated.Status)
}

func TestUpdateCannotSetStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, testProduct("SKU-1"))
	require.NoError(t, err)
	repo.setStock(p.ID, 3)

	form := testProduct("SKU-1")
	form.Stock = 999
	updated, err := svc.Update(ctx, p.ID, form)
	require.NoError(t, err)
	require.EqualValues(t, 3, updated.Stock)
}

func TestDeleteMissingProduct(t *testing.T) {
	svc := NewService(newMemoryRepo())
	err := svc.Delete(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
