package products

import (
	"context"

	"github.com/atlas-erp/atlas-erp/internal/masterdata/shared"
	"github.com/atlas-erp/atlas-erp/internal/stock"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Create registers a product with zero stock. The status projection
// starts from the empty shelf, so a positive min_stock yields
// out_of_stock until the first ledger entry.
func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	product.Stock = 0
	product.Status = string(stock.ProjectStatus(0, product.MinStock))
	return s.repo.Create(ctx, product)
}

// Update patches catalog fields. Stock is never writable here; the
// repository recomputes the status projection from the row's current
// stock and the new min_stock in the same statement.
func (s *Service) Update(ctx context.Context, id int64, product Product) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	if err := s.repo.Update(ctx, id, product); err != nil {
		return Product{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
