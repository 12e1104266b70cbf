package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlas-erp/atlas-erp/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Contact, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Contact, error) {
	if id <= 0 {
		return Contact{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, contact Contact) (Contact, error) {
	if err := s.validate(contact); err != nil {
		return Contact{}, err
	}
	return s.repo.Create(ctx, contact)
}

func (s *Service) Update(ctx context.Context, id int64, contact Contact) (Contact, error) {
	if id <= 0 {
		return Contact{}, shared.ErrInvalidID
	}
	if err := s.validate(contact); err != nil {
		return Contact{}, err
	}
	if err := s.repo.Update(ctx, id, contact); err != nil {
		return Contact{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(c Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if c.Kind != KindClient && c.Kind != KindSupplier {
		return fmt.Errorf("%w: kind must be client or supplier", shared.ErrValidation)
	}
	return nil
}
