package products

import (
	"fmt"
	"strings"

	"github.com/atlas-erp/atlas-erp/internal/masterdata/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: sku is required", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if p.MinStock < 0 {
		return fmt.Errorf("%w: min_stock must not be negative", shared.ErrValidation)
	}
	if p.PurchasePrice.IsNegative() || p.SalePrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", shared.ErrValidation)
	}
	return nil
}
