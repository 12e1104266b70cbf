package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxPort) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	GetProductState(ctx context.Context, productID int64) (ProductState, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the only write path to product stock. There is deliberately no
// raw stock setter anywhere in the API; manual corrections go through
// Adjust and are tagged as such in the ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Record appends one ledger entry atomically with the product projection.
func (s *Service) Record(ctx context.Context, input RecordInput) (Movement, error) {
	var m Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxPort) error {
		var err error
		m, err = Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock:"+string(input.Type), input.ProductID, map[string]any{
		"qty":          input.Qty,
		"ref_doc_type": input.RefDocType,
		"ref_doc_id":   input.RefDocID,
	})
	return m, nil
}

// Adjust records a manual stock correction.
func (s *Service) Adjust(ctx context.Context, productID, warehouseID int64, qty float64, description string, actorID int64) (Movement, error) {
	return s.Record(ctx, RecordInput{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Qty:         qty,
		Type:        MovementTypeManualAdjustment,
		Description: description,
		ActorID:     actorID,
	})
}

// Reverse nets out all outstanding ledger entries of a document.
func (s *Service) Reverse(ctx context.Context, refDocType string, refDocID int64, reason string, actorID int64) ([]Movement, error) {
	var reversals []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxPort) error {
		var err error
		reversals, err = ReverseDocument(ctx, tx, refDocType, refDocID, MovementTypeDocumentCancel, reason, actorID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNothingToReverse) {
			return nil, nil
		}
		return nil, err
	}
	s.recordAudit(ctx, actorID, "stock:reverse", refDocID, map[string]any{
		"ref_doc_type": refDocType,
		"entries":      len(reversals),
	})
	return reversals, nil
}

// Movements lists ledger entries for a product.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID == 0 {
		return nil, fmt.Errorf("stock: product required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// ProductState returns the cached projection for a product.
func (s *Service) ProductState(ctx context.Context, productID int64) (ProductState, error) {
	return s.repo.GetProductState(ctx, productID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
