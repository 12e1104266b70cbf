package stock

import (
	"context"
	"fmt"
	"math"
	"time"
)

// qtyTolerance absorbs float64 residue left by summing fractional deltas.
// A netted quantity below it counts as fully reversed.
const qtyTolerance = 1e-9

// TxPort is the transactional surface the ledger needs. It is implemented
// by this package's repository and by the documents repository, so document
// creation can write ledger entries on its own transaction.
type TxPort interface {
	GetProductForUpdate(ctx context.Context, productID int64) (ProductState, error)
	UpdateProductStock(ctx context.Context, productID int64, stock float64, status ProductStatus) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	ListDocumentMovements(ctx context.Context, refDocType string, refDocID int64) ([]Movement, error)
}

// Apply appends one ledger entry and updates the product's cached stock and
// status on the same transaction. Both writes succeed or the transaction
// rolls back; partial application is the bug this function exists to avoid.
func Apply(ctx context.Context, tx TxPort, input RecordInput) (Movement, error) {
	if input.Qty == 0 {
		return Movement{}, ErrZeroQuantity
	}
	if input.ProductID == 0 {
		return Movement{}, fmt.Errorf("stock: product required")
	}
	if input.Type == "" {
		return Movement{}, fmt.Errorf("stock: movement type required")
	}

	state, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}

	m := Movement{
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Qty:         input.Qty,
		Type:        input.Type,
		RefDocType:  input.RefDocType,
		RefDocID:    input.RefDocID,
		Description: input.Description,
		CreatedBy:   input.ActorID,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id

	newStock := state.Stock + input.Qty
	if err := tx.UpdateProductStock(ctx, input.ProductID, newStock, ProjectStatus(newStock, state.MinStock)); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// ReverseDocument appends inverse entries for every outstanding ledger
// entry of a document and restores product stock accordingly. Reversal is
// idempotent: entries already netted out by a prior reversal are skipped,
// so cancelling twice (or cancelling after an update) never double-credits.
func ReverseDocument(ctx context.Context, tx TxPort, refDocType string, refDocID int64, movementType MovementType, reason string, actorID int64) ([]Movement, error) {
	if movementType != MovementTypeDocumentCancel && movementType != MovementTypeOrphanedReversal {
		return nil, fmt.Errorf("stock: %q is not a reversal movement type", movementType)
	}

	entries, err := tx.ListDocumentMovements(ctx, refDocType, refDocID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNothingToReverse
	}

	// Net outstanding delta per product. A fully reversed document nets to
	// zero everywhere and the reversal becomes a no-op.
	type bucket struct {
		warehouseID int64
		qty         float64
	}
	outstanding := make(map[int64]*bucket)
	for _, e := range entries {
		b, ok := outstanding[e.ProductID]
		if !ok {
			b = &bucket{warehouseID: e.WarehouseID}
			outstanding[e.ProductID] = b
		}
		b.qty += e.Qty
	}

	var reversals []Movement
	for productID, b := range outstanding {
		if math.Abs(b.qty) <= qtyTolerance {
			continue
		}
		m, err := Apply(ctx, tx, RecordInput{
			ProductID:   productID,
			WarehouseID: b.warehouseID,
			Qty:         -b.qty,
			Type:        movementType,
			RefDocType:  refDocType,
			RefDocID:    refDocID,
			Description: reason,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, err
		}
		reversals = append(reversals, m)
	}
	return reversals, nil
}
