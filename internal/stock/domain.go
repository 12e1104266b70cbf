package stock

import (
	"errors"
	"time"
)

// MovementType tags the cause of a ledger entry.
type MovementType string

const (
	// MovementTypeDocumentCreate is an entry written when a stock-moving
	// document is created.
	MovementTypeDocumentCreate MovementType = "document_create"
	// MovementTypeDocumentUpdate is an entry written when line items of a
	// stock-moving document change quantity or product.
	MovementTypeDocumentUpdate MovementType = "document_update"
	// MovementTypeDocumentCancel reverses a document's entries on delete or
	// cancellation.
	MovementTypeDocumentCancel MovementType = "document_cancel"
	// MovementTypeManualAdjustment covers stock corrections outside any
	// document.
	MovementTypeManualAdjustment MovementType = "manual_adjustment"
	// MovementTypeOrphanedReversal reverses entries whose parent document is
	// already gone; recorded rather than silently dropped.
	MovementTypeOrphanedReversal MovementType = "orphaned_reversal"
)

// ProductStatus classifies a product's on-hand level.
type ProductStatus string

const (
	StatusInStock    ProductStatus = "in_stock"
	StatusLowStock   ProductStatus = "low_stock"
	StatusOutOfStock ProductStatus = "out_of_stock"
)

// ProjectStatus derives the status classification from stock and the
// reorder threshold. Pure function; recomputed on every ledger write.
func ProjectStatus(stock, minStock float64) ProductStatus {
	switch {
	case stock <= 0:
		return StatusOutOfStock
	case stock <= minStock:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Movement is one immutable ledger entry. Corrections are new entries with
// the inverse delta, never mutations of prior rows.
type Movement struct {
	ID          int64        `json:"id"`
	ProductID   int64        `json:"product_id"`
	WarehouseID int64        `json:"warehouse_id,omitempty"` // 0 when not warehouse-scoped
	Qty         float64      `json:"qty"`                    // signed delta
	Type        MovementType `json:"type"`
	RefDocType  string       `json:"ref_doc_type,omitempty"`
	RefDocID    int64        `json:"ref_doc_id,omitempty"`
	Description string       `json:"description,omitempty"`
	CreatedBy   int64        `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ProductState is the cached projection held on the products row.
type ProductState struct {
	ProductID int64
	Stock     float64
	MinStock  float64
	Status    ProductStatus
}

// RecordInput describes one quantity-affecting event.
type RecordInput struct {
	ProductID   int64
	WarehouseID int64
	Qty         float64 // signed: negative when stock leaves
	Type        MovementType
	RefDocType  string
	RefDocID    int64
	Description string
	ActorID     int64
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

var (
	// ErrZeroQuantity indicates a movement with no effect.
	ErrZeroQuantity = errors.New("stock: quantity delta must be non zero")
	// ErrProductNotFound indicates the product row is missing.
	ErrProductNotFound = errors.New("stock: product not found")
	// ErrNothingToReverse indicates a reversal for a document with no
	// outstanding ledger entries.
	ErrNothingToReverse = errors.New("stock: no ledger entries to reverse")
)
