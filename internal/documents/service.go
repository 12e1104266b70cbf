package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/sequence"
	"github.com/atlas-erp/atlas-erp/internal/shared"
	"github.com/atlas-erp/atlas-erp/internal/stock"
)

// TxRepository exposes the transactional operations of one logical document
// operation. It embeds the stock ledger and sequence counter ports so that
// number allocation, header/item writes and ledger entries commit or roll
// back as one unit.
type TxRepository interface {
	stock.TxPort
	sequence.CounterPort
	sequence.ScanPort

	InsertHeader(ctx context.Context, doc Document) (int64, error)
	UpdateHeader(ctx context.Context, doc Document) error
	UpdateStatus(ctx context.Context, kind Kind, id int64, status Status) error
	InsertItem(ctx context.Context, kind Kind, item Item) (int64, error)
	DeleteItems(ctx context.Context, kind Kind, docID int64) error
	DeleteHeader(ctx context.Context, kind Kind, id int64) error
	Get(ctx context.Context, kind Kind, id int64) (Document, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, kind Kind, id int64) (Document, error)
	List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsSink receives domain counters. Implemented by observability.Metrics.
type MetricsSink interface {
	CountDocument(kind string)
	CountStockMovement()
}

// IdempotencyPort guards create against client retries. Implemented by
// shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the document lifecycle manager: the only component permitted
// to create, mutate or delete a header together with its items, and the
// only caller of the sequence allocator and the stock ledger.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	logger  *slog.Logger
	metrics MetricsSink
	idem    IdempotencyPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// SetMetrics installs an optional counter sink.
func (s *Service) SetMetrics(m MetricsSink) {
	s.metrics = m
}

// SetIdempotency installs an optional create guard keyed by the client's
// Idempotency-Key header.
func (s *Service) SetIdempotency(p IdempotencyPort) {
	s.idem = p
}

func (s *Service) countDocument(kind Kind) {
	if s.metrics != nil {
		s.metrics.CountDocument(string(kind))
	}
}

func (s *Service) countMovements(n int) {
	if s.metrics == nil {
		return
	}
	for i := 0; i < n; i++ {
		s.metrics.CountStockMovement()
	}
}

// ItemInput describes one line item on create/update.
type ItemInput struct {
	ProductID   *int64
	Description string
	Quantity    float64
	UnitPrice   decimal.Decimal
}

// CreateInput describes a document creation.
type CreateInput struct {
	Kind           Kind
	ContactID      int64
	Date           time.Time
	DueDate        *time.Time
	PaymentMethod  *string
	Notes          *string
	VATRate        *decimal.Decimal
	WarehouseID    int64
	Items          []ItemInput
	ActorID        int64
	IdempotencyKey string
}

// UpdateInput patches a document. Nil fields are left unchanged; a non-nil
// Items slice replaces the whole item set.
type UpdateInput struct {
	Date          *time.Time
	DueDate       *time.Time
	PaymentMethod *string
	Notes         *string
	Items         *[]ItemInput
	ActorID       int64
}

// Create validates, numbers and persists a document; for stock-moving
// kinds it writes one ledger debit per product line. Everything happens in
// one transaction: a failed item or ledger insert rolls back the header and
// the number allocation together. A duplicate number (possible when the
// fallback allocator raced another writer) is retried once with a fresh
// allocation before the conflict surfaces.
func (s *Service) Create(ctx context.Context, input CreateInput) (Document, error) {
	def, err := Lookup(input.Kind)
	if err != nil {
		return Document{}, err
	}
	if err := validateItems(input.Items); err != nil {
		return Document{}, err
	}
	if input.ContactID == 0 {
		return Document{}, fmt.Errorf("%w: contact required", ErrInvalidItem)
	}
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "documents"); err != nil {
			return Document{}, err
		}
	}

	vatRate := DefaultVATRate
	if input.VATRate != nil {
		vatRate = *input.VATRate
	}

	doc := Document{
		Kind:          input.Kind,
		ContactID:     input.ContactID,
		Date:          input.Date,
		Status:        def.InitialStatus,
		DueDate:       input.DueDate,
		PaymentMethod: input.PaymentMethod,
		Notes:         input.Notes,
		VATRate:       vatRate,
		WarehouseID:   input.WarehouseID,
		CreatedBy:     input.ActorID,
	}
	doc.Items = buildItems(input.Items)
	doc.Subtotal, doc.TaxAmount, doc.Total = ComputeTotals(doc.Items, vatRate)

	created, err := s.createOnce(ctx, def, doc)
	if errors.Is(err, ErrDuplicateNumber) {
		if s.logger != nil {
			s.logger.Warn("document number conflict, retrying allocation once",
				slog.String("kind", string(def.Kind)))
		}
		created, err = s.createOnce(ctx, def, doc)
	}
	if err != nil {
		// Release the key so the client may retry the failed create.
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return Document{}, err
	}

	s.countDocument(def.Kind)
	if def.StockMoving {
		moved := 0
		for _, item := range created.Items {
			if item.ProductID != nil {
				moved++
			}
		}
		s.countMovements(moved)
	}

	s.recordAudit(ctx, input.ActorID, string(def.Kind)+":create", created.ID, map[string]any{
		"number": created.Number,
		"total":  created.Total.String(),
	})
	return created, nil
}

func (s *Service) createOnce(ctx context.Context, def Definition, doc Document) (Document, error) {
	var created Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc := sequence.NewAllocator(tx, tx, s.logger)
		number, err := alloc.Next(ctx, def.Prefix, doc.Date)
		if err != nil {
			return err
		}
		doc.Number = number

		docID, err := tx.InsertHeader(ctx, doc)
		if err != nil {
			return err
		}
		for i := range doc.Items {
			doc.Items[i].DocumentID = docID
			itemID, err := tx.InsertItem(ctx, def.Kind, doc.Items[i])
			if err != nil {
				return err
			}
			doc.Items[i].ID = itemID
		}

		if def.StockMoving {
			for _, item := range doc.Items {
				if item.ProductID == nil {
					continue
				}
				_, err := stock.Apply(ctx, tx, stock.RecordInput{
					ProductID:   *item.ProductID,
					WarehouseID: doc.WarehouseID,
					Qty:         -item.Quantity,
					Type:        stock.MovementTypeDocumentCreate,
					RefDocType:  string(def.Kind),
					RefDocID:    docID,
					Description: fmt.Sprintf("%s %s", def.Prefix, number),
					ActorID:     doc.CreatedBy,
				})
				if err != nil {
					return err
				}
			}
		}

		created = doc
		created.ID = docID
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return created, nil
}

// Update patches header fields and, when items are replaced, computes the
// quantity difference against the previous item set and issues the
// corresponding ledger deltas. A product swap on a line yields two
// movements (reverse the old product, debit the new), never one combined
// entry.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, input UpdateInput) (Document, error) {
	def, err := Lookup(kind)
	if err != nil {
		return Document{}, err
	}
	if input.Items != nil {
		if err := validateItems(*input.Items); err != nil {
			return Document{}, err
		}
	}

	var updated Document
	var moved int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if def.IsTerminal(doc.Status) {
			return fmt.Errorf("%w: %s documents in status %q are read only", ErrIllegalTransition, kind, doc.Status)
		}

		if input.Date != nil {
			doc.Date = *input.Date
		}
		if input.DueDate != nil {
			doc.DueDate = input.DueDate
		}
		if input.PaymentMethod != nil {
			doc.PaymentMethod = input.PaymentMethod
		}
		if input.Notes != nil {
			doc.Notes = input.Notes
		}

		if input.Items != nil {
			newItems := buildItems(*input.Items)

			if def.StockMoving {
				n, err := s.applyItemDeltas(ctx, tx, def, doc, newItems, input.ActorID)
				if err != nil {
					return err
				}
				moved = n
			}

			if err := tx.DeleteItems(ctx, kind, id); err != nil {
				return err
			}
			for i := range newItems {
				newItems[i].DocumentID = id
				itemID, err := tx.InsertItem(ctx, kind, newItems[i])
				if err != nil {
					return err
				}
				newItems[i].ID = itemID
			}
			doc.Items = newItems
			doc.Subtotal, doc.TaxAmount, doc.Total = ComputeTotals(doc.Items, doc.VATRate)
		}

		if err := tx.UpdateHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	s.countMovements(moved)
	s.recordAudit(ctx, input.ActorID, string(kind)+":update", id, map[string]any{"number": updated.Number})
	return updated, nil
}

// applyItemDeltas issues ledger movements for the difference between the
// stored item set and its replacement. It returns the number of movements
// written.
func (s *Service) applyItemDeltas(ctx context.Context, tx TxRepository, def Definition, doc Document, newItems []Item, actorID int64) (int, error) {
	oldQty := make(map[int64]float64)
	for _, item := range doc.Items {
		if item.ProductID != nil {
			oldQty[*item.ProductID] += item.Quantity
		}
	}
	newQty := make(map[int64]float64)
	for _, item := range newItems {
		if item.ProductID != nil {
			newQty[*item.ProductID] += item.Quantity
		}
	}

	for productID := range oldQty {
		if _, ok := newQty[productID]; !ok {
			newQty[productID] = 0
		}
	}
	moved := 0
	for productID, qty := range newQty {
		delta := -(qty - oldQty[productID])
		if delta == 0 {
			continue
		}
		_, err := stock.Apply(ctx, tx, stock.RecordInput{
			ProductID:   productID,
			WarehouseID: doc.WarehouseID,
			Qty:         delta,
			Type:        stock.MovementTypeDocumentUpdate,
			RefDocType:  string(def.Kind),
			RefDocID:    doc.ID,
			Description: fmt.Sprintf("%s %s line change", def.Prefix, doc.Number),
			ActorID:     actorID,
		})
		if err != nil {
			return 0, err
		}
		moved++
	}
	return moved, nil
}

// Delete reverses all of the document's ledger entries, then removes items
// and header in the same transaction. When the header is already gone but
// ledger entries remain, the reversal is still recorded against the
// last-known document id, tagged orphaned.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64, actorID int64) error {
	def, err := Lookup(kind)
	if err != nil {
		return err
	}

	var reversed int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.Get(ctx, kind, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) && def.StockMoving {
				return s.reverseOrphaned(ctx, tx, def, id, actorID)
			}
			return err
		}

		if def.StockMoving {
			movs, err := stock.ReverseDocument(ctx, tx, string(def.Kind), id, stock.MovementTypeDocumentCancel,
				fmt.Sprintf("%s %s deleted", def.Prefix, doc.Number), actorID)
			if err != nil && !errors.Is(err, stock.ErrNothingToReverse) {
				return err
			}
			reversed = len(movs)
		}
		if err := tx.DeleteItems(ctx, kind, id); err != nil {
			return err
		}
		return tx.DeleteHeader(ctx, kind, id)
	})
	if err != nil {
		return err
	}

	s.countMovements(reversed)
	s.recordAudit(ctx, actorID, string(kind)+":delete", id, nil)
	return nil
}

func (s *Service) reverseOrphaned(ctx context.Context, tx TxRepository, def Definition, id int64, actorID int64) error {
	_, err := stock.ReverseDocument(ctx, tx, string(def.Kind), id, stock.MovementTypeOrphanedReversal,
		fmt.Sprintf("%s #%d reversal, header already removed", def.Prefix, id), actorID)
	if errors.Is(err, stock.ErrNothingToReverse) {
		return ErrNotFound
	}
	return err
}

// ChangeStatus validates the transition against the kind's static table and
// applies it. Cancelling a stock-moving document reverses its ledger
// entries exactly once; no other status change touches stock.
func (s *Service) ChangeStatus(ctx context.Context, kind Kind, id int64, newStatus Status, actorID int64) (Document, error) {
	def, err := Lookup(kind)
	if err != nil {
		return Document{}, err
	}

	var updated Document
	var reversed int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if !def.CanTransition(doc.Status, newStatus) {
			return fmt.Errorf("%w: %s %s → %s", ErrIllegalTransition, kind, doc.Status, newStatus)
		}

		if err := tx.UpdateStatus(ctx, kind, id, newStatus); err != nil {
			return err
		}

		if def.StockMoving && newStatus == StatusCancelled {
			movs, err := stock.ReverseDocument(ctx, tx, string(def.Kind), id, stock.MovementTypeDocumentCancel,
				fmt.Sprintf("%s %s cancelled", def.Prefix, doc.Number), actorID)
			if err != nil && !errors.Is(err, stock.ErrNothingToReverse) {
				return err
			}
			reversed = len(movs)
		}

		doc.Status = newStatus
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	s.countMovements(reversed)
	s.recordAudit(ctx, actorID, string(kind)+":status", id, map[string]any{"status": string(newStatus)})
	return updated, nil
}

// Get fetches one document with its items.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	if _, err := Lookup(kind); err != nil {
		return Document{}, err
	}
	return s.repo.Get(ctx, kind, id)
}

// List pages through documents of a kind.
func (s *Service) List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, shared.Pagination, error) {
	if _, err := Lookup(kind); err != nil {
		return nil, shared.Pagination{}, err
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	docs, total, err := s.repo.List(ctx, kind, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	// Every item must be well formed, not merely one of them.
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return fmt.Errorf("%w: item %d has no description", ErrInvalidItem, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be > 0", ErrInvalidItem, i+1)
		}
		if !item.UnitPrice.IsPositive() {
			return fmt.Errorf("%w: item %d unit price must be > 0", ErrInvalidItem, i+1)
		}
	}
	return nil
}

func buildItems(inputs []ItemInput) []Item {
	items := make([]Item, 0, len(inputs))
	for i, input := range inputs {
		items = append(items, Item{
			ProductID:   input.ProductID,
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			LineTotal:   LineTotal(input.Quantity, input.UnitPrice),
			Position:    i + 1,
		})
	}
	return items
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
