// Package documents is the single write path for sales and purchase
// documents. It owns number allocation, header/item persistence, status
// transitions and the ledger entries of stock-moving document kinds.
package documents

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/sequence"
)

// Kind enumerates the supported document families.
type Kind string

const (
	KindInvoice         Kind = "invoice"
	KindEstimate        Kind = "estimate"
	KindDeliveryNote    Kind = "delivery_note"
	KindDivers          Kind = "divers"
	KindCreditNote      Kind = "credit_note"
	KindPurchaseOrder   Kind = "purchase_order"
	KindPurchaseInvoice Kind = "purchase_invoice"
)

// Status is a document lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusAccepted  Status = "accepted"
	StatusExpired   Status = "expired"
	StatusApplied   Status = "applied"
	StatusShipped   Status = "shipped"
	StatusReceived  Status = "received"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Definition is the static metadata of one document kind.
type Definition struct {
	Kind          Kind
	Prefix        string
	HeaderTable   string
	ItemTable     string
	FKColumn      string
	Discriminator string // document_type value for kinds sharing a table
	StockMoving   bool
	InitialStatus Status
	Transitions   map[Status][]Status
}

// CanTransition reports whether from→to is in the allowed set.
func (d Definition) CanTransition(from, to Status) bool {
	for _, allowed := range d.Transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (d Definition) IsTerminal(s Status) bool {
	return len(d.Transitions[s]) == 0
}

// Statuses returns every status reachable for the kind.
func (d Definition) Statuses() []Status {
	seen := map[Status]bool{d.InitialStatus: true}
	out := []Status{d.InitialStatus}
	for from, tos := range d.Transitions {
		for _, s := range append([]Status{from}, tos...) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

var registry = map[Kind]Definition{
	KindInvoice: {
		Kind:          KindInvoice,
		Prefix:        sequence.PrefixInvoice,
		HeaderTable:   "invoices",
		ItemTable:     "invoice_items",
		FKColumn:      "invoice_id",
		InitialStatus: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:   {StatusPending, StatusCancelled},
			StatusPending: {StatusPaid, StatusOverdue, StatusCancelled},
			StatusOverdue: {StatusPaid, StatusCancelled},
		},
	},
	KindEstimate: {
		Kind:          KindEstimate,
		Prefix:        sequence.PrefixEstimate,
		HeaderTable:   "estimates",
		ItemTable:     "estimate_items",
		FKColumn:      "estimate_id",
		InitialStatus: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft: {StatusSent, StatusCancelled},
			StatusSent:  {StatusAccepted, StatusExpired, StatusCancelled},
		},
	},
	KindDeliveryNote: {
		Kind:          KindDeliveryNote,
		Prefix:        sequence.PrefixDeliveryNote,
		HeaderTable:   "delivery_notes",
		ItemTable:     "delivery_note_items",
		FKColumn:      "delivery_note_id",
		Discriminator: "delivery_note",
		StockMoving:   true,
		InitialStatus: StatusPending,
		Transitions: map[Status][]Status{
			StatusPending:   {StatusInTransit, StatusCancelled},
			StatusInTransit: {StatusDelivered, StatusCancelled},
		},
	},
	KindDivers: {
		Kind:          KindDivers,
		Prefix:        sequence.PrefixDivers,
		HeaderTable:   "delivery_notes",
		ItemTable:     "delivery_note_items",
		FKColumn:      "delivery_note_id",
		Discriminator: "divers",
		StockMoving:   true,
		InitialStatus: StatusPending,
		Transitions: map[Status][]Status{
			StatusPending:   {StatusInTransit, StatusCancelled},
			StatusInTransit: {StatusDelivered, StatusCancelled},
		},
	},
	KindCreditNote: {
		Kind:          KindCreditNote,
		Prefix:        sequence.PrefixCreditNote,
		HeaderTable:   "credit_notes",
		ItemTable:     "credit_note_items",
		FKColumn:      "credit_note_id",
		InitialStatus: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft: {StatusSent, StatusCancelled},
			StatusSent:  {StatusApplied, StatusCancelled},
		},
	},
	KindPurchaseOrder: {
		Kind:          KindPurchaseOrder,
		Prefix:        sequence.PrefixPurchaseOrder,
		HeaderTable:   "purchase_orders",
		ItemTable:     "purchase_order_items",
		FKColumn:      "purchase_order_id",
		InitialStatus: StatusPending,
		Transitions: map[Status][]Status{
			StatusPending: {StatusShipped, StatusCancelled},
			StatusShipped: {StatusReceived, StatusCancelled},
		},
	},
	KindPurchaseInvoice: {
		Kind:          KindPurchaseInvoice,
		Prefix:        sequence.PrefixPurchaseInvoice,
		HeaderTable:   "purchase_invoices",
		ItemTable:     "purchase_invoice_items",
		FKColumn:      "purchase_invoice_id",
		InitialStatus: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:   {StatusPending, StatusCancelled},
			StatusPending: {StatusPaid, StatusOverdue, StatusCancelled},
			StatusOverdue: {StatusPaid, StatusCancelled},
		},
	},
}

// Lookup returns the definition of a kind.
func Lookup(kind Kind) (Definition, error) {
	def, ok := registry[kind]
	if !ok {
		return Definition{}, ErrUnknownKind
	}
	return def, nil
}

// Kinds lists every registered kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// Document is a header together with its line items.
type Document struct {
	ID            int64           `json:"id"`
	Kind          Kind            `json:"kind"`
	Number        string          `json:"number"`
	ContactID     int64           `json:"contact_id"`
	Date          time.Time       `json:"date"`
	Status        Status          `json:"status"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	WarehouseID   int64           `json:"warehouse_id,omitempty"`
	CreatedBy     int64           `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items,omitempty"`
}

// Item is one line belonging to exactly one document header.
type Item struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"document_id"`
	ProductID   *int64          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Position    int             `json:"position"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	ContactID int64
	Status    Status
	DateFrom  time.Time
	DateTo    time.Time
	Page      int
	PerPage   int
}

var (
	// ErrUnknownKind indicates an unregistered document kind.
	ErrUnknownKind = errors.New("documents: unknown document kind")
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("documents: not found")
	// ErrDuplicateNumber indicates a unique violation on the number column.
	ErrDuplicateNumber = errors.New("documents: duplicate document number")
	// ErrInvalidItem indicates a malformed line item.
	ErrInvalidItem = errors.New("documents: invalid line item")
	// ErrNoItems indicates a document without line items.
	ErrNoItems = errors.New("documents: at least one line item required")
	// ErrIllegalTransition indicates a status change outside the allowed set.
	ErrIllegalTransition = errors.New("documents: illegal status transition")
)
