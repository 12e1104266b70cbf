package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-erp/internal/platform/httpx"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler exposes the document lifecycle over HTTP. One handler serves
// every registered kind; the kind comes from the route prefix.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers one CRUD+status route group per document kind,
// e.g. /invoices, /estimates, /delivery-notes.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range Kinds() {
		kind := kind
		r.Route("/"+routeSegment(kind), func(r chi.Router) {
			r.Get("/", h.list(kind))
			r.Post("/", h.create(kind))
			r.Get("/{id}", h.get(kind))
			r.Put("/{id}", h.update(kind))
			r.Delete("/{id}", h.delete(kind))
			r.Post("/{id}/status", h.changeStatus(kind))
		})
	}
}

func routeSegment(kind Kind) string {
	switch kind {
	case KindDeliveryNote:
		return "delivery-notes"
	case KindCreditNote:
		return "credit-notes"
	case KindPurchaseOrder:
		return "purchase-orders"
	case KindPurchaseInvoice:
		return "purchase-invoices"
	case KindDivers:
		return "divers"
	default:
		return string(kind) + "s"
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		input := CreateInput{
			Kind:           kind,
			ContactID:      req.ContactID,
			PaymentMethod:  req.PaymentMethod,
			Notes:          req.Notes,
			VATRate:        req.VATRate,
			WarehouseID:    req.WarehouseID,
			Items:          toItemInputs(req.Items),
			ActorID:        shared.ActorID(r.Context()),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		}
		if req.Date != "" {
			date, err := parseDate(req.Date)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
				return
			}
			input.Date = date
		}
		if req.DueDate != nil {
			due, err := parseDate(*req.DueDate)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "due_date must be YYYY-MM-DD")
				return
			}
			input.DueDate = &due
		}

		doc, err := h.service.Create(r.Context(), input)
		if err != nil {
			h.logger.Error("document create failed", slog.Any("error", err), slog.String("kind", string(kind)))
			respondDocumentError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) get(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		doc, err := h.service.Get(r.Context(), kind, id)
		if err != nil {
			respondDocumentError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{}
		q := r.URL.Query()
		if v := q.Get("contact_id"); v != "" {
			filter.ContactID, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := q.Get("status"); v != "" {
			filter.Status = Status(v)
		}
		if v := q.Get("from"); v != "" {
			if t, err := time.Parse(dateLayout, v); err == nil {
				filter.DateFrom = t
			}
		}
		if v := q.Get("to"); v != "" {
			if t, err := time.Parse(dateLayout, v); err == nil {
				filter.DateTo = t
			}
		}
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

		docs, pagination, err := h.service.List(r.Context(), kind, filter)
		if err != nil {
			h.logger.Error("document list failed", slog.Any("error", err), slog.String("kind", string(kind)))
			respondDocumentError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"documents":  docs,
			"pagination": pagination,
		})
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req updateRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}

		input := UpdateInput{
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
			ActorID:       shared.ActorID(r.Context()),
		}
		if req.Date != nil {
			date, err := parseDate(*req.Date)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
				return
			}
			input.Date = &date
		}
		if req.DueDate != nil {
			due, err := parseDate(*req.DueDate)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "due_date must be YYYY-MM-DD")
				return
			}
			input.DueDate = &due
		}
		if req.Items != nil {
			items := toItemInputs(*req.Items)
			input.Items = &items
		}

		doc, err := h.service.Update(r.Context(), kind, id, input)
		if err != nil {
			h.logger.Error("document update failed", slog.Any("error", err),
				slog.String("kind", string(kind)), slog.Int64("id", id))
			respondDocumentError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) delete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := h.service.Delete(r.Context(), kind, id, shared.ActorID(r.Context())); err != nil {
			h.logger.Error("document delete failed", slog.Any("error", err),
				slog.String("kind", string(kind)), slog.Int64("id", id))
			respondDocumentError(w, err)
			return
		}
		httpx.NoContent(w)
	}
}

func (h *Handler) changeStatus(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req statusRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		doc, err := h.service.ChangeStatus(r.Context(), kind, id, Status(req.Status), shared.ActorID(r.Context()))
		if err != nil {
			respondDocumentError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be numeric")
		return 0, false
	}
	return id, true
}

func respondDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrInvalidItem), errors.Is(err, ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrIllegalTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Illegal Transition", err.Error())
	case errors.Is(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Number", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
