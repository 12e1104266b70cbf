package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/platform/httpx"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler exposes company settings and user preferences.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validate: validator.New()}
}

// MountRoutes registers settings endpoints. Company settings are readable by
// everyone but only admins may change them.
func (h *Handler) MountRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/company", h.GetCompany)
		r.With(admin).Put("/company", h.PutCompany)
		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences", h.PutPreferences)
	})
}

type companyForm struct {
	Name           string          `json:"name" validate:"required"`
	ICE            string          `json:"ice,omitempty"`
	TaxID          string          `json:"tax_id,omitempty"`
	Address        string          `json:"address,omitempty"`
	City           string          `json:"city,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty" validate:"omitempty,email"`
	Currency       string          `json:"currency,omitempty"`
	DefaultVATRate decimal.Decimal `json:"default_vat_rate"`
}

type preferencesForm struct {
	Locale string `json:"locale,omitempty" validate:"omitempty,oneof=fr ar en"`
	Theme  string `json:"theme,omitempty" validate:"omitempty,oneof=light dark"`
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Company(r.Context())
	if err != nil {
		h.logger.Error("load company settings failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) PutCompany(w http.ResponseWriter, r *http.Request) {
	var form companyForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if form.DefaultVATRate.IsNegative() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "default_vat_rate must not be negative")
		return
	}

	err := h.repo.SaveCompany(r.Context(), CompanySettings{
		Name: form.Name, ICE: form.ICE, TaxID: form.TaxID,
		Address: form.Address, City: form.City, Phone: form.Phone,
		Email: form.Email, Currency: form.Currency,
		DefaultVATRate: form.DefaultVATRate,
	})
	if err != nil {
		h.logger.Error("save company settings failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	s, err := h.repo.Company(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Preferences(r.Context(), shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var form preferencesForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	userID := shared.ActorID(r.Context())
	err := h.repo.SavePreferences(r.Context(), UserPreferences{
		UserID: userID, Locale: form.Locale, Theme: form.Theme,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.repo.Preferences(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
