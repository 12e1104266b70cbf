package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CompanySettings is the single-row company profile used on printed
// documents and as the VAT default.
type CompanySettings struct {
	Name           string          `json:"name"`
	ICE            string          `json:"ice,omitempty"`
	TaxID          string          `json:"tax_id,omitempty"`
	Address        string          `json:"address,omitempty"`
	City           string          `json:"city,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	Currency       string          `json:"currency"`
	DefaultVATRate decimal.Decimal `json:"default_vat_rate"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// UserPreferences are per-user UI settings.
type UserPreferences struct {
	UserID    int64     `json:"user_id"`
	Locale    string    `json:"locale"`
	Theme     string    `json:"theme"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Defaults applied when a row is missing.
const (
	DefaultCurrency = "MAD"
	DefaultLocale   = "fr"
	DefaultTheme    = "light"
)

// Repository persists company settings and user preferences.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Company returns the profile, falling back to defaults when the row was
// never written.
func (r *Repository) Company(ctx context.Context) (CompanySettings, error) {
	var s CompanySettings
	err := r.pool.QueryRow(ctx, `SELECT name, COALESCE(ice, ''), COALESCE(tax_id, ''), COALESCE(address, ''), COALESCE(city, ''), COALESCE(phone, ''), COALESCE(email, ''), currency, default_vat_rate, updated_at
FROM company_settings WHERE id = 1`).
		Scan(&s.Name, &s.ICE, &s.TaxID, &s.Address, &s.City, &s.Phone, &s.Email, &s.Currency, &s.DefaultVATRate, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompanySettings{Currency: DefaultCurrency, DefaultVATRate: decimal.NewFromInt(20)}, nil
	}
	return s, err
}

// SaveCompany upserts the single profile row.
func (r *Repository) SaveCompany(ctx context.Context, s CompanySettings) error {
	if s.Currency == "" {
		s.Currency = DefaultCurrency
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO company_settings (id, name, ice, tax_id, address, city, phone, email, currency, default_vat_rate, updated_at)
VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name, ice = EXCLUDED.ice, tax_id = EXCLUDED.tax_id,
  address = EXCLUDED.address, city = EXCLUDED.city, phone = EXCLUDED.phone,
  email = EXCLUDED.email, currency = EXCLUDED.currency,
  default_vat_rate = EXCLUDED.default_vat_rate, updated_at = NOW()`,
		s.Name, nullString(s.ICE), nullString(s.TaxID), nullString(s.Address),
		nullString(s.City), nullString(s.Phone), nullString(s.Email),
		s.Currency, s.DefaultVATRate)
	return err
}

// Preferences returns the user's preferences, defaulted when missing.
func (r *Repository) Preferences(ctx context.Context, userID int64) (UserPreferences, error) {
	var p UserPreferences
	err := r.pool.QueryRow(ctx, `SELECT user_id, locale, theme, updated_at FROM user_preferences WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Locale, &p.Theme, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserPreferences{UserID: userID, Locale: DefaultLocale, Theme: DefaultTheme}, nil
	}
	return p, err
}

// SavePreferences upserts the user's preferences.
func (r *Repository) SavePreferences(ctx context.Context, p UserPreferences) error {
	if p.Locale == "" {
		p.Locale = DefaultLocale
	}
	if p.Theme == "" {
		p.Theme = DefaultTheme
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO user_preferences (user_id, locale, theme, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id) DO UPDATE SET locale = EXCLUDED.locale, theme = EXCLUDED.theme, updated_at = NOW()`,
		p.UserID, p.Locale, p.Theme)
	return err
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
