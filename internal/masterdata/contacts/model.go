package contacts

import "time"

// Kind discriminates clients from suppliers inside one table.
type Kind string

const (
	KindClient   Kind = "client"
	KindSupplier Kind = "supplier"
)

// Contact represents a client or supplier.
type Contact struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	ICE       string    `json:"ice,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
