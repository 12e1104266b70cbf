package contacts

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Contact, int, error)
	Get(ctx context.Context, id int64) (Contact, error)
	Create(ctx context.Context, contact Contact) (Contact, error)
	Update(ctx context.Context, id int64, contact Contact) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, kind, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), COALESCE(city, ''), COALESCE(ice, ''), COALESCE(notes, ''), created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Contact, int, error) {
	query := `SELECT ` + columns + ` FROM contacts WHERE deleted_at IS NULL`
	countQuery := `SELECT COUNT(*) FROM contacts WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 0

	condition := ""
	if filters.Kind != "" {
		argCount++
		condition += ` AND kind = $` + strconv.Itoa(argCount)
		args = append(args, filters.Kind)
	}
	if filters.Search != "" {
		argCount++
		condition += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR email ILIKE $` + strconv.Itoa(argCount) + ` OR ice ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery+condition, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += condition + ` ORDER BY name ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	return contacts, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Contact, error) {
	row := r.db.QueryRow(ctx, `SELECT `+columns+` FROM contacts WHERE id = $1 AND deleted_at IS NULL`, id)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, contact Contact) (Contact, error) {
	query := `INSERT INTO contacts (kind, name, email, phone, address, city, ice, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		string(contact.Kind), contact.Name, nullEmpty(contact.Email), nullEmpty(contact.Phone),
		nullEmpty(contact.Address), nullEmpty(contact.City), nullEmpty(contact.ICE), nullEmpty(contact.Notes), now).Scan(&contact.ID)
	if err != nil {
		return Contact{}, err
	}
	contact.CreatedAt = now
	contact.UpdatedAt = now
	return contact, nil
}

func (r *repository) Update(ctx context.Context, id int64, contact Contact) error {
	query := `UPDATE contacts SET kind = $1, name = $2, email = $3, phone = $4, address = $5, city = $6, ice = $7, notes = $8, updated_at = $9
WHERE id = $10 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query,
		string(contact.Kind), contact.Name, nullEmpty(contact.Email), nullEmpty(contact.Phone),
		nullEmpty(contact.Address), nullEmpty(contact.City), nullEmpty(contact.ICE), nullEmpty(contact.Notes), time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete soft-deletes so documents keep their contact reference.
func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE contacts SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	var kind string
	err := row.Scan(&c.ID, &kind, &c.Name, &c.Email, &c.Phone, &c.Address, &c.City, &c.ICE, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	c.Kind = Kind(kind)
	return c, err
}

func nullEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
