package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Severity buckets used by the worker scans.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Notification is one row produced by a background scan or a lifecycle
// event, addressed to one user.
type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Severity  string     `json:"severity"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	RefType   string     `json:"ref_type,omitempty"`
	RefID     int64      `json:"ref_id,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ErrNotFound indicates a notification that does not exist or belongs to
// another user.
var ErrNotFound = errors.New("notifications: not found")

// Repository persists notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a notification. Dedup lives with the caller: scans pass
// a ref so the same alert is not raised twice, see InsertUnlessOpen.
func (r *Repository) Insert(ctx context.Context, n Notification) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO notifications (user_id, severity, title, body, ref_type, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		n.UserID, n.Severity, n.Title, nullString(n.Body), nullString(n.RefType), nullInt(n.RefID)).Scan(&id)
	return id, err
}

// InsertUnlessOpen creates the notification only when no unread one with
// the same ref exists for the user. Returns 0 when suppressed.
func (r *Repository) InsertUnlessOpen(ctx context.Context, n Notification) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO notifications (user_id, severity, title, body, ref_type, ref_id, created_at)
SELECT $1, $2, $3, $4, $5, $6, NOW()
WHERE NOT EXISTS (
  SELECT 1 FROM notifications
  WHERE user_id=$1 AND ref_type=$5 AND ref_id=$6 AND read_at IS NULL
)
RETURNING id`,
		n.UserID, n.Severity, n.Title, nullString(n.Body), nullString(n.RefType), nullInt(n.RefID)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// List returns the user's notifications, newest first.
func (r *Repository) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, severity, title, COALESCE(body, ''), COALESCE(ref_type, ''), COALESCE(ref_id, 0), read_at, created_at
FROM notifications
WHERE user_id=$1 AND ($2 = false OR read_at IS NULL)
ORDER BY created_at DESC, id DESC
LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Severity, &n.Title, &n.Body, &n.RefType, &n.RefID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps one notification; scoped to the owner.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at=NOW() WHERE id=$1 AND user_id=$2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead stamps every unread notification of the user.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at=NOW() WHERE user_id=$1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
