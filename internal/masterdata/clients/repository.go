package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/veris-bms/veris/internal/masterdata/shared"
	"github.com/veris-bms/veris/internal/shared"
)

// ErrNotFound indicates the client does not exist.
var ErrNotFound = fmt.Errorf("clients: %w", shared.ErrNotFound)

// Repository defines data access for clients.
type Repository interface {
	Get(ctx context.Context, id int64) (*Client, error)
	List(ctx context.Context, filters mdshared.ListFilters) ([]Client, int, error)
	Create(ctx context.Context, client Client) (int64, error)
	Update(ctx context.Context, id int64, client Client) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, phone, commission_rate, is_active, created_at, updated_at
FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CommissionRate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Client, int, error) {
	filters = filters.Normalize()

	where := ""
	args := []any{}
	if filters.Search != "" {
		where = "WHERE name ILIKE $1"
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM clients %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, name, email, phone, commission_rate, is_active, created_at, updated_at
FROM clients %s ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CommissionRate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, client Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO clients (name, email, phone, commission_rate, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		client.Name, client.Email, client.Phone, client.CommissionRate, client.IsActive).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, client Client) error {
	tag, err := r.pool.Exec(ctx, `UPDATE clients SET name = $1, email = $2, phone = $3, commission_rate = $4, is_active = $5, updated_at = NOW()
WHERE id = $6`, client.Name, client.Email, client.Phone, client.CommissionRate, client.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
