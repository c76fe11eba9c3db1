package companies

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/veris-bms/veris/internal/masterdata/shared"
	"github.com/veris-bms/veris/internal/shared"
)

// ErrNotFound indicates the company does not exist.
var ErrNotFound = fmt.Errorf("companies: %w", shared.ErrNotFound)

// Repository defines data access for companies.
type Repository interface {
	Get(ctx context.Context, id int64) (*Company, error)
	List(ctx context.Context, filters mdshared.ListFilters) ([]Company, int, error)
	Create(ctx context.Context, company Company) (int64, error)
	Update(ctx context.Context, id int64, company Company) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `SELECT id, name, commission_rate, is_active, created_at, updated_at
FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CommissionRate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Company, int, error) {
	filters = filters.Normalize()

	where := ""
	args := []any{}
	if filters.Search != "" {
		where = "WHERE name ILIKE $1"
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM companies %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, name, commission_rate, is_active, created_at, updated_at
FROM companies %s ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CommissionRate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, company Company) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO companies (name, commission_rate, is_active)
VALUES ($1, $2, $3) RETURNING id`, company.Name, company.CommissionRate, company.IsActive).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, company Company) error {
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET name = $1, commission_rate = $2, is_active = $3, updated_at = NOW()
WHERE id = $4`, company.Name, company.CommissionRate, company.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
