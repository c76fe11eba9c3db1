package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/veris-bms/veris/internal/masterdata/shared"
	"github.com/veris-bms/veris/internal/shared"
)

// ErrNotFound indicates the file does not exist.
var ErrNotFound = fmt.Errorf("files: %w", shared.ErrNotFound)

// Repository defines data access for files.
type Repository interface {
	Get(ctx context.Context, id int64) (*File, error)
	List(ctx context.Context, filters mdshared.ListFilters) ([]FileWithCompany, int, error)
	Create(ctx context.Context, file File) (int64, error)
	Update(ctx context.Context, id int64, file File) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*File, error) {
	var f File
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, company_id, is_active, created_at, updated_at
FROM files WHERE id = $1`, id).
		Scan(&f.ID, &f.Code, &f.Name, &f.CompanyID, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]FileWithCompany, int, error) {
	filters = filters.Normalize()

	where := ""
	args := []any{}
	if filters.Search != "" {
		where = "WHERE f.code ILIKE $1 OR f.name ILIKE $1"
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM files f %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT f.id, f.code, f.name, f.company_id, f.is_active, f.created_at, f.updated_at, c.name
FROM files f JOIN companies c ON f.company_id = c.id
%s ORDER BY f.code LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []FileWithCompany
	for rows.Next() {
		var f FileWithCompany
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &f.CompanyID, &f.IsActive, &f.CreatedAt, &f.UpdatedAt, &f.CompanyName); err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, file File) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO files (code, name, company_id, is_active)
VALUES ($1, $2, $3, $4) RETURNING id`, file.Code, file.Name, file.CompanyID, file.IsActive).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, file File) error {
	tag, err := r.pool.Exec(ctx, `UPDATE files SET code = $1, name = $2, company_id = $3, is_active = $4, updated_at = NOW()
WHERE id = $5`, file.Code, file.Name, file.CompanyID, file.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
