package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veris-bms/veris/internal/shared"
)

// ErrNotFound indicates the tier does not exist.
var ErrNotFound = fmt.Errorf("commission: %w", shared.ErrNotFound)

// Repository defines data access for commission tiers.
type Repository interface {
	Get(ctx context.Context, id int64) (*Tier, error)
	ListForEntity(ctx context.Context, entityType EntityType, entityID int64) ([]Tier, error)
	FindMatching(ctx context.Context, entityType EntityType, entityID int64, amount float64) ([]Tier, error)
	Create(ctx context.Context, tier Tier) (int64, error)
	Update(ctx context.Context, id int64, tier Tier) error
	Delete(ctx context.Context, id int64) error
	ListOverlapping(ctx context.Context) ([][2]Tier, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const tierColumns = `id, entity_type, entity_id, min_amount, max_amount, rate, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Tier, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tierColumns+` FROM commission_tiers WHERE id = $1`, id)
	tier, err := scanTier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tier, nil
}

func (r *repository) ListForEntity(ctx context.Context, entityType EntityType, entityID int64) ([]Tier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tierColumns+` FROM commission_tiers
WHERE entity_type = $1 AND entity_id = $2 ORDER BY min_amount`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTiers(rows)
}

// FindMatching returns all tiers whose range contains amount. Tie-breaking
// between overlapping ranges is the resolver's job, not the query's.
func (r *repository) FindMatching(ctx context.Context, entityType EntityType, entityID int64, amount float64) ([]Tier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tierColumns+` FROM commission_tiers
WHERE entity_type = $1 AND entity_id = $2 AND min_amount <= $3 AND (max_amount IS NULL OR $3 <= max_amount)
ORDER BY min_amount`, entityType, entityID, amount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTiers(rows)
}

func (r *repository) Create(ctx context.Context, tier Tier) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO commission_tiers (entity_type, entity_id, min_amount, max_amount, rate)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		tier.EntityType, tier.EntityID, tier.MinAmount, tier.MaxAmount, tier.Rate).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, tier Tier) error {
	tag, err := r.pool.Exec(ctx, `UPDATE commission_tiers
SET min_amount = $1, max_amount = $2, rate = $3, updated_at = NOW() WHERE id = $4`,
		tier.MinAmount, tier.MaxAmount, tier.Rate, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM commission_tiers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOverlapping returns pairs of tiers for the same entity whose ranges
// intersect. Overlap is tolerated at write time; the integrity scan job
// reports it for operator review.
func (r *repository) ListOverlapping(ctx context.Context) ([][2]Tier, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.entity_type, a.entity_id, a.min_amount, a.max_amount, a.rate, a.created_at, a.updated_at,
       b.id, b.entity_type, b.entity_id, b.min_amount, b.max_amount, b.rate, b.created_at, b.updated_at
FROM commission_tiers a
JOIN commission_tiers b ON a.entity_type = b.entity_type AND a.entity_id = b.entity_id AND a.id < b.id
WHERE a.min_amount <= COALESCE(b.max_amount, 'Infinity'::float8)
  AND b.min_amount <= COALESCE(a.max_amount, 'Infinity'::float8)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2]Tier
	for rows.Next() {
		var a, b Tier
		if err := rows.Scan(
			&a.ID, &a.EntityType, &a.EntityID, &a.MinAmount, &a.MaxAmount, &a.Rate, &a.CreatedAt, &a.UpdatedAt,
			&b.ID, &b.EntityType, &b.EntityID, &b.MinAmount, &b.MaxAmount, &b.Rate, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]Tier{a, b})
	}
	return pairs, rows.Err()
}

func collectTiers(rows pgx.Rows) ([]Tier, error) {
	var tiers []Tier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, *tier)
	}
	return tiers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTier(row rowScanner) (*Tier, error) {
	var t Tier
	if err := row.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.MinAmount, &t.MaxAmount, &t.Rate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
