// Package audit exposes the administrative trail written by
// shared.AuditLogger as a filterable timeline.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veris-bms/veris/internal/shared"
)

// TimelineRow is one audit entry as served to the admin UI.
type TimelineRow struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actorId"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Meta       map[string]any `json:"meta"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// TimelineFilters narrows the timeline. Zero values mean "no filter".
type TimelineFilters struct {
	ActorID  int64
	Entity   string
	Action   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow     `json:"rows"`
	Paging shared.Pagination `json:"paging"`
}

// Service reads the audit trail.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Timeline returns audit entries newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.pool == nil {
		return Result{}, fmt.Errorf("audit: pool not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	where := []string{"TRUE"}
	var args []any
	if filters.ActorID != 0 {
		args = append(args, filters.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filters.Entity != "" {
		args = append(args, filters.Entity)
		where = append(where, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		where = append(where, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+clause, args...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs WHERE %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args)), args...)
	if err != nil {
		return Result{}, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	out := Result{Paging: shared.NewPagination(page, pageSize, int(total))}
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.ID, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta, &row.OccurredAt); err != nil {
			return Result{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				row.Meta = map[string]any{"raw": string(meta)}
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}
