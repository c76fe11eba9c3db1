package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrValidation marks tier input the caller should fix.
var ErrValidation = errors.New("commission: validation failed")

// Service manages commission tiers.
type Service struct {
	repo        Repository
	invalidator RateInvalidator
	logger      *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RateInvalidator drops memoized resolutions for an entity after a tier
// write. Optional; nil disables invalidation.
type RateInvalidator interface {
	Invalidate(ctx context.Context, entityType EntityType, entityID int64) error
}

// SetRateInvalidator attaches the cache invalidation hook.
func (s *Service) SetRateInvalidator(inv RateInvalidator) { s.invalidator = inv }

func (s *Service) invalidateRates(ctx context.Context, entityType EntityType, entityID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, entityType, entityID); err != nil {
		s.logger.Warn("invalidate rate cache", "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

// TierInput carries tier fields for create and update.
type TierInput struct {
	EntityType EntityType
	EntityID   int64
	MinAmount  float64
	MaxAmount  *float64
	Rate       float64
}

func (in TierInput) validate() error {
	if !in.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrValidation, in.EntityType)
	}
	if in.EntityID <= 0 {
		return fmt.Errorf("%w: entity is required", ErrValidation)
	}
	if in.MinAmount < 0 {
		return fmt.Errorf("%w: minimum amount must not be negative", ErrValidation)
	}
	if in.MaxAmount != nil && *in.MaxAmount <= in.MinAmount {
		return fmt.Errorf("%w: maximum amount must exceed minimum amount", ErrValidation)
	}
	if in.Rate < 0 || in.Rate > 100 {
		return fmt.Errorf("%w: rate must be between 0 and 100", ErrValidation)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Tier, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListForEntity(ctx context.Context, entityType EntityType, entityID int64) ([]Tier, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}
	return s.repo.ListForEntity(ctx, entityType, entityID)
}

func (s *Service) Create(ctx context.Context, in TierInput) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, Tier{
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		MinAmount:  in.MinAmount,
		MaxAmount:  in.MaxAmount,
		Rate:       in.Rate,
	})
	if err != nil {
		return 0, fmt.Errorf("create tier: %w", err)
	}
	s.invalidateRates(ctx, in.EntityType, in.EntityID)
	s.logger.Info("commission tier created", "tier_id", id, "entity_type", in.EntityType, "entity_id", in.EntityID)
	return id, nil
}

func (s *Service) Update(ctx context.Context, id int64, in TierInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.EntityType != in.EntityType || existing.EntityID != in.EntityID {
		return fmt.Errorf("%w: tier entity cannot change", ErrValidation)
	}
	if err := s.repo.Update(ctx, id, Tier{
		MinAmount: in.MinAmount,
		MaxAmount: in.MaxAmount,
		Rate:      in.Rate,
	}); err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	s.invalidateRates(ctx, existing.EntityType, existing.EntityID)
	s.logger.Info("commission tier updated", "tier_id", id)
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateRates(ctx, existing.EntityType, existing.EntityID)
	s.logger.Info("commission tier deleted", "tier_id", id)
	return nil
}

// Preview resolves the rate a settlement of amount would receive right now.
func (s *Service) Preview(ctx context.Context, entityType EntityType, entityID int64, amount float64) (*float64, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}
	return NewResolver(s.repo).Resolve(ctx, entityType, entityID, amount)
}
