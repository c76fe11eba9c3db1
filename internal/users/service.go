package users

import (
	"context"
	"errors"

	"github.com/veris-bms/veris/internal/shared"
)

// Service handles user-account business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ListDistributors returns all distributor accounts.
func (s *Service) ListDistributors(ctx context.Context) ([]User, error) {
	return s.repo.ListByRole(ctx, shared.RoleDistributor)
}

// UpdateCommissionRate changes a distributor's default commission rate.
func (s *Service) UpdateCommissionRate(ctx context.Context, id int64, rate float64) error {
	if rate < 0 || rate > 100 {
		return errors.New("users: commission rate must be between 0 and 100")
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role != shared.RoleDistributor {
		return errors.New("users: commission rate applies to distributors only")
	}
	return s.repo.UpdateCommissionRate(ctx, id, rate)
}

// SetActive toggles account availability.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// AdminIDs returns the IDs of all admin accounts for scope exclusion lists.
func (s *Service) AdminIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListAdminIDs(ctx)
}
