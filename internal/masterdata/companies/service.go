package companies

import (
	"context"
	"errors"
	"strings"

	mdshared "github.com/veris-bms/veris/internal/masterdata/shared"
)

// Service handles company business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Company, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (*Company, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, company Company) (*Company, error) {
	if err := s.validate(company); err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, company)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, company Company) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := s.validate(company); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, company)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(c Company) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("company name is required")
	}
	if c.CommissionRate < 0 || c.CommissionRate > 100 {
		return errors.New("commission rate must be between 0 and 100")
	}
	return nil
}
