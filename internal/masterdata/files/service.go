package files

import (
	"context"
	"errors"
	"strings"

	mdshared "github.com/veris-bms/veris/internal/masterdata/shared"
)

// Service handles file business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]FileWithCompany, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (*File, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, file File) (*File, error) {
	if err := s.validate(file); err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, file)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, file File) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := s.validate(file); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, file)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(f File) error {
	if strings.TrimSpace(f.Code) == "" {
		return errors.New("file code is required")
	}
	if f.CompanyID <= 0 {
		return errors.New("file requires a company")
	}
	return nil
}
