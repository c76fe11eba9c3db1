package app

import (
	"context"
	"errors"

	"github.com/veris-bms/veris/internal/masterdata/clients"
	"github.com/veris-bms/veris/internal/masterdata/companies"
	"github.com/veris-bms/veris/internal/masterdata/files"
	"github.com/veris-bms/veris/internal/shared"
	"github.com/veris-bms/veris/internal/users"
)

// RateSource bridges the masterdata services into the invoice workflow's
// default-rate lookups. A missing entity reports exists=false rather than an
// error; the workflow rates it at zero.
type RateSource struct {
	Clients   *clients.Service
	Users     *users.Service
	Companies *companies.Service
	Files     *files.Service
}

func (s RateSource) ClientRate(ctx context.Context, id int64) (float64, bool, error) {
	c, err := s.Clients.Get(ctx, id)
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return c.CommissionRate, true, nil
}

func (s RateSource) DistributorRate(ctx context.Context, id int64) (float64, bool, error) {
	u, err := s.Users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if u.Role != shared.RoleDistributor {
		return 0, false, nil
	}
	return u.CommissionRate, true, nil
}

func (s RateSource) CompanyRate(ctx context.Context, id int64) (float64, bool, error) {
	c, err := s.Companies.Get(ctx, id)
	if err != nil {
		if errors.Is(err, companies.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return c.CommissionRate, true, nil
}

func (s RateSource) FileCompany(ctx context.Context, fileID int64) (int64, bool, error) {
	f, err := s.Files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return f.CompanyID, true, nil
}
