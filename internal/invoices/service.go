package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/shared"
)

// ErrValidation marks invoice input the caller should fix. Numeric fields
// never raise it; they coerce to zero upstream.
var ErrValidation = errors.New("invoices: validation failed")

// ErrAlreadyApproved signals a repeated approval attempt.
var ErrAlreadyApproved = errors.New("invoices: already approved")

// RateResolver resolves a tiered commission rate, nil when no tier matches.
type RateResolver interface {
	Resolve(ctx context.Context, entityType commission.EntityType, entityID int64, amount float64) (*float64, error)
}

// RateSource supplies default commission rates and the file→company link.
// The bool result reports whether the entity exists; a missing entity rates
// at zero.
type RateSource interface {
	ClientRate(ctx context.Context, id int64) (float64, bool, error)
	DistributorRate(ctx context.Context, id int64) (float64, bool, error)
	CompanyRate(ctx context.Context, id int64) (float64, bool, error)
	FileCompany(ctx context.Context, fileID int64) (int64, bool, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Input carries invoice fields as submitted. Monetary values arrive already
// coerced; a bad number upstream became zero, never an error.
type Input struct {
	InvoiceCode         string
	ClientID            int64
	FileID              int64
	AssignedDistributor int64
	InvoiceDate         time.Time
	Status              string

	Total                   float64
	TaxPercentage           float64
	TaxAmount               float64
	ManagementTaxPercentage float64
	ManagementTaxAmount     float64
	CorporateTaxPercentage  float64
	CorporateTaxAmount      float64
	ProfitPercentage        float64
	ProfitAmount            float64
	FinalAmount             float64
	DiscountAmount          float64

	CustomClientCommissionRate      *float64
	CustomDistributorCommissionRate *float64
}

// ResolvedRates is what the rate-preview endpoint returns and what Create
// stores on the invoice.
type ResolvedRates struct {
	Client      float64 `json:"clientCommissionRate"`
	Distributor float64 `json:"distributorCommissionRate"`
	Company     float64 `json:"companyCommissionRate"`
}

// Service orchestrates invoice creation, update, approval and reporting.
type Service struct {
	repo     Repository
	resolver RateResolver
	rates    RateSource
	audit    Auditor
	digest   DigestEnqueuer
	observer SettlementObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, resolver RateResolver, rates RateSource, audit Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		rates:    rates,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// resolveEntityRate applies the override-tier-default chain for one entity.
// Overrides above zero win verbatim. A matching tier comes next, then the
// entity's stored default. A missing entity rates at zero.
func (s *Service) resolveEntityRate(
	ctx context.Context,
	entityType commission.EntityType,
	entityID int64,
	amount float64,
	override *float64,
	defaultRate func(context.Context, int64) (float64, bool, error),
) (float64, error) {
	if override != nil && *override > 0 {
		return *override, nil
	}
	rate, exists, err := defaultRate(ctx, entityID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	tierRate, err := s.resolver.Resolve(ctx, entityType, entityID, amount)
	if err != nil {
		return 0, err
	}
	if tierRate != nil {
		return *tierRate, nil
	}
	return rate, nil
}

// ResolveRates computes the three commission rates for a prospective invoice.
func (s *Service) ResolveRates(ctx context.Context, in Input) (ResolvedRates, error) {
	var out ResolvedRates
	var err error

	out.Client, err = s.resolveEntityRate(ctx, commission.EntityClient, in.ClientID, in.Total,
		in.CustomClientCommissionRate, s.rates.ClientRate)
	if err != nil {
		return out, fmt.Errorf("resolve client rate: %w", err)
	}
	out.Distributor, err = s.resolveEntityRate(ctx, commission.EntityDistributor, in.AssignedDistributor, in.Total,
		in.CustomDistributorCommissionRate, s.rates.DistributorRate)
	if err != nil {
		return out, fmt.Errorf("resolve distributor rate: %w", err)
	}

	companyID, fileExists, err := s.rates.FileCompany(ctx, in.FileID)
	if err != nil {
		return out, fmt.Errorf("resolve file company: %w", err)
	}
	if !fileExists {
		return out, nil
	}
	out.Company, err = s.resolveEntityRate(ctx, commission.EntityCompany, companyID, in.Total, nil, s.rates.CompanyRate)
	if err != nil {
		return out, fmt.Errorf("resolve company rate: %w", err)
	}
	return out, nil
}

// Create validates identity fields, resolves rates and persists a new
// invoice with all stages unpaid.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in Input) (*Invoice, error) {
	in.InvoiceCode = strings.TrimSpace(in.InvoiceCode)
	if in.InvoiceCode == "" {
		return nil, fmt.Errorf("%w: invoice code is required", ErrValidation)
	}

	// Pre-insert existence check. The unique constraint
	// turns a lost race into ErrDuplicateCode at insert time.
	exists, err := s.repo.ExistsByCode(ctx, in.InvoiceCode)
	if err != nil {
		return nil, fmt.Errorf("check invoice code: %w", err)
	}
	if exists {
		return nil, ErrDuplicateCode
	}

	rates, err := s.ResolveRates(ctx, in)
	if err != nil {
		return nil, err
	}

	inv := s.buildInvoice(in, rates)
	inv.CreatedBy = actor.ID

	id, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}
	inv.ID = id
	s.logger.Info("invoice created", "invoice_id", id, "invoice_code", inv.InvoiceCode, "actor_id", actor.ID)
	return inv, nil
}

func (s *Service) buildInvoice(in Input, rates ResolvedRates) *Invoice {
	inv := &Invoice{
		InvoiceCode:         in.InvoiceCode,
		ClientID:            in.ClientID,
		FileID:              in.FileID,
		AssignedDistributor: in.AssignedDistributor,
		InvoiceDate:         in.InvoiceDate,
		Status:              in.Status,

		Total:                   in.Total,
		TaxPercentage:           in.TaxPercentage,
		TaxAmount:               in.TaxAmount,
		ManagementTaxPercentage: in.ManagementTaxPercentage,
		ManagementTaxAmount:     in.ManagementTaxAmount,
		CorporateTaxPercentage:  in.CorporateTaxPercentage,
		CorporateTaxAmount:      in.CorporateTaxAmount,
		ProfitPercentage:        in.ProfitPercentage,
		ProfitAmount:            in.ProfitAmount,
		FinalAmount:             in.FinalAmount,
		DiscountAmount:          in.DiscountAmount,

		ClientCommissionRate:      rates.Client,
		DistributorCommissionRate: rates.Distributor,
		CompanyCommissionRate:     rates.Company,
	}
	if in.CustomClientCommissionRate != nil && *in.CustomClientCommissionRate > 0 {
		inv.CustomClientCommissionRate = in.CustomClientCommissionRate
	}
	if in.CustomDistributorCommissionRate != nil && *in.CustomDistributorCommissionRate > 0 {
		inv.CustomDistributorCommissionRate = in.CustomDistributorCommissionRate
	}
	return inv
}

// Get returns one invoice within scope.
func (s *Service) Get(ctx context.Context, scope Scope, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id, scope)
}

// List returns scoped, filtered invoices plus the unfiltered-page total.
func (s *Service) List(ctx context.Context, scope Scope, filters ListFilters) ([]Invoice, int64, error) {
	return s.repo.List(ctx, scope, filters)
}

// Update applies in to an existing invoice. Approved invoices accept only
// identity and routing fields; monetary and commission input is dropped
// without complaint. Unapproved invoices are recomputed in full, rates
// included.
func (s *Service) Update(ctx context.Context, actor shared.Actor, scope Scope, id int64, in Input) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}

	in.InvoiceCode = strings.TrimSpace(in.InvoiceCode)
	if in.InvoiceCode == "" {
		return nil, fmt.Errorf("%w: invoice code is required", ErrValidation)
	}

	inv.InvoiceCode = in.InvoiceCode
	inv.ClientID = in.ClientID
	inv.FileID = in.FileID
	inv.AssignedDistributor = in.AssignedDistributor
	inv.InvoiceDate = in.InvoiceDate
	inv.Status = in.Status

	if !inv.IsApproved {
		rates, err := s.ResolveRates(ctx, in)
		if err != nil {
			return nil, err
		}
		rebuilt := s.buildInvoice(in, rates)
		rebuilt.ID = inv.ID
		rebuilt.CreatedBy = inv.CreatedBy
		rebuilt.IsApproved = inv.IsApproved
		rebuilt.ApprovedAt = inv.ApprovedAt
		rebuilt.ApprovedBy = inv.ApprovedBy
		rebuilt.Payment = inv.Payment
		rebuilt.CreatedAt = inv.CreatedAt
		inv = rebuilt
	}

	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invoice updated", "invoice_id", inv.ID, "actor_id", actor.ID, "approved", inv.IsApproved)
	return inv, nil
}

// Approve engages the approval lock. Admin only, enforced at the route.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id, Scope{ViewAll: true})
	if err != nil {
		return nil, err
	}
	if inv.IsApproved {
		return nil, ErrAlreadyApproved
	}
	now := s.now()
	if err := s.repo.Approve(ctx, inv.ID, actor.ID, now); err != nil {
		return nil, err
	}
	inv.IsApproved = true
	inv.ApprovedAt = &now
	inv.ApprovedBy = &actor.ID
	s.recordAudit(ctx, actor, "invoice.approve", inv.ID, nil)
	s.logger.Info("invoice approved", "invoice_id", inv.ID, "actor_id", actor.ID)
	return inv, nil
}

// Delete removes an invoice permanently. Admin only, enforced at the route.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "invoice.delete", id, nil)
	s.logger.Info("invoice deleted", "invoice_id", id, "actor_id", actor.ID)
	return nil
}

// Summarize runs the dashboard aggregates concurrently.
func (s *Service) Summarize(ctx context.Context, scope Scope) (*Summary, error) {
	var sum Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pending, total, fullyPaid, err := s.repo.CountByStage(gctx, scope)
		if err != nil {
			return fmt.Errorf("count by stage: %w", err)
		}
		sum.PendingByStage = pending
		sum.TotalInvoices = total
		sum.FullyPaid = fullyPaid
		return nil
	})
	g.Go(func() error {
		total, clientComm, distribComm, companyComm, err := s.repo.SumAmounts(gctx, scope)
		if err != nil {
			return fmt.Errorf("sum amounts: %w", err)
		}
		sum.TotalAmount = total
		sum.ClientCommission = clientComm
		sum.DistribCommission = distribComm
		sum.CompanyCommission = companyComm
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", invoiceID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Error("audit record failed", "action", action, slog.Any("error", err))
	}
}
