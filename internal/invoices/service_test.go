package invoices

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/shared"
)

type memoryInvoiceRepo struct {
	invoices map[int64]*Invoice
	nextID   int64

	// failSetStage makes SetStage fail for the listed invoice IDs.
	failSetStage map[int64]bool
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: map[int64]*Invoice{}, nextID: 1, failSetStage: map[int64]bool{}}
}

func (m *memoryInvoiceRepo) visible(inv *Invoice, scope Scope) bool {
	if scope.ViewAll {
		return true
	}
	if inv.AssignedDistributor != scope.DistributorID {
		return false
	}
	return !slices.Contains(scope.ExcludeAuthorIDs, inv.CreatedBy)
}

func (m *memoryInvoiceRepo) Get(_ context.Context, id int64, scope Scope) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || !m.visible(inv, scope) {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memoryInvoiceRepo) ExistsByCode(_ context.Context, code string) (bool, error) {
	for _, inv := range m.invoices {
		if inv.InvoiceCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryInvoiceRepo) Create(_ context.Context, inv *Invoice) (int64, error) {
	for _, existing := range m.invoices {
		if existing.InvoiceCode == inv.InvoiceCode {
			return 0, ErrDuplicateCode
		}
	}
	id := m.nextID
	m.nextID++
	cp := *inv
	cp.ID = id
	m.invoices[id] = &cp
	return id, nil
}

func (m *memoryInvoiceRepo) Update(_ context.Context, inv *Invoice) error {
	if _, ok := m.invoices[inv.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.invoices {
		if existing.ID != inv.ID && existing.InvoiceCode == inv.InvoiceCode {
			return ErrDuplicateCode
		}
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *memoryInvoiceRepo) Approve(_ context.Context, id, approvedBy int64, at time.Time) error {
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	if inv.IsApproved {
		return ErrAlreadyApproved
	}
	inv.IsApproved = true
	inv.ApprovedAt = &at
	inv.ApprovedBy = &approvedBy
	return nil
}

func (m *memoryInvoiceRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

func (m *memoryInvoiceRepo) List(_ context.Context, scope Scope, _ ListFilters) ([]Invoice, int64, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if m.visible(inv, scope) {
			out = append(out, *inv)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memoryInvoiceRepo) SetStage(_ context.Context, id int64, stage PaymentStage, state StageState) error {
	if m.failSetStage[id] {
		return fmt.Errorf("storage failure")
	}
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	*inv.Payment.Stage(stage) = state
	return nil
}

func (m *memoryInvoiceRepo) ListUnsettledByClient(_ context.Context, clientID, distributorID int64) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.ClientID == clientID && inv.AssignedDistributor == distributorID && !inv.Payment.ClientToDistributor.IsPaid {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryInvoiceRepo) ListUnsettledByDistributor(_ context.Context, distributorID, createdBy int64) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.AssignedDistributor == distributorID && inv.CreatedBy == createdBy && !inv.Payment.DistributorToAdmin.IsPaid {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryInvoiceRepo) ListUnsettledByCompany(_ context.Context, companyID, createdBy int64) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.CompanyID == companyID && inv.CreatedBy == createdBy && !inv.Payment.AdminToCompany.IsPaid {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryInvoiceRepo) ListAssignedByDistributor(_ context.Context, distributorID, createdBy int64) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.AssignedDistributor == distributorID && inv.CreatedBy == createdBy &&
			(!inv.Payment.ClientToDistributor.IsPaid || !inv.Payment.DistributorToAdmin.IsPaid) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryInvoiceRepo) CountByStage(_ context.Context, scope Scope) (map[PaymentStage]int64, int64, int64, error) {
	pending := map[PaymentStage]int64{}
	var total, fullyPaid int64
	for _, inv := range m.invoices {
		if !m.visible(inv, scope) {
			continue
		}
		total++
		p := inv.Payment
		if p.ClientToDistributor.IsPaid && p.DistributorToAdmin.IsPaid && p.AdminToCompany.IsPaid {
			fullyPaid++
		}
		if !p.ClientToDistributor.IsPaid {
			pending[StageClientToDistributor]++
		}
		if !p.DistributorToAdmin.IsPaid {
			pending[StageDistributorToAdmin]++
		}
		if !p.AdminToCompany.IsPaid {
			pending[StageAdminToCompany]++
		}
	}
	return pending, total, fullyPaid, nil
}

func (m *memoryInvoiceRepo) SumAmounts(_ context.Context, scope Scope) (float64, float64, float64, float64, error) {
	var total, clientComm, distribComm, companyComm float64
	for _, inv := range m.invoices {
		if !m.visible(inv, scope) {
			continue
		}
		total += inv.Total
		clientComm += inv.Total * inv.ClientCommissionRate / 100
		distribComm += inv.Total * inv.DistributorCommissionRate / 100
		companyComm += inv.Total * inv.CompanyCommissionRate / 100
	}
	return total, clientComm, distribComm, companyComm, nil
}

// stubRates wires default rates and the file→company link for tests.
type stubRates struct {
	clients      map[int64]float64
	distributors map[int64]float64
	companies    map[int64]float64
	fileCompany  map[int64]int64
}

func newStubRates() *stubRates {
	return &stubRates{
		clients:      map[int64]float64{},
		distributors: map[int64]float64{},
		companies:    map[int64]float64{},
		fileCompany:  map[int64]int64{},
	}
}

func (s *stubRates) ClientRate(_ context.Context, id int64) (float64, bool, error) {
	r, ok := s.clients[id]
	return r, ok, nil
}

func (s *stubRates) DistributorRate(_ context.Context, id int64) (float64, bool, error) {
	r, ok := s.distributors[id]
	return r, ok, nil
}

func (s *stubRates) CompanyRate(_ context.Context, id int64) (float64, bool, error) {
	r, ok := s.companies[id]
	return r, ok, nil
}

func (s *stubRates) FileCompany(_ context.Context, fileID int64) (int64, bool, error) {
	c, ok := s.fileCompany[fileID]
	return c, ok, nil
}

// stubResolver returns tier rates keyed by entity type and id when the
// amount falls inside the configured range.
type stubResolver struct {
	tiers map[string]struct {
		min, max, rate float64
	}
}

func newStubResolver() *stubResolver {
	return &stubResolver{tiers: map[string]struct{ min, max, rate float64 }{}}
}

func (s *stubResolver) add(entityType commission.EntityType, id int64, min, max, rate float64) {
	s.tiers[fmt.Sprintf("%s/%d", entityType, id)] = struct{ min, max, rate float64 }{min, max, rate}
}

func (s *stubResolver) Resolve(_ context.Context, entityType commission.EntityType, id int64, amount float64) (*float64, error) {
	t, ok := s.tiers[fmt.Sprintf("%s/%d", entityType, id)]
	if !ok || amount < t.min || amount > t.max {
		return nil, nil
	}
	rate := t.rate
	return &rate, nil
}

type memoryAuditor struct {
	records []shared.AuditLog
}

func (m *memoryAuditor) Record(_ context.Context, log shared.AuditLog) error {
	m.records = append(m.records, log)
	return nil
}

type invoiceFixture struct {
	svc      *Service
	repo     *memoryInvoiceRepo
	rates    *stubRates
	resolver *stubResolver
	audit    *memoryAuditor
}

func newInvoiceFixture() *invoiceFixture {
	repo := newMemoryInvoiceRepo()
	rates := newStubRates()
	resolver := newStubResolver()
	audit := &memoryAuditor{}
	svc := NewService(repo, resolver, rates, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &invoiceFixture{svc: svc, repo: repo, rates: rates, resolver: resolver, audit: audit}
}

var (
	admin       = shared.Actor{ID: 100, Role: shared.RoleAdmin}
	distributor = shared.Actor{ID: 200, Role: shared.RoleDistributor}
)

func baseInput(code string) Input {
	return Input{
		InvoiceCode:         code,
		ClientID:            1,
		FileID:              10,
		AssignedDistributor: distributor.ID,
		InvoiceDate:         time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Total:               1000,
	}
}

func TestCreateInvoiceResolvesRates(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	fx.rates.clients[1] = 4
	fx.rates.distributors[distributor.ID] = 3
	fx.rates.companies[5] = 2
	fx.rates.fileCompany[10] = 5
	fx.resolver.add(commission.EntityClient, 1, 0, 2000, 5)

	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-001"))
	require.NoError(t, err)
	require.Equal(t, 5.0, inv.ClientCommissionRate)
	require.Equal(t, 3.0, inv.DistributorCommissionRate)
	require.Equal(t, 2.0, inv.CompanyCommissionRate)
	require.Nil(t, inv.CustomClientCommissionRate)
	require.Equal(t, admin.ID, inv.CreatedBy)
	require.False(t, inv.IsApproved)
	require.False(t, inv.Payment.ClientToDistributor.IsPaid)
	require.False(t, inv.Payment.DistributorToAdmin.IsPaid)
	require.False(t, inv.Payment.AdminToCompany.IsPaid)
}

func TestCreateInvoiceCustomOverride(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	fx.rates.clients[1] = 4
	fx.rates.distributors[distributor.ID] = 3
	fx.rates.fileCompany[10] = 5
	fx.rates.companies[5] = 2
	fx.resolver.add(commission.EntityClient, 1, 0, 2000, 5)

	in := baseInput("INV-002")
	override := 10.0
	in.CustomClientCommissionRate = &override

	inv, err := fx.svc.Create(ctx, admin, in)
	require.NoError(t, err)
	require.Equal(t, 10.0, inv.ClientCommissionRate)
	require.NotNil(t, inv.CustomClientCommissionRate)
	require.Equal(t, 10.0, *inv.CustomClientCommissionRate)
	require.Equal(t, 3.0, inv.DistributorCommissionRate)
}

func TestCreateInvoiceMissingEntityRatesZero(t *testing.T) {
	fx := newInvoiceFixture()

	inv, err := fx.svc.Create(context.Background(), admin, baseInput("INV-003"))
	require.NoError(t, err)
	require.Zero(t, inv.ClientCommissionRate)
	require.Zero(t, inv.DistributorCommissionRate)
	require.Zero(t, inv.CompanyCommissionRate)
}

func TestCreateInvoiceFallsBackToDefaultRate(t *testing.T) {
	fx := newInvoiceFixture()

	fx.rates.clients[1] = 4
	// Tier exists but does not cover the amount.
	fx.resolver.add(commission.EntityClient, 1, 5000, 9000, 8)

	inv, err := fx.svc.Create(context.Background(), admin, baseInput("INV-004"))
	require.NoError(t, err)
	require.Equal(t, 4.0, inv.ClientCommissionRate)
}

func TestCreateInvoiceDuplicateCode(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, admin, baseInput("INV-005"))
	require.NoError(t, err)

	_, err = fx.svc.Create(ctx, admin, baseInput("INV-005"))
	require.ErrorIs(t, err, ErrDuplicateCode)

	var count int
	for _, inv := range fx.repo.invoices {
		if inv.InvoiceCode == "INV-005" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestCreateInvoiceRequiresCode(t *testing.T) {
	fx := newInvoiceFixture()

	in := baseInput("   ")
	_, err := fx.svc.Create(context.Background(), admin, in)
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateUnapprovedRecomputesRates(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	fx.rates.clients[1] = 4
	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-006"))
	require.NoError(t, err)
	require.Equal(t, 4.0, inv.ClientCommissionRate)

	fx.resolver.add(commission.EntityClient, 1, 0, 2000, 7)
	in := baseInput("INV-006")
	in.Total = 1500

	updated, err := fx.svc.Update(ctx, admin, Scope{ViewAll: true}, inv.ID, in)
	require.NoError(t, err)
	require.Equal(t, 1500.0, updated.Total)
	require.Equal(t, 7.0, updated.ClientCommissionRate)
}

func TestUpdateApprovedIgnoresMonetaryFields(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	fx.rates.clients[1] = 4
	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-007"))
	require.NoError(t, err)
	_, err = fx.svc.Approve(ctx, admin, inv.ID)
	require.NoError(t, err)

	in := baseInput("INV-007-renamed")
	in.Total = 99999
	in.TaxAmount = 500
	custom := 50.0
	in.CustomClientCommissionRate = &custom

	updated, err := fx.svc.Update(ctx, admin, Scope{ViewAll: true}, inv.ID, in)
	require.NoError(t, err)
	require.Equal(t, "INV-007-renamed", updated.InvoiceCode)
	require.Equal(t, 1000.0, updated.Total)
	require.Zero(t, updated.TaxAmount)
	require.Equal(t, 4.0, updated.ClientCommissionRate)
	require.Nil(t, updated.CustomClientCommissionRate)
}

func TestUpdateScopeConflatesNotFoundAndForbidden(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-008"))
	require.NoError(t, err)

	otherDistributorScope := Scope{DistributorID: 999, ExcludeAuthorIDs: []int64{admin.ID}}
	_, err = fx.svc.Update(ctx, distributor, otherDistributorScope, inv.ID, baseInput("INV-008"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fx.svc.Update(ctx, admin, Scope{ViewAll: true}, 424242, baseInput("INV-404"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDistributorScopeExcludesAdminAuthored(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	adminAuthored, err := fx.svc.Create(ctx, admin, baseInput("INV-009"))
	require.NoError(t, err)

	scope := Scope{DistributorID: distributor.ID, ExcludeAuthorIDs: []int64{admin.ID}}
	_, err = fx.svc.Get(ctx, scope, adminAuthored.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fx.svc.Get(ctx, Scope{ViewAll: true}, adminAuthored.ID)
	require.NoError(t, err)
}

func TestApproveIsNotRepeatable(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-010"))
	require.NoError(t, err)

	approved, err := fx.svc.Approve(ctx, admin, inv.ID)
	require.NoError(t, err)
	require.True(t, approved.IsApproved)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, admin.ID, *approved.ApprovedBy)

	_, err = fx.svc.Approve(ctx, admin, inv.ID)
	require.ErrorIs(t, err, ErrAlreadyApproved)
	require.Len(t, fx.audit.records, 1)
}

func TestApproveLockRejectsLostRace(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-010R"))
	require.NoError(t, err)

	// Another admin wins the row lock between this caller's read and its
	// write. The repository check must reject the second transition.
	require.NoError(t, fx.repo.Approve(ctx, inv.ID, 101, time.Now()))
	require.ErrorIs(t, fx.repo.Approve(ctx, inv.ID, admin.ID, time.Now()), ErrAlreadyApproved)

	stored, err := fx.repo.Get(ctx, inv.ID, Scope{ViewAll: true})
	require.NoError(t, err)
	require.NotNil(t, stored.ApprovedBy)
	require.Equal(t, int64(101), *stored.ApprovedBy)
}

func TestDeleteInvoice(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv, err := fx.svc.Create(ctx, admin, baseInput("INV-011"))
	require.NoError(t, err)

	require.NoError(t, fx.svc.Delete(ctx, admin, inv.ID))
	require.ErrorIs(t, fx.svc.Delete(ctx, admin, inv.ID), ErrNotFound)
}

func TestSummarize(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	fx.rates.clients[1] = 10
	for i := 0; i < 3; i++ {
		_, err := fx.svc.Create(ctx, admin, baseInput(fmt.Sprintf("INV-S%d", i)))
		require.NoError(t, err)
	}

	sum, err := fx.svc.Summarize(ctx, Scope{ViewAll: true})
	require.NoError(t, err)
	require.Equal(t, int64(3), sum.TotalInvoices)
	require.Equal(t, int64(0), sum.FullyPaid)
	require.Equal(t, int64(3), sum.PendingByStage[StageClientToDistributor])
	require.Equal(t, 3000.0, sum.TotalAmount)
	require.Equal(t, 300.0, sum.ClientCommission)
}
