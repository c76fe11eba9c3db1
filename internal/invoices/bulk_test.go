package invoices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/shared"
)

func TestBulkSettleClientByDistributor(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	a := seedInvoice(t, fx, "BLK-001", admin, distributor.ID)
	b := seedInvoice(t, fx, "BLK-002", admin, distributor.ID)
	c := seedInvoice(t, fx, "BLK-003", admin, distributor.ID)
	other := seedInvoice(t, fx, "BLK-004", admin, 999)

	res, err := fx.svc.BulkSettle(ctx, distributor, commission.EntityClient, 1)
	require.NoError(t, err)
	require.Equal(t, 3, res.ProcessedCount)
	require.Equal(t, 3000.0, res.TotalAmount)
	require.Empty(t, res.Errors)
	require.NotEmpty(t, res.BatchID)

	for _, id := range []int64{a.ID, b.ID, c.ID} {
		stage := fx.repo.invoices[id].Payment.ClientToDistributor
		require.True(t, stage.IsPaid)
		require.Equal(t, distributor.ID, *stage.MarkedBy)
	}
	require.False(t, fx.repo.invoices[other.ID].Payment.ClientToDistributor.IsPaid)
}

func TestBulkSettleRoleChecks(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	_, err := fx.svc.BulkSettle(ctx, admin, commission.EntityClient, 1)
	require.ErrorIs(t, err, ErrPaymentForbidden)

	_, err = fx.svc.BulkSettle(ctx, distributor, commission.EntityDistributor, 1)
	require.ErrorIs(t, err, ErrPaymentForbidden)

	_, err = fx.svc.BulkSettle(ctx, distributor, commission.EntityCompany, 1)
	require.ErrorIs(t, err, ErrPaymentForbidden)

	_, err = fx.svc.BulkSettle(ctx, admin, "vendor", 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestBulkSettlePartialFailure(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	a := seedInvoice(t, fx, "BLK-010", admin, distributor.ID)
	broken := seedInvoice(t, fx, "BLK-011", admin, distributor.ID)
	c := seedInvoice(t, fx, "BLK-012", admin, distributor.ID)
	fx.repo.failSetStage[broken.ID] = true

	res, err := fx.svc.BulkSettle(ctx, distributor, commission.EntityClient, 1)
	require.NoError(t, err)
	require.Equal(t, 2, res.ProcessedCount)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "BLK-011")

	require.True(t, fx.repo.invoices[a.ID].Payment.ClientToDistributor.IsPaid)
	require.False(t, fx.repo.invoices[broken.ID].Payment.ClientToDistributor.IsPaid)
	require.True(t, fx.repo.invoices[c.ID].Payment.ClientToDistributor.IsPaid)
}

func TestBulkSettleDistributorDoesNotCascade(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "BLK-020", admin, distributor.ID)

	res, err := fx.svc.BulkSettle(ctx, admin, commission.EntityDistributor, distributor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)

	stored := fx.repo.invoices[inv.ID]
	require.True(t, stored.Payment.DistributorToAdmin.IsPaid)
	require.False(t, stored.Payment.ClientToDistributor.IsPaid)
}

func TestBulkSettleDistributorOwnershipFilter(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	otherAdmin := shared.Actor{ID: 101, Role: shared.RoleAdmin}
	mine := seedInvoice(t, fx, "BLK-030", admin, distributor.ID)
	theirs := seedInvoice(t, fx, "BLK-031", otherAdmin, distributor.ID)

	res, err := fx.svc.BulkSettle(ctx, admin, commission.EntityDistributor, distributor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.True(t, fx.repo.invoices[mine.ID].Payment.DistributorToAdmin.IsPaid)
	require.False(t, fx.repo.invoices[theirs.ID].Payment.DistributorToAdmin.IsPaid)
}

func TestBulkSettleCompany(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "BLK-040", admin, distributor.ID)
	fx.repo.invoices[inv.ID].CompanyID = 5
	unrelated := seedInvoice(t, fx, "BLK-041", admin, distributor.ID)
	fx.repo.invoices[unrelated.ID].CompanyID = 6

	res, err := fx.svc.BulkSettle(ctx, admin, commission.EntityCompany, 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.True(t, fx.repo.invoices[inv.ID].Payment.AdminToCompany.IsPaid)
	require.False(t, fx.repo.invoices[unrelated.ID].Payment.AdminToCompany.IsPaid)
}

func TestMassSettleDistributorMarksBothLegs(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "MSS-001", admin, distributor.ID)

	res, err := fx.svc.MassSettle(ctx, admin, commission.EntityDistributor, []int64{distributor.ID})
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.Equal(t, 1000.0, res.TotalAmount)

	stored := fx.repo.invoices[inv.ID]
	require.True(t, stored.Payment.ClientToDistributor.IsPaid)
	require.True(t, stored.Payment.DistributorToAdmin.IsPaid)
	require.Equal(t, admin.ID, *stored.Payment.ClientToDistributor.MarkedBy)
	require.Equal(t, admin.ID, *stored.Payment.DistributorToAdmin.MarkedBy)
}

func TestMassSettleDistributorSkipsAlreadyPaidLeg(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "MSS-002", admin, distributor.ID)
	_, err := fx.svc.MarkPayment(ctx, distributor, inv.ID, StageClientToDistributor)
	require.NoError(t, err)
	firstMark := *fx.repo.invoices[inv.ID].Payment.ClientToDistributor.MarkedBy

	res, err := fx.svc.MassSettle(ctx, admin, commission.EntityDistributor, []int64{distributor.ID})
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.Empty(t, res.Errors)

	stored := fx.repo.invoices[inv.ID]
	require.True(t, stored.Payment.DistributorToAdmin.IsPaid)
	// The earlier distributor mark stays intact.
	require.Equal(t, firstMark, *stored.Payment.ClientToDistributor.MarkedBy)
}

func TestMassSettleMultipleClients(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	a := seedInvoice(t, fx, "MSS-010", admin, distributor.ID)
	in := baseInput("MSS-011")
	in.ClientID = 2
	b, err := fx.svc.Create(ctx, admin, in)
	require.NoError(t, err)

	res, err := fx.svc.MassSettle(ctx, distributor, commission.EntityClient, []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, 2, res.ProcessedCount)
	require.True(t, fx.repo.invoices[a.ID].Payment.ClientToDistributor.IsPaid)
	require.True(t, fx.repo.invoices[b.ID].Payment.ClientToDistributor.IsPaid)
	// Only the client leg moves on the client path.
	require.False(t, fx.repo.invoices[a.ID].Payment.DistributorToAdmin.IsPaid)
}

func TestMassSettlePartialFailureAcrossEntities(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	ok := seedInvoice(t, fx, "MSS-020", admin, distributor.ID)
	in := baseInput("MSS-021")
	in.ClientID = 2
	broken, err := fx.svc.Create(ctx, admin, in)
	require.NoError(t, err)
	fx.repo.failSetStage[broken.ID] = true

	res, err := fx.svc.MassSettle(ctx, distributor, commission.EntityClient, []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.Len(t, res.Errors, 1)
	require.True(t, fx.repo.invoices[ok.ID].Payment.ClientToDistributor.IsPaid)
	require.False(t, fx.repo.invoices[broken.ID].Payment.ClientToDistributor.IsPaid)
}

type memoryDigest struct {
	batches []string
}

func (m *memoryDigest) EnqueueSettlementDigest(_ context.Context, batchID string, _ int, _ float64) error {
	m.batches = append(m.batches, batchID)
	return nil
}

type memoryObserver struct {
	kinds     []string
	processed int
}

func (m *memoryObserver) ObserveSettlement(kind string, processed int) {
	m.kinds = append(m.kinds, kind)
	m.processed += processed
}

func TestSettlementBatchesAreObserved(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	obs := &memoryObserver{}
	fx.svc.SetSettlementObserver(obs)

	seedInvoice(t, fx, "OBS-001", admin, distributor.ID)
	seedInvoice(t, fx, "OBS-002", admin, distributor.ID)

	res, err := fx.svc.BulkSettle(ctx, distributor, commission.EntityClient, 1)
	require.NoError(t, err)
	require.Equal(t, 2, res.ProcessedCount)
	require.Equal(t, []string{"bulk"}, obs.kinds)
	require.Equal(t, 2, obs.processed)

	_, err = fx.svc.MassSettle(ctx, admin, commission.EntityDistributor, []int64{distributor.ID})
	require.NoError(t, err)
	require.Equal(t, []string{"bulk", "mass"}, obs.kinds)
	require.Equal(t, 4, obs.processed)
}

func TestMassSettleEnqueuesDigest(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	digest := &memoryDigest{}
	fx.svc.SetDigestEnqueuer(digest)

	seedInvoice(t, fx, "MSS-030", admin, distributor.ID)
	res, err := fx.svc.MassSettle(ctx, admin, commission.EntityDistributor, []int64{distributor.ID})
	require.NoError(t, err)
	require.Len(t, digest.batches, 1)
	require.Equal(t, res.BatchID, digest.batches[0])
}
