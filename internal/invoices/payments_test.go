package invoices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veris-bms/veris/internal/shared"
)

func seedInvoice(t *testing.T, fx *invoiceFixture, code string, createdBy shared.Actor, assignedTo int64) *Invoice {
	t.Helper()
	in := baseInput(code)
	in.AssignedDistributor = assignedTo
	inv, err := fx.svc.Create(context.Background(), createdBy, in)
	require.NoError(t, err)
	return inv
}

func TestMarkPaymentByAssignedDistributor(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "PAY-001", admin, distributor.ID)

	marked, err := fx.svc.MarkPayment(ctx, distributor, inv.ID, StageClientToDistributor)
	require.NoError(t, err)
	require.True(t, marked.Payment.ClientToDistributor.IsPaid)
	require.NotNil(t, marked.Payment.ClientToDistributor.MarkedBy)
	require.Equal(t, distributor.ID, *marked.Payment.ClientToDistributor.MarkedBy)
	require.NotNil(t, marked.Payment.ClientToDistributor.PaidAt)
}

func TestMarkPaymentAlreadyPaidRejectedUnchanged(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "PAY-002", admin, distributor.ID)

	first, err := fx.svc.MarkPayment(ctx, distributor, inv.ID, StageClientToDistributor)
	require.NoError(t, err)
	firstState := first.Payment.ClientToDistributor

	_, err = fx.svc.MarkPayment(ctx, distributor, inv.ID, StageClientToDistributor)
	require.ErrorIs(t, err, ErrStageAlreadyPaid)

	stored := fx.repo.invoices[inv.ID].Payment.ClientToDistributor
	require.Equal(t, firstState, stored)
}

func TestMarkPaymentAuthorizationMatrix(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "PAY-003", admin, distributor.ID)
	otherDistributor := shared.Actor{ID: 201, Role: shared.RoleDistributor}
	otherAdmin := shared.Actor{ID: 101, Role: shared.RoleAdmin}

	cases := []struct {
		name    string
		actor   shared.Actor
		stage   PaymentStage
		allowed bool
	}{
		{"assigned distributor marks client leg", distributor, StageClientToDistributor, true},
		{"other distributor denied", otherDistributor, StageClientToDistributor, false},
		{"admin denied on client leg", admin, StageClientToDistributor, false},
		{"creating admin marks admin leg", admin, StageDistributorToAdmin, true},
		{"creating admin marks company leg", admin, StageAdminToCompany, true},
		{"other admin denied", otherAdmin, StageDistributorToAdmin, false},
		{"distributor denied on admin leg", distributor, StageAdminToCompany, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.MarkPayment(ctx, tc.actor, inv.ID, tc.stage)
			if tc.allowed {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrPaymentForbidden)
			}
		})
	}
}

func TestMarkPaymentUnknownStage(t *testing.T) {
	fx := newInvoiceFixture()
	inv := seedInvoice(t, fx, "PAY-004", admin, distributor.ID)

	_, err := fx.svc.MarkPayment(context.Background(), admin, inv.ID, "sideways")
	require.ErrorIs(t, err, ErrValidation)
}

func TestUnmarkPaymentAdminOnly(t *testing.T) {
	fx := newInvoiceFixture()
	ctx := context.Background()

	inv := seedInvoice(t, fx, "PAY-005", admin, distributor.ID)
	_, err := fx.svc.MarkPayment(ctx, distributor, inv.ID, StageClientToDistributor)
	require.NoError(t, err)

	_, err = fx.svc.UnmarkPayment(ctx, distributor, inv.ID, StageClientToDistributor)
	require.ErrorIs(t, err, ErrPaymentForbidden)

	// Any admin may unmark, ownership irrelevant.
	otherAdmin := shared.Actor{ID: 101, Role: shared.RoleAdmin}
	reverted, err := fx.svc.UnmarkPayment(ctx, otherAdmin, inv.ID, StageClientToDistributor)
	require.NoError(t, err)
	require.False(t, reverted.Payment.ClientToDistributor.IsPaid)
	require.Nil(t, reverted.Payment.ClientToDistributor.MarkedBy)
	require.Nil(t, reverted.Payment.ClientToDistributor.PaidAt)
	require.Len(t, fx.audit.records, 1)
}

func TestDisplayStatusPriority(t *testing.T) {
	inv := &Invoice{}

	status, blocking := inv.DisplayStatus()
	require.Equal(t, "Pending", status)
	require.Equal(t, StageAdminToCompany, blocking)

	inv.Payment.AdminToCompany.IsPaid = true
	_, blocking = inv.DisplayStatus()
	require.Equal(t, StageDistributorToAdmin, blocking)

	inv.Payment.DistributorToAdmin.IsPaid = true
	_, blocking = inv.DisplayStatus()
	require.Equal(t, StageClientToDistributor, blocking)

	inv.Payment.ClientToDistributor.IsPaid = true
	status, blocking = inv.DisplayStatus()
	require.Equal(t, "Paid", status)
	require.Empty(t, blocking)
}
