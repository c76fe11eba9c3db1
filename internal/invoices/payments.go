package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/veris-bms/veris/internal/shared"
)

// ErrStageAlreadyPaid rejects a repeated mark. Re-marking is refused rather
// than absorbed so an accidental double submit surfaces instead of silently
// rewriting markedBy and paidAt.
var ErrStageAlreadyPaid = errors.New("invoices: payment stage already marked paid")

// ErrPaymentForbidden signals the actor may not transition this stage on
// this invoice.
var ErrPaymentForbidden = errors.New("invoices: payment transition not permitted")

// MarkPayment sets one stage to paid on behalf of actor. The ownership
// predicate runs first; a stage already paid is rejected unchanged.
func (s *Service) MarkPayment(ctx context.Context, actor shared.Actor, id int64, stage PaymentStage) (*Invoice, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown payment stage %q", ErrValidation, stage)
	}
	inv, err := s.repo.Get(ctx, id, Scope{ViewAll: true})
	if err != nil {
		return nil, err
	}
	if !inv.CanMarkPayment(actor, stage) {
		return nil, ErrPaymentForbidden
	}
	if err := s.markStage(ctx, inv, stage, actor); err != nil {
		return nil, err
	}
	s.logger.Info("payment stage marked", "invoice_id", inv.ID, "stage", stage, "actor_id", actor.ID)
	return inv, nil
}

// markStage applies the Unpaid -> Paid transition in memory and persists it.
// Shared by the single and bulk paths so the already-paid rejection is
// identical everywhere.
func (s *Service) markStage(ctx context.Context, inv *Invoice, stage PaymentStage, actor shared.Actor) error {
	state := inv.Payment.Stage(stage)
	if state.IsPaid {
		return ErrStageAlreadyPaid
	}
	now := s.now()
	actorID := actor.ID
	next := StageState{IsPaid: true, MarkedBy: &actorID, PaidAt: &now}
	if err := s.repo.SetStage(ctx, inv.ID, stage, next); err != nil {
		return err
	}
	*state = next
	return nil
}

// UnmarkPayment reverts a stage to unpaid. Admin only; no ownership check
// beyond the role.
func (s *Service) UnmarkPayment(ctx context.Context, actor shared.Actor, id int64, stage PaymentStage) (*Invoice, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown payment stage %q", ErrValidation, stage)
	}
	if !actor.IsAdmin() {
		return nil, ErrPaymentForbidden
	}
	inv, err := s.repo.Get(ctx, id, Scope{ViewAll: true})
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetStage(ctx, inv.ID, stage, StageState{}); err != nil {
		return nil, err
	}
	*inv.Payment.Stage(stage) = StageState{}
	s.recordAudit(ctx, actor, "payment.unmark", inv.ID, map[string]any{"stage": string(stage)})
	s.logger.Info("payment stage unmarked", "invoice_id", inv.ID, "stage", stage, "actor_id", actor.ID)
	return inv, nil
}
