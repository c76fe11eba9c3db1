package invoices

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/shared"
)

// BulkResult aggregates a settlement run. Errors holds per-item failures;
// a non-empty list alongside a positive ProcessedCount is the normal shape
// of a partial failure, not a fatal outcome.
type BulkResult struct {
	BatchID        string   `json:"batchId"`
	ProcessedCount int      `json:"processedCount"`
	TotalAmount    float64  `json:"totalAmount"`
	Errors         []string `json:"errors"`
}

// DigestEnqueuer schedules a settlement digest after a batch completes.
type DigestEnqueuer interface {
	EnqueueSettlementDigest(ctx context.Context, batchID string, processed int, totalAmount float64) error
}

// SetDigestEnqueuer attaches the background digest hook. Optional; a nil
// enqueuer disables digests.
func (s *Service) SetDigestEnqueuer(e DigestEnqueuer) { s.digest = e }

// SettlementObserver counts finished settlement batches for monitoring.
type SettlementObserver interface {
	ObserveSettlement(kind string, processed int)
}

// SetSettlementObserver attaches the metrics hook. Optional.
func (s *Service) SetSettlementObserver(o SettlementObserver) { s.observer = o }

// BulkSettle marks one payment stage across every unsettled invoice tied to
// the given entity. Which stage, and who may call, depends on the entity
// type:
//
//	client      distributor actor, stage clientToDistributor, own assignments
//	distributor admin actor, stage distributorToAdmin, own invoices
//	company     admin actor, stage adminToCompany, own invoices
//
// Failures on individual invoices are collected and the rest of the batch
// keeps going.
func (s *Service) BulkSettle(ctx context.Context, actor shared.Actor, entityType commission.EntityType, scopeID int64) (*BulkResult, error) {
	res := &BulkResult{BatchID: uuid.NewString()}

	var (
		items []Invoice
		stage PaymentStage
		err   error
	)
	switch entityType {
	case commission.EntityClient:
		if !actor.IsDistributor() {
			return nil, ErrPaymentForbidden
		}
		stage = StageClientToDistributor
		items, err = s.repo.ListUnsettledByClient(ctx, scopeID, actor.ID)
	case commission.EntityDistributor:
		if !actor.IsAdmin() {
			return nil, ErrPaymentForbidden
		}
		stage = StageDistributorToAdmin
		items, err = s.repo.ListUnsettledByDistributor(ctx, scopeID, actor.ID)
	case commission.EntityCompany:
		if !actor.IsAdmin() {
			return nil, ErrPaymentForbidden
		}
		stage = StageAdminToCompany
		items, err = s.repo.ListUnsettledByCompany(ctx, scopeID, actor.ID)
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}
	if err != nil {
		return nil, fmt.Errorf("list unsettled invoices: %w", err)
	}

	for i := range items {
		inv := &items[i]
		if !inv.CanMarkPayment(actor, stage) {
			res.Errors = append(res.Errors, fmt.Sprintf("invoice %s: not permitted", inv.InvoiceCode))
			continue
		}
		if err := s.markStage(ctx, inv, stage, actor); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("invoice %s: %v", inv.InvoiceCode, err))
			continue
		}
		res.ProcessedCount++
		res.TotalAmount += inv.Total
	}

	s.finishBatch(ctx, actor, "payment.bulk_settle", "bulk", entityType, res)
	return res, nil
}

// MassSettle runs the bulk transition over a list of entities. The
// distributor case intentionally diverges from BulkSettle: it marks both
// clientToDistributor and distributorToAdmin in one pass. The single-entity
// endpoint marks only the admin leg. Both behaviors are kept as distinct
// operations on purpose.
func (s *Service) MassSettle(ctx context.Context, actor shared.Actor, entityType commission.EntityType, scopeIDs []int64) (*BulkResult, error) {
	res := &BulkResult{BatchID: uuid.NewString()}

	switch entityType {
	case commission.EntityClient:
		if !actor.IsDistributor() {
			return nil, ErrPaymentForbidden
		}
	case commission.EntityDistributor, commission.EntityCompany:
		if !actor.IsAdmin() {
			return nil, ErrPaymentForbidden
		}
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}

	for _, scopeID := range scopeIDs {
		if err := s.massSettleEntity(ctx, actor, entityType, scopeID, res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %d: %v", entityType, scopeID, err))
		}
	}

	s.finishBatch(ctx, actor, "payment.mass_settle", "mass", entityType, res)
	return res, nil
}

func (s *Service) massSettleEntity(ctx context.Context, actor shared.Actor, entityType commission.EntityType, scopeID int64, res *BulkResult) error {
	switch entityType {
	case commission.EntityClient:
		items, err := s.repo.ListUnsettledByClient(ctx, scopeID, actor.ID)
		if err != nil {
			return err
		}
		s.settleStage(ctx, actor, items, StageClientToDistributor, res)
	case commission.EntityDistributor:
		// Cascading shortcut: settle the client leg alongside the admin leg.
		// Ownership is already guaranteed by the created_by filter, so the
		// client leg is marked here under the admin's authority.
		items, err := s.repo.ListAssignedByDistributor(ctx, scopeID, actor.ID)
		if err != nil {
			return err
		}
		for i := range items {
			inv := &items[i]
			settled := false
			if !inv.Payment.ClientToDistributor.IsPaid {
				if err := s.markStage(ctx, inv, StageClientToDistributor, actor); err != nil {
					res.Errors = append(res.Errors, fmt.Sprintf("invoice %s: %v", inv.InvoiceCode, err))
				} else {
					settled = true
				}
			}
			if !inv.Payment.DistributorToAdmin.IsPaid {
				if err := s.markStage(ctx, inv, StageDistributorToAdmin, actor); err != nil {
					res.Errors = append(res.Errors, fmt.Sprintf("invoice %s: %v", inv.InvoiceCode, err))
				} else {
					settled = true
				}
			}
			if settled {
				res.ProcessedCount++
				res.TotalAmount += inv.Total
			}
		}
	case commission.EntityCompany:
		items, err := s.repo.ListUnsettledByCompany(ctx, scopeID, actor.ID)
		if err != nil {
			return err
		}
		s.settleStage(ctx, actor, items, StageAdminToCompany, res)
	}
	return nil
}

func (s *Service) settleStage(ctx context.Context, actor shared.Actor, items []Invoice, stage PaymentStage, res *BulkResult) {
	for i := range items {
		inv := &items[i]
		if !inv.CanMarkPayment(actor, stage) {
			res.Errors = append(res.Errors, fmt.Sprintf("invoice %s: not permitted", inv.InvoiceCode))
			continue
		}
		if err := s.markStage(ctx, inv, stage, actor); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("invoice %s: %v", inv.InvoiceCode, err))
			continue
		}
		res.ProcessedCount++
		res.TotalAmount += inv.Total
	}
}

func (s *Service) finishBatch(ctx context.Context, actor shared.Actor, action, kind string, entityType commission.EntityType, res *BulkResult) {
	s.recordAudit(ctx, actor, action, 0, map[string]any{
		"batch_id":    res.BatchID,
		"entity_type": string(entityType),
		"processed":   res.ProcessedCount,
		"amount":      res.TotalAmount,
		"failures":    len(res.Errors),
	})
	if s.observer != nil {
		s.observer.ObserveSettlement(kind, res.ProcessedCount)
	}
	if s.digest != nil && res.ProcessedCount > 0 {
		if err := s.digest.EnqueueSettlementDigest(ctx, res.BatchID, res.ProcessedCount, res.TotalAmount); err != nil {
			s.logger.Error("enqueue settlement digest", "batch_id", res.BatchID, "error", err)
		}
	}
	s.logger.Info("settlement batch finished",
		"action", action, "batch_id", res.BatchID,
		"processed", res.ProcessedCount, "failures", len(res.Errors))
}
