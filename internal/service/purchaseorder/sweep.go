package purchaseorder

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	repo "github.com/jtj60/dorado-exchange-sub003/internal/repository/purchaseorder"
)

// SweepExpired resolves every order whose sent offer has lapsed. Locked
// orders release their price hold and receive a fresh floating-price offer;
// unlocked orders are auto-accepted at current live prices. Each order runs
// in its own transaction so one failure cannot abort the rest of the sweep.
// Returns the number of orders resolved.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.SweepExpired")
	defer span.End()

	expired, err := s.store.ListExpiredOffers(ctx, time.Now().UTC())
	if err != nil {
		return 0, mapStoreErr(err)
	}

	var processed int
	for _, order := range expired {
		if err := s.expireOne(ctx, order.ID); err != nil {
			s.logger.Error("expired offer resolution failed",
				zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		processed++
	}
	span.SetAttributes(attribute.Int("sweep.processed", processed), attribute.Int("sweep.expired", len(expired)))
	return processed, nil
}

func (s *Service) expireOne(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.expireOne",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var accepted *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		// Re-check under the transaction; a user action may have raced the sweep.
		now := time.Now().UTC()
		if o.OfferStatus != entity.OfferSent || o.ExpiresAt == nil || !o.ExpiresAt.Before(now) {
			return nil
		}

		if o.SpotsLocked {
			// The market-risk hold elapsed without customer action: release
			// the price commitment but keep the offer open at floating prices.
			if err := tx.ClearOrderSpots(ctx, o.ID); err != nil {
				return err
			}
			if err := tx.ClearRefinerSpots(ctx, o.ID); err != nil {
				return err
			}
			o.SpotsLocked = false
			return s.sendOfferTx(ctx, tx, o, SchedulerActor)
		}

		if err := s.acceptOfferTx(ctx, tx, o, SchedulerActor); err != nil {
			return err
		}
		accepted = o
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateCache(ctx, id)
	if accepted != nil {
		s.publish(ctx, EventOfferAccepted, accepted)
	}
	return nil
}
