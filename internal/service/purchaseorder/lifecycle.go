package purchaseorder

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtj60/dorado-exchange-sub003/internal/carrier"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	repo "github.com/jtj60/dorado-exchange-sub003/internal/repository/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/pkg/errorbank"
)

// CancelRequest carries what the carrier needs to book the return shipment.
type CancelRequest struct {
	CarrierID string
	WeightOz  float64
}

// CancelOrder returns the customer's material. The order is cancelled, spots
// are unlocked, and a Return shipment is committed as Pending; the carrier
// label is purchased after the commit and attached in a second transaction.
// Cancelling an already-cancelled order is a no-op and never books a second
// return shipment.
func (s *Service) CancelOrder(ctx context.Context, id int64, req CancelRequest, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.CancelOrder",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var (
		order    *entity.PurchaseOrder
		shipment *entity.Shipment
	)
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == entity.StatusCancelled {
			order = o
			return nil
		}
		if !entity.CanTransition(o.Status, entity.StatusCancelled) {
			return invalidTransition("cannot cancel order in terminal state %q", o.Status)
		}

		o.Status = entity.StatusCancelled
		o.OfferStatus = entity.OfferCancelled
		o.SpotsLocked = false
		o.ExpiresAt = nil
		o.UpdatedBy = actor
		if err := tx.ClearOrderSpots(ctx, o.ID); err != nil {
			return err
		}
		if err := tx.ClearRefinerSpots(ctx, o.ID); err != nil {
			return err
		}
		shipment = &entity.Shipment{
			OrderID:   o.ID,
			Direction: entity.ShipmentReturn,
			Status:    entity.ShipmentPending,
			CarrierID: req.CarrierID,
		}
		if err := tx.CreateShipment(ctx, shipment); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, id)

	if shipment == nil {
		// Already cancelled; nothing more to do.
		return order, nil
	}

	if err := s.attachLabel(ctx, shipment, carrier.LabelRequest{
		CarrierID:   req.CarrierID,
		OrderID:     order.ID,
		AddressID:   order.AddressID,
		WeightOz:    req.WeightOz,
		ReturnLabel: true,
	}); err != nil {
		return order, errorbank.FailedDependency("return label purchase failed", errorbank.WithCause(err))
	}
	return order, nil
}

// LockSpots is the explicit admin override that freezes current live prices
// onto the order outside the offer flow, e.g. to hold a price during
// negotiation. Locking an already-locked order is a conflict, not a rewrite.
func (s *Service) LockSpots(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.LockSpots",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.SpotsLocked {
			return errorbank.Conflict("spots are already locked")
		}
		if err := s.lockSpotsTx(ctx, tx, o); err != nil {
			return err
		}
		o.UpdatedBy = actor
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, id)
	return order, nil
}

// UnlockSpots clears both frozen snapshots and releases the lock. Unlocking
// an unlocked order is a no-op.
func (s *Service) UnlockSpots(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.UnlockSpots",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if !o.SpotsLocked {
			order = o
			return nil
		}
		if err := tx.ClearOrderSpots(ctx, o.ID); err != nil {
			return err
		}
		if err := tx.ClearRefinerSpots(ctx, o.ID); err != nil {
			return err
		}
		o.SpotsLocked = false
		o.UpdatedBy = actor
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, id)
	return order, nil
}

// MarkReceived records intake of the customer's package at the operator.
func (s *Service) MarkReceived(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, entity.StatusReceived, actor)
}

// StartPayment moves an accepted order into payout processing.
func (s *Service) StartPayment(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, entity.StatusPaymentProcessing, actor)
}

// CompletePayment finalizes the order after payout settles.
func (s *Service) CompletePayment(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, entity.StatusCompleted, actor)
}

func (s *Service) transition(ctx context.Context, id int64, to entity.PurchaseOrderStatus, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.Transition",
		trace.WithAttributes(attribute.Int64("order.id", id), attribute.String("order.to", string(to))))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if !entity.CanTransition(o.Status, to) {
			return invalidTransition("cannot move order from %q to %q", o.Status, to)
		}
		o.Status = to
		o.UpdatedBy = actor
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, id)
	return order, nil
}

// UpdateShippingFee records the actual shipping cost deducted from payout.
func (s *Service) UpdateShippingFee(ctx context.Context, id int64, fee float64, actor string) (*entity.PurchaseOrder, error) {
	if fee < 0 {
		return nil, errorbank.BadRequest("shipping fee cannot be negative")
	}
	return s.patchOrder(ctx, id, actor, func(o *entity.PurchaseOrder) error {
		o.ShippingFeeActual = fee
		return nil
	})
}

// UpdateRefinerFee records the processing fee the refiner charges on the lot.
// It settles between operator and refiner and never reduces the customer total.
func (s *Service) UpdateRefinerFee(ctx context.Context, id int64, fee float64, actor string) (*entity.PurchaseOrder, error) {
	if fee < 0 {
		return nil, errorbank.BadRequest("refiner fee cannot be negative")
	}
	return s.patchOrder(ctx, id, actor, func(o *entity.PurchaseOrder) error {
		o.RefinerFee = fee
		return nil
	})
}

// UpdatePoolAdjustments records refinery-pool deductions and remediation.
func (s *Service) UpdatePoolAdjustments(ctx context.Context, id int64, deducted, remediation float64, actor string) (*entity.PurchaseOrder, error) {
	return s.patchOrder(ctx, id, actor, func(o *entity.PurchaseOrder) error {
		o.PoolOzDeducted = deducted
		o.PoolRemediation = remediation
		return nil
	})
}

func (s *Service) patchOrder(ctx context.Context, id int64, actor string, patch func(*entity.PurchaseOrder) error) (*entity.PurchaseOrder, error) {
	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := patch(o); err != nil {
			return err
		}
		o.UpdatedBy = actor
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, id)
	return order, nil
}

// RefinerActuals carries the measured values reported by the refiner. Only
// admin entry of these measurements mutates the actual-value fields; the
// pricing engine never writes them.
type RefinerActuals struct {
	ContentActual  *float64
	PurityActual   *float64
	PostMeltActual *float64
	RefinerPremium *float64
}

// EnterRefinerActuals stores refiner-reported measurements on a scrap item.
func (s *Service) EnterRefinerActuals(ctx context.Context, orderID, itemID int64, actuals RefinerActuals, actor string) (*entity.PurchaseOrderItem, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.EnterRefinerActuals",
		trace.WithAttributes(attribute.Int64("order.id", orderID), attribute.Int64("item.id", itemID)))
	defer span.End()

	var updated *entity.PurchaseOrderItem
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.OrderID != orderID {
			return errorbank.NotFound("item does not belong to this order")
		}
		if item.ItemType != entity.ItemTypeScrap {
			return invalidTransition("refiner actuals apply only to scrap items")
		}
		if actuals.ContentActual != nil {
			item.ContentActual = actuals.ContentActual
		}
		if actuals.PurityActual != nil {
			item.PurityActual = actuals.PurityActual
		}
		if actuals.PostMeltActual != nil {
			item.PostMeltActual = actuals.PostMeltActual
		}
		if actuals.RefinerPremium != nil {
			item.RefinerPremium = actuals.RefinerPremium
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, orderID)
	return updated, nil
}

// AddItem attaches a line item to an order before an offer is extended.
func (s *Service) AddItem(ctx context.Context, orderID int64, item *entity.PurchaseOrderItem, actor string) (*entity.PurchaseOrderItem, error) {
	if item == nil {
		return nil, errorbank.BadRequest("item payload is required")
	}
	if !item.Metal.Valid() {
		return nil, errorbank.BadRequest("unsupported metal")
	}
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if entity.Terminal(o.Status) || o.Status == entity.StatusAccepted || o.Status == entity.StatusPaymentProcessing {
			return invalidTransition("cannot add items to an order in state %q", o.Status)
		}
		item.OrderID = o.ID
		item.Price = nil
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		o.UpdatedBy = actor
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.invalidateCache(ctx, orderID)
	return item, nil
}
