package purchaseorder

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	"github.com/jtj60/dorado-exchange-sub003/internal/pricing"
	repo "github.com/jtj60/dorado-exchange-sub003/internal/repository/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/internal/spot"
)

// SendOffer extends (or re-extends) a cash offer on an order. All stale item
// prices and the order total are cleared; the expiry window depends on
// whether spots are locked, since a locked snapshot is a market-risk hold the
// operator wants resolved quickly.
func (s *Service) SendOffer(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.SendOffer",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		switch o.Status {
		case entity.StatusReceived, entity.StatusOfferSent, entity.StatusRejected:
			// Offer may be sent or revised in these states.
		default:
			return invalidTransition("cannot send offer while order is %q", o.Status)
		}
		if err := s.sendOfferTx(ctx, tx, o, actor); err != nil {
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

// sendOfferTx applies the offer-sent mutation inside the caller's transaction.
func (s *Service) sendOfferTx(ctx context.Context, tx repo.Store, o *entity.PurchaseOrder, actor string) error {
	if err := tx.ClearItemPricing(ctx, o.ID); err != nil {
		return err
	}
	now := time.Now().UTC()
	ttl := s.offers.UnlockedTTL
	if o.SpotsLocked {
		ttl = s.offers.LockedTTL
	}
	expires := now.Add(ttl)

	o.TotalPrice = nil
	o.SentAt = &now
	o.ExpiresAt = &expires
	o.Status = entity.StatusOfferSent
	o.OfferStatus = entity.OfferSent
	o.UpdatedBy = actor
	for _, item := range o.Items {
		item.ClearPricing()
	}
	return tx.UpdateOrder(ctx, o)
}

// AcceptOffer settles the active offer. When spots are not yet locked the
// current live prices are captured first (first-time lock at acceptance);
// every item is then repriced against the frozen order snapshot and the total
// is persisted. Re-locking is guarded: an already-locked order's snapshot is
// never replaced.
func (s *Service) AcceptOffer(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.AcceptOffer",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := s.acceptOfferTx(ctx, tx, o, actor); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.invalidateCache(ctx, id)
	s.publish(ctx, EventOfferAccepted, order)
	return order, nil
}

func (s *Service) acceptOfferTx(ctx context.Context, tx repo.Store, o *entity.PurchaseOrder, actor string) error {
	if !o.OfferActive() {
		return invalidTransition("no active offer to accept (offer status %q)", o.OfferStatus)
	}

	if !o.SpotsLocked {
		if err := s.lockSpotsTx(ctx, tx, o); err != nil {
			return err
		}
	}

	spots, err := tx.OrderSpots(ctx, o.ID)
	if err != nil {
		return err
	}
	snaps := make(map[entity.Metal]pricing.Snapshot, len(spots))
	for _, sp := range spots {
		snaps[sp.Metal] = pricing.SnapshotFromOrderSpot(sp)
	}

	for _, item := range o.Items {
		snap, ok := snaps[item.Metal]
		if !ok {
			return fmt.Errorf("no locked snapshot for metal %q", item.Metal)
		}
		price, err := pricing.ItemPrice(item, snap)
		if err != nil {
			return err
		}
		rounded := pricing.RoundMoney(price)
		item.Price = &rounded
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
	}
	grand, err := pricing.OrderTotal(o.Items, snaps, o.ShippingFeeActual)
	if err != nil {
		return err
	}

	o.TotalPrice = &grand
	o.Status = entity.StatusAccepted
	o.OfferStatus = entity.OfferAccepted
	o.ExpiresAt = nil
	o.UpdatedBy = actor
	return tx.UpdateOrder(ctx, o)
}

// lockSpotsTx captures the current live prices into both frozen snapshots for
// every metal present on the order. The refiner snapshot is derived from the
// same capture.
func (s *Service) lockSpotsTx(ctx context.Context, tx repo.Store, o *entity.PurchaseOrder) error {
	live, err := s.spots.Current(ctx)
	if err != nil {
		return fmt.Errorf("fetch live spot prices: %w", err)
	}
	byMetal := spot.ByMetal(live)

	metals := o.ItemMetals()
	if len(metals) == 0 {
		metals = entity.Metals
	}

	orderSpots := make([]*entity.OrderSpot, 0, len(metals))
	refinerSpots := make([]*entity.RefinerSpot, 0, len(metals))
	for _, metal := range metals {
		p, ok := byMetal[metal]
		if !ok {
			return fmt.Errorf("no live spot price for metal %q", metal)
		}
		orderSpots = append(orderSpots, &entity.OrderSpot{
			OrderID:         o.ID,
			Metal:           metal,
			BidSpot:         p.BidSpot,
			AskSpot:         p.AskSpot,
			ScrapPercentage: p.ScrapPercentage,
		})
		refinerSpots = append(refinerSpots, &entity.RefinerSpot{
			OrderID:         o.ID,
			Metal:           metal,
			BidSpot:         p.BidSpot,
			AskSpot:         p.AskSpot,
			ScrapPercentage: p.ScrapPercentage,
		})
	}

	if err := tx.ReplaceOrderSpots(ctx, o.ID, orderSpots); err != nil {
		return err
	}
	if err := tx.ReplaceRefinerSpots(ctx, o.ID, refinerSpots); err != nil {
		return err
	}
	o.SpotsLocked = true
	return nil
}

// RejectOffer records the customer's rejection along with their notes. No
// prices are recomputed; the order sits rejected until the admin revises.
func (s *Service) RejectOffer(ctx context.Context, id int64, notes, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.RejectOffer",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if !o.OfferActive() {
			return invalidTransition("no active offer to reject (offer status %q)", o.OfferStatus)
		}
		o.Status = entity.StatusRejected
		o.OfferStatus = entity.OfferRejected
		o.OfferNotes = notes
		o.ExpiresAt = nil
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

// ResendAfterRejection toggles the rejected-offer loop. A rejected offer
// becomes Resent (awaiting admin re-offer, sent/expiry cleared); a further
// call on a Resent offer finalizes the rejection. The next state is derived
// from the current offer status because one endpoint serves both the admin's
// revision and the customer's repeat rejection.
func (s *Service) ResendAfterRejection(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.ResendAfterRejection",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *entity.PurchaseOrder
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		switch o.OfferStatus {
		case entity.OfferRejected:
			o.OfferStatus = entity.OfferResent
			o.SentAt = nil
			o.ExpiresAt = nil
		case entity.OfferResent:
			o.OfferStatus = entity.OfferRejected
		default:
			return invalidTransition("offer status %q cannot be resent", o.OfferStatus)
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
