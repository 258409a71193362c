package purchaseorder

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtj60/dorado-exchange-sub003/internal/allocation"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	"github.com/jtj60/dorado-exchange-sub003/internal/pricing"
)

// MetalsReport pairs the snapshot an order is priced against with the
// three-party breakdown computed from it.
type MetalsReport struct {
	Spots     []pricing.Snapshot    `json:"spots"`
	Breakdown *allocation.Breakdown `json:"breakdown"`
}

// OrderMetals returns the customer-facing view: the order spot snapshot
// (live prices when unlocked) and the three-party allocation built on it.
func (s *Service) OrderMetals(ctx context.Context, id int64) (*MetalsReport, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.OrderMetals",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, orderBid, refinerBid, orderSnaps, _, err := s.settlementInputs(ctx, id)
	if err != nil {
		return nil, err
	}
	breakdown, err := allocation.Compute(allocation.Input{
		Items:      order.Items,
		OrderBid:   orderBid,
		RefinerBid: refinerBid,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &MetalsReport{Spots: orderSnaps, Breakdown: breakdown}, nil
}

// RefinerMetals returns the operator-facing settlement view: the refiner spot
// snapshot and the same three-party allocation.
func (s *Service) RefinerMetals(ctx context.Context, id int64) (*MetalsReport, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.RefinerMetals",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, orderBid, refinerBid, _, refinerSnaps, err := s.settlementInputs(ctx, id)
	if err != nil {
		return nil, err
	}
	breakdown, err := allocation.Compute(allocation.Input{
		Items:      order.Items,
		OrderBid:   orderBid,
		RefinerBid: refinerBid,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &MetalsReport{Spots: refinerSnaps, Breakdown: breakdown}, nil
}

// settlementInputs loads the order and resolves each party's bid per metal:
// frozen snapshots when spots are locked, live prices otherwise.
func (s *Service) settlementInputs(ctx context.Context, id int64) (
	*entity.PurchaseOrder,
	map[entity.Metal]float64,
	map[entity.Metal]float64,
	[]pricing.Snapshot,
	[]pricing.Snapshot,
	error,
) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	orderBid := make(map[entity.Metal]float64)
	refinerBid := make(map[entity.Metal]float64)
	var orderSnaps, refinerSnaps []pricing.Snapshot

	if order.SpotsLocked {
		spots, err := s.store.OrderSpots(ctx, id)
		if err != nil {
			return nil, nil, nil, nil, nil, mapStoreErr(err)
		}
		for _, sp := range spots {
			orderBid[sp.Metal] = sp.BidSpot
			orderSnaps = append(orderSnaps, pricing.SnapshotFromOrderSpot(sp))
		}
		refiners, err := s.store.RefinerSpots(ctx, id)
		if err != nil {
			return nil, nil, nil, nil, nil, mapStoreErr(err)
		}
		for _, sp := range refiners {
			refinerBid[sp.Metal] = sp.BidSpot
			refinerSnaps = append(refinerSnaps, pricing.Snapshot{
				Metal: sp.Metal, BidSpot: sp.BidSpot, AskSpot: sp.AskSpot, ScrapPercentage: sp.ScrapPercentage,
			})
		}
		return order, orderBid, refinerBid, orderSnaps, refinerSnaps, nil
	}

	live, err := s.spots.Current(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, mapStoreErr(err)
	}
	for _, p := range live {
		orderBid[p.Metal] = p.BidSpot
		refinerBid[p.Metal] = p.BidSpot
		snap := pricing.SnapshotFromSpotPrice(p)
		orderSnaps = append(orderSnaps, snap)
		refinerSnaps = append(refinerSnaps, snap)
	}
	return order, orderBid, refinerBid, orderSnaps, refinerSnaps, nil
}
