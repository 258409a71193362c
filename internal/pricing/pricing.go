// Package pricing holds the pure item valuation functions. Nothing here
// touches storage; callers pass the item rows and the spot snapshot the offer
// is priced against. Money is rounded to two decimals only at the persistence
// boundary so rounding error never compounds across the three-party split.
package pricing

import (
	"fmt"
	"math"

	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
)

// Snapshot is the per-metal frozen price a computation runs against. Both
// OrderSpot and RefinerSpot rows reduce to this shape.
type Snapshot struct {
	Metal           entity.Metal
	BidSpot         float64
	AskSpot         float64
	ScrapPercentage float64
}

// SnapshotFromOrderSpot adapts a frozen order spot row.
func SnapshotFromOrderSpot(s *entity.OrderSpot) Snapshot {
	return Snapshot{Metal: s.Metal, BidSpot: s.BidSpot, AskSpot: s.AskSpot, ScrapPercentage: s.ScrapPercentage}
}

// SnapshotFromSpotPrice adapts a live market quote.
func SnapshotFromSpotPrice(s *entity.SpotPrice) Snapshot {
	return Snapshot{Metal: s.Metal, BidSpot: s.BidSpot, AskSpot: s.AskSpot, ScrapPercentage: s.ScrapPercentage}
}

// EstimatedContent is the pure-metal weight of an item before any refiner
// measurement: the customer-facing offer basis.
func EstimatedContent(item *entity.PurchaseOrderItem) (float64, error) {
	if scrap, ok := item.Scrap(); ok {
		return scrap.Content, nil
	}
	if product, ok := item.Product(); ok {
		return product.ContentPerUnit * float64(product.Quantity), nil
	}
	return 0, fmt.Errorf("unknown item type %q", item.ItemType)
}

// ItemContent is the pure-metal weight attributable to an item. Scrap prefers
// the refiner's measured content when present, then measured melt and purity,
// then the pre-melt estimate. Products are content-per-unit times quantity.
func ItemContent(item *entity.PurchaseOrderItem) (float64, error) {
	if scrap, ok := item.Scrap(); ok {
		if scrap.ContentActual != nil {
			return *scrap.ContentActual, nil
		}
		if scrap.PostMeltActual != nil && scrap.PurityActual != nil {
			return *scrap.PostMeltActual * *scrap.PurityActual, nil
		}
		return scrap.Content, nil
	}
	if product, ok := item.Product(); ok {
		return product.ContentPerUnit * float64(product.Quantity), nil
	}
	return 0, fmt.Errorf("unknown item type %q", item.ItemType)
}

// ItemPremium resolves the multiplier applied to spot for an item: the item's
// own override when set, else the item's bid premium, else the snapshot's
// blanket premium for the item's category. Products without an override trade
// at full spot.
func ItemPremium(item *entity.PurchaseOrderItem, snap Snapshot) float64 {
	if item.Premium != nil {
		return *item.Premium
	}
	switch item.ItemType {
	case entity.ItemTypeScrap:
		if item.BidPremium != nil {
			return *item.BidPremium
		}
		return snap.ScrapPercentage
	default:
		return 1
	}
}

// ItemPrice is the unrounded dollar value of an item against a snapshot.
func ItemPrice(item *entity.PurchaseOrderItem, snap Snapshot) (float64, error) {
	content, err := ItemContent(item)
	if err != nil {
		return 0, err
	}
	return content * ItemPremium(item, snap) * snap.BidSpot, nil
}

// RoundMoney rounds a dollar amount to cents for persistence.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// OrderTotal sums per-item rounded prices against their per-metal snapshots
// and deducts the actual shipping fee. Items are rounded individually so the
// stored item prices always sum to the stored total. A missing snapshot for a
// priced metal is a programming error in the lock step and is reported.
func OrderTotal(items []*entity.PurchaseOrderItem, snaps map[entity.Metal]Snapshot, shippingFee float64) (float64, error) {
	var sum float64
	for _, item := range items {
		snap, ok := snaps[item.Metal]
		if !ok {
			return 0, fmt.Errorf("no spot snapshot for metal %q", item.Metal)
		}
		price, err := ItemPrice(item, snap)
		if err != nil {
			return 0, err
		}
		sum += RoundMoney(price)
	}
	return RoundMoney(sum - shippingFee), nil
}
