// Package allocation splits each item's metal content and resulting profit
// among the customer, the operator (Dorado), and the refiner. The operator
// buys from the customer at one premium and sells to the refiner at another;
// the gap is the operator's margin.
package allocation

import (
	"errors"
	"fmt"
	"math"

	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	"github.com/jtj60/dorado-exchange-sub003/internal/pricing"
)

// shareTolerance is the float slack allowed before shares are renormalized.
const shareTolerance = 1e-9

// ErrNegativePremium is returned when a premium input is below zero. Negative
// premiums must be rejected, not clamped, or the three-party split would be
// silently misstated.
var ErrNegativePremium = errors.New("negative premium")

// Shares is the fractional split of one item's content. The three parts
// always sum to exactly one.
type Shares struct {
	Customer float64
	Dorado   float64
	Refiner  float64
}

// ComputeShares derives the three-party split from the premium the operator
// pays the customer and the premium the refiner pays the operator. A missing
// premium defaults to the other; when both are missing the customer receives
// full spot. When the refiner premium is below the operator premium the item
// is loss-making: the customer stays anchored at their full share and the
// deficit is absorbed proportionally between operator and refiner.
func ComputeShares(doradoPremium, refinerPremium *float64) (Shares, error) {
	if doradoPremium != nil && *doradoPremium < 0 {
		return Shares{}, fmt.Errorf("dorado premium %v: %w", *doradoPremium, ErrNegativePremium)
	}
	if refinerPremium != nil && *refinerPremium < 0 {
		return Shares{}, fmt.Errorf("refiner premium %v: %w", *refinerPremium, ErrNegativePremium)
	}

	var dorado, refiner float64
	switch {
	case doradoPremium == nil && refinerPremium == nil:
		dorado, refiner = 1, 1
	case doradoPremium == nil:
		dorado, refiner = *refinerPremium, *refinerPremium
	case refinerPremium == nil:
		dorado, refiner = *doradoPremium, *doradoPremium
	default:
		dorado, refiner = *doradoPremium, *refinerPremium
	}

	s := Shares{
		Customer: clamp01(dorado),
		Dorado:   math.Max(refiner-dorado, 0),
		Refiner:  1 - clamp01(refiner),
	}

	if diff := s.Customer + s.Dorado + s.Refiner - 1; math.Abs(diff) > shareTolerance {
		remainder := 1 - s.Customer
		denom := s.Dorado + s.Refiner
		if denom > 0 {
			scale := remainder / denom
			s.Dorado *= scale
			s.Refiner *= scale
		} else {
			s.Dorado = 0
			s.Refiner = remainder
		}
	}

	return s, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Party aggregates one party's position in a metal: content owned, profit
// against that party's own spot, and share of total content.
type Party struct {
	Content float64 `json:"content"`
	Profit  float64 `json:"profit"`
	Percent float64 `json:"percent"`
}

// MetalBreakdown is the three-party position for one metal.
type MetalBreakdown struct {
	Metal    entity.Metal `json:"metal"`
	Customer Party        `json:"customer"`
	Dorado   Party        `json:"dorado"`
	Refiner  Party        `json:"refiner"`
}

// Breakdown aggregates the three-party split per metal and as a grand total.
type Breakdown struct {
	Metals []MetalBreakdown `json:"metals"`
	Total  MetalBreakdown   `json:"total"`
}

// Input carries everything the engine needs: the order's items and each
// party's settlement bid per metal (order snapshot for the customer, refiner
// snapshot for operator and refiner).
type Input struct {
	Items      []*entity.PurchaseOrderItem
	OrderBid   map[entity.Metal]float64
	RefinerBid map[entity.Metal]float64
}

type accumulator struct {
	customer float64
	dorado   float64
	refiner  float64
}

// Compute apportions content and profit for every item. The customer's
// content basis is the estimate the offer was priced against; operator and
// refiner settle on what was actually recovered when measurements exist.
func Compute(in Input) (*Breakdown, error) {
	acc := make(map[entity.Metal]*accumulator, len(entity.Metals))

	for _, item := range in.Items {
		if item == nil {
			continue
		}
		shares, err := ComputeShares(itemDoradoPremium(item), item.RefinerPremium)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", item.ID, err)
		}

		offerBase, err := pricing.EstimatedContent(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", item.ID, err)
		}
		settleBase, err := pricing.ItemContent(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", item.ID, err)
		}

		a := acc[item.Metal]
		if a == nil {
			a = &accumulator{}
			acc[item.Metal] = a
		}
		a.customer += offerBase * shares.Customer
		a.dorado += settleBase * shares.Dorado
		a.refiner += settleBase * shares.Refiner
	}

	out := &Breakdown{Total: MetalBreakdown{Metal: ""}}
	for _, metal := range entity.Metals {
		a, ok := acc[metal]
		if !ok {
			continue
		}
		orderBid, ok := in.OrderBid[metal]
		if !ok {
			return nil, fmt.Errorf("no order spot for metal %q", metal)
		}
		refinerBid, ok := in.RefinerBid[metal]
		if !ok {
			return nil, fmt.Errorf("no refiner spot for metal %q", metal)
		}

		mb := MetalBreakdown{
			Metal:    metal,
			Customer: Party{Content: a.customer, Profit: a.customer * orderBid},
			Refiner:  Party{Content: a.refiner, Profit: a.refiner * refinerBid},
			Dorado: Party{
				Content: a.dorado,
				// Content margin plus the spot-spread margin on the content
				// bought from the customer at the order spot.
				Profit: a.dorado*refinerBid + (refinerBid-orderBid)*a.customer,
			},
		}
		applyPercents(&mb)
		out.Metals = append(out.Metals, mb)

		out.Total.Customer.Content += mb.Customer.Content
		out.Total.Customer.Profit += mb.Customer.Profit
		out.Total.Dorado.Content += mb.Dorado.Content
		out.Total.Dorado.Profit += mb.Dorado.Profit
		out.Total.Refiner.Content += mb.Refiner.Content
		out.Total.Refiner.Profit += mb.Refiner.Profit
	}
	applyPercents(&out.Total)

	return out, nil
}

// CustomerTotal is the customer-side dollar total across all metals: the
// amount owed to the customer against the locked order snapshot.
func CustomerTotal(in Input) (float64, error) {
	b, err := Compute(in)
	if err != nil {
		return 0, err
	}
	return b.Total.Customer.Profit, nil
}

func itemDoradoPremium(item *entity.PurchaseOrderItem) *float64 {
	if item.Premium != nil {
		return item.Premium
	}
	if item.ItemType == entity.ItemTypeScrap && item.BidPremium != nil {
		return item.BidPremium
	}
	return nil
}

func applyPercents(mb *MetalBreakdown) {
	total := mb.Customer.Content + mb.Dorado.Content + mb.Refiner.Content
	if total == 0 {
		return
	}
	mb.Customer.Percent = mb.Customer.Content / total
	mb.Dorado.Percent = mb.Dorado.Content / total
	mb.Refiner.Percent = mb.Refiner.Content / total
}
