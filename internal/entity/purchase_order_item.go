package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// ItemType discriminates the two purchase order item variants.
type ItemType string

const (
	ItemTypeScrap   ItemType = "scrap"
	ItemTypeProduct ItemType = "product"
)

// PurchaseOrderItem is a line item on a purchase order. The row is polymorphic
// over ItemType; use Scrap or Product to obtain the typed variant. Actual-value
// fields are filled only by admin entry of refiner-reported measurements.
type PurchaseOrderItem struct {
	bun.BaseModel `bun:"table:purchase_order_items,alias:poi"`

	ID       int64    `bun:",pk,autoincrement"`
	OrderID  int64    `bun:"order_id"`
	ItemType ItemType `bun:"item_type"`
	Metal    Metal    `bun:"metal"`

	// Scrap fields.
	Content        float64  `bun:"content"`
	Purity         float64  `bun:"purity"`
	PurityActual   *float64 `bun:"purity_actual"`
	PostMelt       float64  `bun:"post_melt"`
	PostMeltActual *float64 `bun:"post_melt_actual"`
	ContentActual  *float64 `bun:"content_actual"`
	BidPremium     *float64 `bun:"bid_premium"`

	// Product fields.
	ProductID      *int64  `bun:"product_id"`
	Quantity       int     `bun:"quantity"`
	ContentPerUnit float64 `bun:"content_per_unit"`

	// Pricing fields, cleared on every (re)send and repopulated at acceptance.
	Price          *float64 `bun:"price"`
	Premium        *float64 `bun:"premium"`
	RefinerPremium *float64 `bun:"refiner_premium"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// ScrapSpec is the scrap variant of a purchase order item.
type ScrapSpec struct {
	Metal          Metal
	Content        float64
	Purity         float64
	PurityActual   *float64
	PostMelt       float64
	PostMeltActual *float64
	ContentActual  *float64
	BidPremium     *float64
}

// ProductSpec is the bullion-product variant of a purchase order item.
type ProductSpec struct {
	Metal          Metal
	ProductID      int64
	Quantity       int
	ContentPerUnit float64
}

// Scrap returns the scrap variant when the item is scrap.
func (i *PurchaseOrderItem) Scrap() (ScrapSpec, bool) {
	if i.ItemType != ItemTypeScrap {
		return ScrapSpec{}, false
	}
	return ScrapSpec{
		Metal:          i.Metal,
		Content:        i.Content,
		Purity:         i.Purity,
		PurityActual:   i.PurityActual,
		PostMelt:       i.PostMelt,
		PostMeltActual: i.PostMeltActual,
		ContentActual:  i.ContentActual,
		BidPremium:     i.BidPremium,
	}, true
}

// Product returns the product variant when the item is a bullion product.
func (i *PurchaseOrderItem) Product() (ProductSpec, bool) {
	if i.ItemType != ItemTypeProduct {
		return ProductSpec{}, false
	}
	var productID int64
	if i.ProductID != nil {
		productID = *i.ProductID
	}
	return ProductSpec{
		Metal:          i.Metal,
		ProductID:      productID,
		Quantity:       i.Quantity,
		ContentPerUnit: i.ContentPerUnit,
	}, true
}

// ClearPricing drops computed pricing so a fresh offer can be extended.
// Refiner actuals are untouched; they belong to the refiner, not the offer.
func (i *PurchaseOrderItem) ClearPricing() {
	i.Price = nil
}
