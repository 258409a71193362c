package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// PurchaseOrder represents one intake of customer material, from shipment
// through offer to payout. Version guards concurrent state-machine mutations:
// every update must match the version it read or the write is rejected.
type PurchaseOrder struct {
	bun.BaseModel `bun:"table:purchase_orders,alias:po"`

	ID        int64 `bun:",pk,autoincrement"`
	UserID    int64 `bun:"user_id"`
	AddressID int64 `bun:"address_id"`

	Status      PurchaseOrderStatus `bun:"status"`
	OfferStatus OfferStatus         `bun:"offer_status"`

	SpotsLocked bool       `bun:"spots_locked"`
	SentAt      *time.Time `bun:"sent_at"`
	ExpiresAt   *time.Time `bun:"expires_at"`

	TotalPrice *float64 `bun:"total_price"`
	OfferNotes string   `bun:"offer_notes"`

	PoolOzDeducted    float64 `bun:"pool_oz_deducted"`
	PoolRemediation   float64 `bun:"pool_remediation"`
	ShippingFeeActual float64 `bun:"shipping_fee_actual"`
	RefinerFee        float64 `bun:"refiner_fee"`

	PayoutMethod      string `bun:"payout_method"`
	PayoutDestination string `bun:"payout_destination"`

	Version   int64     `bun:"version"`
	CreatedBy string    `bun:"created_by"`
	UpdatedBy string    `bun:"updated_by"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`

	Items []*PurchaseOrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OfferActive reports whether the order carries an offer the customer can act on.
func (o *PurchaseOrder) OfferActive() bool {
	return o.Status == StatusOfferSent && o.OfferStatus == OfferSent
}

// ItemMetals returns the distinct metals present across the order's items.
func (o *PurchaseOrder) ItemMetals() []Metal {
	seen := make(map[Metal]bool, len(Metals))
	out := make([]Metal, 0, len(Metals))
	for _, item := range o.Items {
		if item == nil || seen[item.Metal] {
			continue
		}
		seen[item.Metal] = true
		out = append(out, item.Metal)
	}
	return out
}
