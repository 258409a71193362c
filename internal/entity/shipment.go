package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// ShipmentDirection distinguishes intake shipments from returns.
type ShipmentDirection string

const (
	ShipmentInbound ShipmentDirection = "Inbound"
	ShipmentReturn  ShipmentDirection = "Return"
)

// ShipmentStatus tracks the two-phase label write: rows are committed Pending
// first, then updated to LabelCreated once the carrier call succeeds.
type ShipmentStatus string

const (
	ShipmentPending      ShipmentStatus = "Pending"
	ShipmentLabelCreated ShipmentStatus = "Label Created"
	ShipmentInTransit    ShipmentStatus = "In Transit"
	ShipmentDelivered    ShipmentStatus = "Delivered"
)

// Shipment is one physical movement of material, owned by a purchase order.
// Tracking fields are set from the carrier response and never recomputed here.
type Shipment struct {
	bun.BaseModel `bun:"table:shipments,alias:sh"`

	ID        int64             `bun:",pk,autoincrement"`
	OrderID   int64             `bun:"order_id"`
	Direction ShipmentDirection `bun:"direction"`
	Status    ShipmentStatus    `bun:"status"`

	CarrierID          string  `bun:"carrier_id"`
	TrackingNumber     string  `bun:"tracking_number"`
	LabelFile          string  `bun:"label_file"`
	NetCharge          float64 `bun:"net_charge"`
	PickupConfirmation string  `bun:"pickup_confirmation"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
