package dto

import (
	"time"

	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
)

// PurchaseOrderResponse represents a purchase order as exposed via transport layers.
type PurchaseOrderResponse struct {
	ID                int64                       `json:"id"`
	UserID            int64                       `json:"user_id"`
	AddressID         int64                       `json:"address_id"`
	Status            entity.PurchaseOrderStatus  `json:"status"`
	OfferStatus       entity.OfferStatus          `json:"offer_status"`
	SpotsLocked       bool                        `json:"spots_locked"`
	SentAt            *time.Time                  `json:"sent_at,omitempty"`
	ExpiresAt         *time.Time                  `json:"expires_at,omitempty"`
	TotalPrice        *float64                    `json:"total_price,omitempty"`
	OfferNotes        string                      `json:"offer_notes,omitempty"`
	PoolOzDeducted    float64                     `json:"pool_oz_deducted"`
	PoolRemediation   float64                     `json:"pool_remediation"`
	ShippingFeeActual float64                     `json:"shipping_fee_actual"`
	RefinerFee        float64                     `json:"refiner_fee"`
	PayoutMethod      string                      `json:"payout_method"`
	PayoutDestination string                      `json:"payout_destination"`
	Items             []PurchaseOrderItemResponse `json:"items"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// PurchaseOrderItemResponse represents a line item on a purchase order.
type PurchaseOrderItemResponse struct {
	ID             int64           `json:"id"`
	ItemType       entity.ItemType `json:"item_type"`
	Metal          entity.Metal    `json:"metal"`
	Content        float64         `json:"content,omitempty"`
	Purity         float64         `json:"purity,omitempty"`
	PurityActual   *float64        `json:"purity_actual,omitempty"`
	PostMelt       float64         `json:"post_melt,omitempty"`
	PostMeltActual *float64        `json:"post_melt_actual,omitempty"`
	ContentActual  *float64        `json:"content_actual,omitempty"`
	BidPremium     *float64        `json:"bid_premium,omitempty"`
	ProductID      *int64          `json:"product_id,omitempty"`
	Quantity       int             `json:"quantity,omitempty"`
	ContentPerUnit float64         `json:"content_per_unit,omitempty"`
	Price          *float64        `json:"price,omitempty"`
	Premium        *float64        `json:"premium,omitempty"`
	RefinerPremium *float64        `json:"refiner_premium,omitempty"`
}

// ShipmentResponse represents a shipment attached to a purchase order.
type ShipmentResponse struct {
	ID             int64                    `json:"id"`
	Direction      entity.ShipmentDirection `json:"direction"`
	Status         entity.ShipmentStatus    `json:"status"`
	CarrierID      string                   `json:"carrier_id"`
	TrackingNumber string                   `json:"tracking_number,omitempty"`
	NetCharge      float64                  `json:"net_charge"`
	CreatedAt      time.Time                `json:"created_at"`
}

// FromPurchaseOrder maps an entity to its transport representation.
func FromPurchaseOrder(order *entity.PurchaseOrder) PurchaseOrderResponse {
	resp := PurchaseOrderResponse{
		ID:                order.ID,
		UserID:            order.UserID,
		AddressID:         order.AddressID,
		Status:            order.Status,
		OfferStatus:       order.OfferStatus,
		SpotsLocked:       order.SpotsLocked,
		SentAt:            order.SentAt,
		ExpiresAt:         order.ExpiresAt,
		TotalPrice:        order.TotalPrice,
		OfferNotes:        order.OfferNotes,
		PoolOzDeducted:    order.PoolOzDeducted,
		PoolRemediation:   order.PoolRemediation,
		ShippingFeeActual: order.ShippingFeeActual,
		RefinerFee:        order.RefinerFee,
		PayoutMethod:      order.PayoutMethod,
		PayoutDestination: order.PayoutDestination,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	resp.Items = make([]PurchaseOrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		resp.Items = append(resp.Items, FromPurchaseOrderItem(item))
	}
	return resp
}

// FromPurchaseOrderItem maps an item entity to its transport representation.
func FromPurchaseOrderItem(item *entity.PurchaseOrderItem) PurchaseOrderItemResponse {
	return PurchaseOrderItemResponse{
		ID:             item.ID,
		ItemType:       item.ItemType,
		Metal:          item.Metal,
		Content:        item.Content,
		Purity:         item.Purity,
		PurityActual:   item.PurityActual,
		PostMelt:       item.PostMelt,
		PostMeltActual: item.PostMeltActual,
		ContentActual:  item.ContentActual,
		BidPremium:     item.BidPremium,
		ProductID:      item.ProductID,
		Quantity:       item.Quantity,
		ContentPerUnit: item.ContentPerUnit,
		Price:          item.Price,
		Premium:        item.Premium,
		RefinerPremium: item.RefinerPremium,
	}
}

// FromShipment maps a shipment entity to its transport representation.
func FromShipment(s *entity.Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:             s.ID,
		Direction:      s.Direction,
		Status:         s.Status,
		CarrierID:      s.CarrierID,
		TrackingNumber: s.TrackingNumber,
		NetCharge:      s.NetCharge,
		CreatedAt:      s.CreatedAt,
	}
}
