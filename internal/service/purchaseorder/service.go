// Package purchaseorder implements the settlement engine: the purchase order
// state machine, offer lifecycle, spot locking, and the expiration sweep.
// Every multi-table mutation runs inside a single store transaction.
package purchaseorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/allocation"
	"github.com/jtj60/dorado-exchange-sub003/internal/cache"
	"github.com/jtj60/dorado-exchange-sub003/internal/carrier"
	"github.com/jtj60/dorado-exchange-sub003/internal/config"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	"github.com/jtj60/dorado-exchange-sub003/internal/messaging"
	repo "github.com/jtj60/dorado-exchange-sub003/internal/repository/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/internal/spot"
	"github.com/jtj60/dorado-exchange-sub003/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/jtj60/dorado-exchange-sub003/service/purchaseorder")

// SchedulerActor is the audit attribution used for sweeper-driven mutations.
const SchedulerActor = "scheduler"

// Event types published to the notification bus.
const (
	EventOrderCreated  = "purchase_order.created"
	EventOfferAccepted = "offer.accepted"
)

// Service owns the purchase order state machine.
type Service struct {
	store     repo.Store
	spots     spot.Source
	carrier   carrier.Client
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	offers    config.Offers
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     repo.Store
	Spots     spot.Source
	Carrier   carrier.Client
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		spots:     p.Spots,
		carrier:   p.Carrier,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		offers:    p.Config.Offers,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// CreateInput describes a new intake of customer material.
type CreateInput struct {
	UserID            int64
	AddressID         int64
	PayoutMethod      string
	PayoutDestination string
	CarrierID         string
	Items             []*entity.PurchaseOrderItem
}

// Create opens a purchase order in transit, attaches its items, and books the
// inbound shipment. The shipment row commits as Pending; the carrier label is
// purchased after the transaction so a slow carrier cannot hold locks.
func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (*entity.PurchaseOrder, error) {
	if in.UserID == 0 {
		return nil, errorbank.BadRequest("user id is required")
	}
	if len(in.Items) == 0 {
		return nil, errorbank.BadRequest("at least one item is required")
	}
	for _, item := range in.Items {
		if !item.Metal.Valid() {
			return nil, errorbank.BadRequest(fmt.Sprintf("unsupported metal %q", item.Metal))
		}
	}
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.Create",
		trace.WithAttributes(attribute.Int64("order.user_id", in.UserID)))
	defer span.End()

	now := time.Now().UTC()
	order := &entity.PurchaseOrder{
		UserID:            in.UserID,
		AddressID:         in.AddressID,
		Status:            entity.StatusInTransit,
		OfferStatus:       "",
		PayoutMethod:      in.PayoutMethod,
		PayoutDestination: in.PayoutDestination,
		CreatedBy:         actor,
		UpdatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
		Items:             in.Items,
	}

	var shipment *entity.Shipment
	err := s.store.Transact(ctx, func(ctx context.Context, tx repo.Store) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		shipment = &entity.Shipment{
			OrderID:   order.ID,
			Direction: entity.ShipmentInbound,
			Status:    entity.ShipmentPending,
			CarrierID: in.CarrierID,
			CreatedAt: now,
		}
		return tx.CreateShipment(ctx, shipment)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		return nil, errorbank.Internal("failed to create purchase order", errorbank.WithCause(err))
	}

	if err := s.attachLabel(ctx, shipment, carrier.LabelRequest{
		CarrierID: in.CarrierID,
		OrderID:   order.ID,
		AddressID: in.AddressID,
		Reference: fmt.Sprintf("PO-%d", order.ID),
	}); err != nil {
		// The order and pending shipment are already committed; surface the
		// carrier failure without undoing intake.
		return order, errorbank.FailedDependency("carrier label purchase failed", errorbank.WithCause(err))
	}

	s.publish(ctx, EventOrderCreated, order)
	return order, nil
}

// Get retrieves a purchase order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.Get",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("purchase order cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("purchase order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load purchase order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("purchase order cache write failed", zap.Int64("id", id), zap.Error(err))
	}
	return order, nil
}

// ListByUser returns every purchase order owned by a user.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*entity.PurchaseOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseOrderService.ListByUser",
		trace.WithAttributes(attribute.Int64("order.user_id", userID)))
	defer span.End()

	orders, err := s.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list purchase orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Shipments returns the shipments attached to an order.
func (s *Service) Shipments(ctx context.Context, orderID int64) ([]*entity.Shipment, error) {
	shipments, err := s.store.Shipments(ctx, orderID)
	if err != nil {
		return nil, errorbank.Internal("failed to list shipments", errorbank.WithCause(err))
	}
	return shipments, nil
}

// attachLabel purchases a carrier label and writes the result in a second,
// separate transaction, leaving the shipment Pending when the carrier fails.
func (s *Service) attachLabel(ctx context.Context, shipment *entity.Shipment, req carrier.LabelRequest) error {
	label, err := s.carrier.CreateLabel(ctx, req)
	if err != nil {
		s.logger.Error("carrier label purchase failed",
			zap.Int64("order_id", shipment.OrderID),
			zap.String("direction", string(shipment.Direction)),
			zap.Error(err))
		return err
	}

	shipment.TrackingNumber = label.TrackingNumber
	shipment.LabelFile = label.LabelFile
	shipment.NetCharge = label.NetCharge
	shipment.Status = entity.ShipmentLabelCreated
	if err := s.store.UpdateShipment(ctx, shipment); err != nil {
		s.logger.Error("failed to attach label to shipment",
			zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		return err
	}
	return nil
}

// mapStoreErr converts repository sentinels to the caller-facing taxonomy.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("purchase order not found")
	case errors.Is(err, repo.ErrVersionConflict):
		return errorbank.Conflict("purchase order was modified concurrently")
	case errors.Is(err, allocation.ErrNegativePremium):
		return errorbank.Unprocessable("allocation failed", errorbank.WithCause(err))
	default:
		var appErr *errorbank.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return errorbank.Internal("purchase order operation failed", errorbank.WithCause(err))
	}
}

func invalidTransition(format string, args ...any) error {
	return errorbank.Unprocessable(fmt.Sprintf(format, args...))
}

// Event is the payload published to the notification bus. Consumers are
// fire-and-forget; publish failures are logged and never propagated.
type Event struct {
	Type        string                     `json:"type"`
	OrderID     int64                      `json:"order_id"`
	UserID      int64                      `json:"user_id"`
	Status      entity.PurchaseOrderStatus `json:"status"`
	OfferStatus entity.OfferStatus         `json:"offer_status"`
	TotalPrice  *float64                   `json:"total_price,omitempty"`
	At          time.Time                  `json:"at"`
}

func (s *Service) publish(ctx context.Context, eventType string, order *entity.PurchaseOrder) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := Event{
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		OfferStatus: order.OfferStatus,
		TotalPrice:  order.TotalPrice,
		At:          time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal purchase order event", zap.Error(err))
		return
	}
	key := []byte(fmt.Sprintf("purchase-order-%d", order.ID))
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		s.logger.Error("publish purchase order event",
			zap.String("type", eventType), zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("purchase_orders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.PurchaseOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.PurchaseOrder) error {
	if s.cache == nil || order == nil {
		return nil
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), raw, s.cacheTTL)
}

func (s *Service) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("purchase order cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}
