package purchaseorder

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtj60/dorado-exchange-sub003/internal/database"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
)

var repoTracer = otel.Tracer("github.com/jtj60/dorado-exchange-sub003/repository/purchaseorder")

// ErrNotFound is returned when a purchase order or item is missing.
var ErrNotFound = errors.New("purchase order not found")

// ErrVersionConflict is returned when an update loses an optimistic-lock race:
// the row's version moved between read and write.
var ErrVersionConflict = errors.New("purchase order version conflict")

// Store is the persistence surface the settlement engine runs against. All
// multi-table mutations go through Transact so order, item, snapshot, and
// shipment writes commit together or not at all.
type Store interface {
	Transact(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	CreateOrder(ctx context.Context, order *entity.PurchaseOrder) error
	GetOrder(ctx context.Context, id int64) (*entity.PurchaseOrder, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*entity.PurchaseOrder, error)
	UpdateOrder(ctx context.Context, order *entity.PurchaseOrder) error
	ListExpiredOffers(ctx context.Context, now time.Time) ([]*entity.PurchaseOrder, error)

	CreateItem(ctx context.Context, item *entity.PurchaseOrderItem) error
	UpdateItem(ctx context.Context, item *entity.PurchaseOrderItem) error
	GetItem(ctx context.Context, id int64) (*entity.PurchaseOrderItem, error)
	ClearItemPricing(ctx context.Context, orderID int64) error

	OrderSpots(ctx context.Context, orderID int64) ([]*entity.OrderSpot, error)
	ReplaceOrderSpots(ctx context.Context, orderID int64, spots []*entity.OrderSpot) error
	ClearOrderSpots(ctx context.Context, orderID int64) error
	RefinerSpots(ctx context.Context, orderID int64) ([]*entity.RefinerSpot, error)
	ReplaceRefinerSpots(ctx context.Context, orderID int64, spots []*entity.RefinerSpot) error
	ClearRefinerSpots(ctx context.Context, orderID int64) error

	CreateShipment(ctx context.Context, shipment *entity.Shipment) error
	UpdateShipment(ctx context.Context, shipment *entity.Shipment) error
	Shipments(ctx context.Context, orderID int64) ([]*entity.Shipment, error)
}

// Repository is the bun-backed Store. Reads prefer the reader connection;
// inside Transact both sides are bound to the transaction.
type Repository struct {
	db     *bun.DB
	writer bun.IDB
	reader bun.IDB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		db:     conns.Writer,
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Transact runs fn inside a single database transaction. The Store handed to
// fn is bound to that transaction for every read and write.
func (r *Repository) Transact(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	ctx, span := repoTracer.Start(ctx, "PurchaseOrderRepository.Transact")
	defer span.End()

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		bound := &Repository{db: r.db, writer: tx, reader: tx}
		return fn(ctx, bound)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
	}
	return err
}

// CreateOrder persists a new order together with its items.
func (r *Repository) CreateOrder(ctx context.Context, order *entity.PurchaseOrder) error {
	if order == nil {
		return errors.New("nil purchase order")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseOrderRepository.CreateOrder",
		trace.WithAttributes(attribute.Int64("order.user_id", order.UserID)))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(order).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert order failed")
		return err
	}
	for _, item := range order.Items {
		item.OrderID = order.ID
		if _, err := r.writer.NewInsert().Model(item).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert item failed")
			return err
		}
	}
	return nil
}

// GetOrder fetches an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseOrderRepository.GetOrder",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.PurchaseOrder)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Where("po.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// ListOrdersByUser fetches all orders owned by a user, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID int64) ([]*entity.PurchaseOrder, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseOrderRepository.ListOrdersByUser",
		trace.WithAttributes(attribute.Int64("order.user_id", userID)))
	defer span.End()

	var orders []*entity.PurchaseOrder
	err := r.reader.NewSelect().Model(&orders).
		Relation("Items").
		Where("po.user_id = ?", userID).
		Order("po.created_at DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// UpdateOrder writes an order back with an optimistic version guard. The
// version the caller read must still be current or ErrVersionConflict is
// returned and nothing is written.
func (r *Repository) UpdateOrder(ctx context.Context, order *entity.PurchaseOrder) error {
	if order == nil {
		return errors.New("nil purchase order")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseOrderRepository.UpdateOrder",
		trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	prev := order.Version
	order.Version = prev + 1
	order.UpdatedAt = time.Now().UTC()

	res, err := r.writer.NewUpdate().Model(order).
		WherePK().
		Where("version = ?", prev).
		Exec(ctx)
	if err != nil {
		order.Version = prev
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		order.Version = prev
		return err
	}
	if affected == 0 {
		order.Version = prev
		exists, err := r.writer.NewSelect().Model((*entity.PurchaseOrder)(nil)).
			Where("id = ?", order.ID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			span.SetStatus(codes.Error, "not found")
			return ErrNotFound
		}
		span.SetStatus(codes.Error, "version conflict")
		return ErrVersionConflict
	}
	return nil
}

// ListExpiredOffers returns all orders whose sent offer lapsed before now.
func (r *Repository) ListExpiredOffers(ctx context.Context, now time.Time) ([]*entity.PurchaseOrder, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseOrderRepository.ListExpiredOffers")
	defer span.End()

	var orders []*entity.PurchaseOrder
	err := r.reader.NewSelect().Model(&orders).
		Relation("Items").
		Where("po.offer_status = ?", entity.OfferSent).
		Where("po.expires_at IS NOT NULL").
		Where("po.expires_at < ?", now).
		Order("po.expires_at ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// CreateItem adds a line item to an existing order.
func (r *Repository) CreateItem(ctx context.Context, item *entity.PurchaseOrderItem) error {
	if item == nil {
		return errors.New("nil purchase order item")
	}
	_, err := r.writer.NewInsert().Model(item).Exec(ctx)
	return err
}

// UpdateItem writes a line item back by primary key.
func (r *Repository) UpdateItem(ctx context.Context, item *entity.PurchaseOrderItem) error {
	if item == nil {
		return errors.New("nil purchase order item")
	}
	item.UpdatedAt = time.Now().UTC()
	res, err := r.writer.NewUpdate().Model(item).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetItem fetches a single line item.
func (r *Repository) GetItem(ctx context.Context, id int64) (*entity.PurchaseOrderItem, error) {
	item := new(entity.PurchaseOrderItem)
	err := r.reader.NewSelect().Model(item).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ClearItemPricing nulls the computed price on every item of an order.
func (r *Repository) ClearItemPricing(ctx context.Context, orderID int64) error {
	_, err := r.writer.NewUpdate().Model((*entity.PurchaseOrderItem)(nil)).
		Set("price = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	return err
}

// OrderSpots returns the frozen customer-facing snapshot rows for an order.
func (r *Repository) OrderSpots(ctx context.Context, orderID int64) ([]*entity.OrderSpot, error) {
	var spots []*entity.OrderSpot
	err := r.reader.NewSelect().Model(&spots).Where("order_id = ?", orderID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return spots, nil
}

// ReplaceOrderSpots swaps the order snapshot for a fresh capture.
func (r *Repository) ReplaceOrderSpots(ctx context.Context, orderID int64, spots []*entity.OrderSpot) error {
	if err := r.ClearOrderSpots(ctx, orderID); err != nil {
		return err
	}
	for _, spot := range spots {
		spot.OrderID = orderID
		if _, err := r.writer.NewInsert().Model(spot).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ClearOrderSpots removes every order snapshot row for an order.
func (r *Repository) ClearOrderSpots(ctx context.Context, orderID int64) error {
	_, err := r.writer.NewDelete().Model((*entity.OrderSpot)(nil)).
		Where("order_id = ?", orderID).
		Exec(ctx)
	return err
}

// RefinerSpots returns the frozen settlement snapshot rows for an order.
func (r *Repository) RefinerSpots(ctx context.Context, orderID int64) ([]*entity.RefinerSpot, error) {
	var spots []*entity.RefinerSpot
	err := r.reader.NewSelect().Model(&spots).Where("order_id = ?", orderID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return spots, nil
}

// ReplaceRefinerSpots swaps the refiner snapshot for a fresh capture.
func (r *Repository) ReplaceRefinerSpots(ctx context.Context, orderID int64, spots []*entity.RefinerSpot) error {
	if err := r.ClearRefinerSpots(ctx, orderID); err != nil {
		return err
	}
	for _, spot := range spots {
		spot.OrderID = orderID
		if _, err := r.writer.NewInsert().Model(spot).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ClearRefinerSpots removes every refiner snapshot row for an order.
func (r *Repository) ClearRefinerSpots(ctx context.Context, orderID int64) error {
	_, err := r.writer.NewDelete().Model((*entity.RefinerSpot)(nil)).
		Where("order_id = ?", orderID).
		Exec(ctx)
	return err
}

// CreateShipment persists a shipment row.
func (r *Repository) CreateShipment(ctx context.Context, shipment *entity.Shipment) error {
	if shipment == nil {
		return errors.New("nil shipment")
	}
	_, err := r.writer.NewInsert().Model(shipment).Exec(ctx)
	return err
}

// UpdateShipment writes carrier results onto an existing shipment row.
func (r *Repository) UpdateShipment(ctx context.Context, shipment *entity.Shipment) error {
	if shipment == nil {
		return errors.New("nil shipment")
	}
	shipment.UpdatedAt = time.Now().UTC()
	res, err := r.writer.NewUpdate().Model(shipment).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Shipments returns every shipment attached to an order.
func (r *Repository) Shipments(ctx context.Context, orderID int64) ([]*entity.Shipment, error) {
	var shipments []*entity.Shipment
	err := r.reader.NewSelect().Model(&shipments).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return shipments, nil
}
