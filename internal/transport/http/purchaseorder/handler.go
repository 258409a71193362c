package purchaseorder

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtj60/dorado-exchange-sub003/internal/dto"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	"github.com/jtj60/dorado-exchange-sub003/internal/presentation/http/response"
	service "github.com/jtj60/dorado-exchange-sub003/internal/service/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/jtj60/dorado-exchange-sub003/transport/http/purchaseorder")

// actorHeader identifies the acting user for audit attribution. The excluded
// auth layer is expected to set it.
const actorHeader = "X-Actor"

// Handler exposes purchase order settlement endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a purchase order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/purchase-orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.GET("/:id/shipments", h.shipments)
	g.GET("/:id/metals", h.orderMetals)
	g.GET("/:id/refiner-metals", h.refinerMetals)
	g.POST("/:id/received", h.markReceived)
	g.POST("/:id/offer", h.sendOffer)
	g.POST("/:id/offer/accept", h.acceptOffer)
	g.POST("/:id/offer/reject", h.rejectOffer)
	g.POST("/:id/offer/resend", h.resendOffer)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/spots/lock", h.lockSpots)
	g.POST("/:id/spots/unlock", h.unlockSpots)
	g.POST("/:id/payment", h.startPayment)
	g.POST("/:id/payment/complete", h.completePayment)
	g.PATCH("/:id/shipping-fee", h.updateShippingFee)
	g.PATCH("/:id/refiner-fee", h.updateRefinerFee)
	g.PATCH("/:id/pool", h.updatePool)
	g.POST("/:id/items", h.addItem)
	g.PATCH("/:id/items/:itemID/actuals", h.enterActuals)
}

func actor(c echo.Context) string {
	if a := c.Request().Header.Get(actorHeader); a != "" {
		return a
	}
	return "api"
}

func orderID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

type createItemPayload struct {
	ItemType       entity.ItemType `json:"item_type"`
	Metal          entity.Metal    `json:"metal"`
	Content        float64         `json:"content"`
	Purity         float64         `json:"purity"`
	PostMelt       float64         `json:"post_melt"`
	BidPremium     *float64        `json:"bid_premium"`
	ProductID      *int64          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	ContentPerUnit float64         `json:"content_per_unit"`
	Premium        *float64        `json:"premium"`
	RefinerPremium *float64        `json:"refiner_premium"`
}

func (p createItemPayload) toEntity() *entity.PurchaseOrderItem {
	return &entity.PurchaseOrderItem{
		ItemType:       p.ItemType,
		Metal:          p.Metal,
		Content:        p.Content,
		Purity:         p.Purity,
		PostMelt:       p.PostMelt,
		BidPremium:     p.BidPremium,
		ProductID:      p.ProductID,
		Quantity:       p.Quantity,
		ContentPerUnit: p.ContentPerUnit,
		Premium:        p.Premium,
		RefinerPremium: p.RefinerPremium,
	}
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		UserID            int64               `json:"user_id"`
		AddressID         int64               `json:"address_id"`
		PayoutMethod      string              `json:"payout_method"`
		PayoutDestination string              `json:"payout_destination"`
		CarrierID         string              `json:"carrier_id"`
		Items             []createItemPayload `json:"items"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	items := make([]*entity.PurchaseOrderItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, item.toEntity())
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase_orders.create",
		trace.WithAttributes(attribute.Int64("order.user_id", payload.UserID)))
	defer span.End()

	order, err := h.svc.Create(ctx, service.CreateInput{
		UserID:            payload.UserID,
		AddressID:         payload.AddressID,
		PayoutMethod:      payload.PayoutMethod,
		PayoutDestination: payload.PayoutDestination,
		CarrierID:         payload.CarrierID,
		Items:             items,
	}, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	userID, err := strconv.ParseInt(c.QueryParam("user_id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("user_id query parameter is required")).Build()
	}

	orders, err := h.svc.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.PurchaseOrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, dto.FromPurchaseOrder(order))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase_orders.getByID",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) shipments(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}
	shipments, err := h.svc.Shipments(c.Request().Context(), id)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ShipmentResponse, 0, len(shipments))
	for _, s := range shipments {
		out = append(out, dto.FromShipment(s))
	}
	return b.WithData(out).Build()
}

func (h *Handler) orderMetals(c echo.Context) error {
	return h.metals(c, h.svc.OrderMetals, "purchase_orders.orderMetals")
}

func (h *Handler) refinerMetals(c echo.Context) error {
	return h.metals(c, h.svc.RefinerMetals, "purchase_orders.refinerMetals")
}

func (h *Handler) metals(c echo.Context, fetch func(ctx context.Context, id int64) (*service.MetalsReport, error), spanName string) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), spanName,
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	report, err := fetch(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(report).Build()
}

// mutate funnels the id-plus-actor operations through one shape.
func (h *Handler) mutate(c echo.Context, spanName string, op func(ctx context.Context, id int64, actor string) (*entity.PurchaseOrder, error)) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), spanName,
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := op(ctx, id, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) markReceived(c echo.Context) error {
	return h.mutate(c, "purchase_orders.markReceived", h.svc.MarkReceived)
}

func (h *Handler) sendOffer(c echo.Context) error {
	return h.mutate(c, "purchase_orders.sendOffer", h.svc.SendOffer)
}

func (h *Handler) acceptOffer(c echo.Context) error {
	return h.mutate(c, "purchase_orders.acceptOffer", h.svc.AcceptOffer)
}

func (h *Handler) rejectOffer(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		Notes string `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase_orders.rejectOffer",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.RejectOffer(ctx, id, payload.Notes, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) resendOffer(c echo.Context) error {
	return h.mutate(c, "purchase_orders.resendOffer", h.svc.ResendAfterRejection)
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		CarrierID string  `json:"carrier_id"`
		WeightOz  float64 `json:"weight_oz"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase_orders.cancel",
		trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.CancelOrder(ctx, id, service.CancelRequest{
		CarrierID: payload.CarrierID,
		WeightOz:  payload.WeightOz,
	}, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) lockSpots(c echo.Context) error {
	return h.mutate(c, "purchase_orders.lockSpots", h.svc.LockSpots)
}

func (h *Handler) unlockSpots(c echo.Context) error {
	return h.mutate(c, "purchase_orders.unlockSpots", h.svc.UnlockSpots)
}

func (h *Handler) startPayment(c echo.Context) error {
	return h.mutate(c, "purchase_orders.startPayment", h.svc.StartPayment)
}

func (h *Handler) completePayment(c echo.Context) error {
	return h.mutate(c, "purchase_orders.completePayment", h.svc.CompletePayment)
}

func (h *Handler) updateShippingFee(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		ShippingFeeActual float64 `json:"shipping_fee_actual"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	order, err := h.svc.UpdateShippingFee(c.Request().Context(), id, payload.ShippingFeeActual, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) updateRefinerFee(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		RefinerFee float64 `json:"refiner_fee"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	order, err := h.svc.UpdateRefinerFee(c.Request().Context(), id, payload.RefinerFee, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) updatePool(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		PoolOzDeducted  float64 `json:"pool_oz_deducted"`
		PoolRemediation float64 `json:"pool_remediation"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	order, err := h.svc.UpdatePoolAdjustments(c.Request().Context(), id, payload.PoolOzDeducted, payload.PoolRemediation, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrder(order)).Build()
}

func (h *Handler) addItem(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload createItemPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	item, err := h.svc.AddItem(c.Request().Context(), id, payload.toEntity(), actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromPurchaseOrderItem(item)).Build()
}

func (h *Handler) enterActuals(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}
	itemID, err := strconv.ParseInt(c.Param("itemID"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid item id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		ContentActual  *float64 `json:"content_actual"`
		PurityActual   *float64 `json:"purity_actual"`
		PostMeltActual *float64 `json:"post_melt_actual"`
		RefinerPremium *float64 `json:"refiner_premium"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	item, err := h.svc.EnterRefinerActuals(c.Request().Context(), id, itemID, service.RefinerActuals{
		ContentActual:  payload.ContentActual,
		PurityActual:   payload.PurityActual,
		PostMeltActual: payload.PostMeltActual,
		RefinerPremium: payload.RefinerPremium,
	}, actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromPurchaseOrderItem(item)).Build()
}
