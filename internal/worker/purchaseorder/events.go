package purchaseorder

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/config"
	"github.com/jtj60/dorado-exchange-sub003/internal/messaging"
	posvc "github.com/jtj60/dorado-exchange-sub003/internal/service/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/internal/worker"
)

var workerTracer = otel.Tracer("github.com/jtj60/dorado-exchange-sub003/worker/purchaseorder")

// Module registers purchase-order worker handlers.
var Module = fx.Module("worker_purchaseorder",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEventHandler processes the notification stream: order-created and
// offer-accepted events feed customer notifications. Delivery is best-effort;
// a malformed payload is surfaced so the message is retried, everything else
// is logged and committed.
func NewEventHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.purchase_orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event posvc.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode purchase order event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		switch event.Type {
		case posvc.EventOrderCreated:
			logger.Info("purchase order created",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("user_id", event.UserID),
				zap.String("status", string(event.Status)),
			)
		case posvc.EventOfferAccepted:
			fields := []zap.Field{
				zap.Int64("order_id", event.OrderID),
				zap.Int64("user_id", event.UserID),
			}
			if event.TotalPrice != nil {
				fields = append(fields, zap.Float64("total_price", *event.TotalPrice))
			}
			logger.Info("offer accepted", fields...)
		default:
			logger.Warn("unknown purchase order event type", zap.String("type", event.Type))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
