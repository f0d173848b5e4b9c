package audit

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-order-catalog/internal/kafka"
	"github.com/ariefcatur/go-order-catalog/internal/orders"
	"github.com/ariefcatur/go-order-catalog/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Service writes one audit log line per order change event. Redelivered
// events are recognised by event id and skipped.
type Service struct {
	Redis       redis.Cmdable
	Log         *zap.Logger
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler. Undecodable messages
// are logged and acknowledged since a retry cannot fix them.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Error("skip undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	fields := []zap.Field{
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("trace_id", env.TraceID),
		zap.Time("occurred_at", env.OccurredAt),
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderUpdated:
		p, err := kafkax.UnwrapPayload[orders.OrderChangedPayload](env.Payload)
		if err != nil {
			s.Log.Error("skip event", append(fields, zap.Error(err))...)
			return nil
		}
		fields = append(fields,
			zap.Int64("order_id", p.OrderID),
			zap.String("description", p.Description),
			zap.Int64s("product_ids", p.ProductIDs))
	case orders.EventOrderDeleted:
		p, err := kafkax.UnwrapPayload[orders.OrderDeletedPayload](env.Payload)
		if err != nil {
			s.Log.Error("skip event", append(fields, zap.Error(err))...)
			return nil
		}
		fields = append(fields, zap.Int64("order_id", p.OrderID))
	default:
		return nil
	}

	first, err := redisx.MarkOnce(ctx, s.Redis, fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID), redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		s.Log.Debug("duplicate event", fields...)
		return nil
	}
	s.Log.Info("order changed", fields...)
	return nil
}
