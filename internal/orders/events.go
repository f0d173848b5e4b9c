package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderUpdated = "OrderUpdated"
	EventOrderDeleted = "OrderDeleted"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OrderChangedPayload is carried by OrderCreated and OrderUpdated. ProductIDs
// is the complete product set after the change.
type OrderChangedPayload struct {
	OrderID     int64     `json:"order_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	ProductIDs  []int64   `json:"product_ids"`
}

type OrderDeletedPayload struct {
	OrderID int64 `json:"order_id"`
}
