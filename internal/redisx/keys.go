package redisx

import "time"

const (
	// Write generation of an order: order:ver:{order_id} -> int
	KeyOrderVersion = "order:ver:%d"

	// Cached order detail at one generation: order:detail:{order_id}:{ver} -> OrderDetail JSON
	KeyOrderDetail = "order:detail:%d:%d"

	// Processed event marker: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderDetail = 5 * time.Minute
	// Must outlive TTLOrderDetail so an expired generation never resurrects an old entry.
	TTLOrderVersion = 24 * time.Hour
	TTLDedup        = 48 * time.Hour
)
