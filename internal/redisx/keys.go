package redisx

import "time"

const (
	// Order status cache: order:status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order:status:%s"

	// Consumer dedup: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
