package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/bagaspry/go-shop-orders/internal/redisx"
)

// Relay turns consumed stock.depleted events into push deliveries via
// the hub. Dedup by event id keeps redelivered messages from pinging
// users twice.
type Relay struct {
	Hub   *Hub
	Redis *redis.Client
	Log   *slog.Logger
}

// HandleMessage is mounted as the consumer handler for the
// stock.depleted topic.
func (r *Relay) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != EventStockDepleted {
		return nil
	}

	if r.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
		fresh, err := r.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
		if err != nil {
			r.Log.Warn("dedup check failed", "event_id", env.EventID, "err", err)
		} else if !fresh {
			return nil
		}
	}

	var p StockDepletedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	ev := Event{Type: "stock_depleted", Data: data}

	delivered := 0
	if r.Hub.SendIfPresent(p.SellerID, ev) {
		delivered++
	}
	for _, userID := range p.CartUserIDs {
		if r.Hub.SendIfPresent(userID, ev) {
			delivered++
		}
	}
	r.Log.Info("stock alert relayed",
		"product_id", p.ProductID, "size_id", p.SizeID, "delivered", delivered)
	return nil
}
