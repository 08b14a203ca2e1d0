package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/bagaspry/go-shop-orders/internal/domain"
)

// Publisher is the async producer surface the sink writes through.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaSink publishes stock-depletion alerts as versioned events on the
// stock.depleted topic. The relay consumer on the other side fans them
// out to connected push clients.
type KafkaSink struct {
	producer Publisher
	service  string
}

func NewKafkaSink(producer Publisher, service string) *KafkaSink {
	return &KafkaSink{producer: producer, service: service}
}

func (s *KafkaSink) NotifyOutOfStock(ctx context.Context, alert domain.StockAlert) error {
	payload, err := json.Marshal(StockDepletedPayload{
		ProductID:   alert.ProductID,
		SizeID:      alert.SizeID,
		SellerID:    alert.SellerID,
		StoreName:   alert.StoreName,
		ProductName: alert.ProductName,
		SizeName:    alert.SizeName,
		CartUserIDs: alert.CartUserIDs,
	})
	if err != nil {
		return fmt.Errorf("marshal stock alert: %w", err)
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventStockDepleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.service,
		CorrelationID: alert.ProductID,
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	s.producer.Publish(PartitionKey(alert.ProductID, alert.SizeID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(EventStockDepleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
