package notify

import (
	"encoding/json"
	"time"
)

const (
	EventStockDepleted = "StockDepleted"

	TopicStockDepleted = "stock.depleted"
)

// Envelope is the versioned wrapper shared by every event this service
// publishes.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type StockDepletedPayload struct {
	ProductID   string   `json:"product_id"`
	SizeID      string   `json:"size_id"`
	SellerID    string   `json:"seller_id"`
	StoreName   string   `json:"store_name"`
	ProductName string   `json:"product_name"`
	SizeName    string   `json:"size_name"`
	CartUserIDs []string `json:"cart_user_ids,omitempty"`
}

// PartitionKey keeps all events for one product/size on one partition so
// consumers see them in order.
func PartitionKey(productID, sizeID string) []byte {
	return []byte(productID + ":" + sizeID)
}
