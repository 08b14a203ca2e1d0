package domain

// Status is the order lifecycle state. Only the transition
// AWAITING_PAYMENT -> CANCELLED is performed by this service; the
// fulfillment states are owned by the payment/shipping services and are
// carried here as opaque values.
type Status string

const (
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPreparing       Status = "PREPARING"
	StatusShipped         Status = "SHIPPED"
	StatusDelivered       Status = "DELIVERED"
	StatusCancelled       Status = "CANCELLED"
)

// Cancellable reports whether a buyer may still cancel an order in this
// state.
func (s Status) Cancellable() bool {
	return s == StatusAwaitingPayment
}

func (s Status) Valid() bool {
	switch s {
	case StatusAwaitingPayment, StatusPreparing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
