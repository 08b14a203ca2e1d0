package domain

import "time"

type Order struct {
	ID            string
	BuyerID       string
	RecipientName string
	Phone         string
	Address       string
	Status        Status
	TotalCents    int
	UsedPoints    int
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem carries the unit price as it was at purchase time. Later
// catalog price changes never touch it.
type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	SizeID     string
	PriceCents int
	Qty        int
	Reviewed   bool
}
