package domain

import "time"

type Product struct {
	ID         string
	StoreID    string
	Name       string
	PriceCents int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProductStock is the catalog view of one product/size pair: pricing,
// discount window and available quantity.
type ProductStock struct {
	ProductID        string
	SizeID           string
	PriceCents       int
	DiscountCents    int
	DiscountStartsAt *time.Time
	DiscountEndsAt   *time.Time
	Quantity         int
}

// EffectivePriceCents returns the unit price at the given instant. The
// discounted price applies only while the discount window is open.
func (p ProductStock) EffectivePriceCents(now time.Time) int {
	if p.DiscountCents > 0 && p.DiscountStartsAt != nil && p.DiscountEndsAt != nil &&
		!now.Before(*p.DiscountStartsAt) && !now.After(*p.DiscountEndsAt) {
		return p.DiscountCents
	}
	return p.PriceCents
}
