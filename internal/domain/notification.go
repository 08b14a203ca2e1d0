package domain

// StockAlert describes a product/size whose stock just hit zero. It is
// delivered to the owning seller and to every buyer currently holding
// the item in their cart.
type StockAlert struct {
	ProductID   string
	SizeID      string
	SellerID    string
	StoreName   string
	ProductName string
	SizeName    string
	CartUserIDs []string
}
