package domain

import "errors"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrSizeNotFound        = errors.New("size not found")
	ErrBuyerNotFound       = errors.New("buyer not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNoItems             = errors.New("order has no items")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidPoints       = errors.New("invalid points")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrForbidden           = errors.New("forbidden")
	ErrOrderNotCancellable = errors.New("order not cancellable")
	ErrInvalidID           = errors.New("invalid id")
)
