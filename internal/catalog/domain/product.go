package domain

import (
	"errors"
	"time"
)

// Product is a sellable unit of produce offered by a farmer at one bazar.
// Stock never goes negative: every decrement is an atomic conditional update.
type Product struct {
	ID              string
	Name            string
	Category        string
	Price           int64
	Stock           int
	ItemUnit        string
	FarmerID        string
	Bazar           string
	Image           string
	Savings         int64
	CompetitorPrice int64
	UpdatedAt       time.Time
}

var (
	ErrNotFound      = errors.New("product not found")
	ErrOutOfStock    = errors.New("insufficient stock")
	ErrStockConflict = errors.New("stock changed concurrently")
	ErrInvalidInput  = errors.New("invalid product input")
)
