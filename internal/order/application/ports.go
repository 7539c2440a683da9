package application

import (
	"context"

	accountdom "github.com/bazarlink/bazarlink/internal/account/domain"
	catalogdom "github.com/bazarlink/bazarlink/internal/catalog/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
	"github.com/bazarlink/bazarlink/internal/order/domain"
)

type OrderRepository interface {
	// CreateWithOutbox persists the order and stages the event in one
	// transaction.
	CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	ByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	// UpdateStatusWithOutbox moves the order from the observed status to the
	// new one and stages the event in one transaction. The from-status is a
	// compare-and-swap guard: a write that lost a race against another
	// transition fails with ErrInvalidState instead of clobbering it.
	UpdateStatusWithOutbox(ctx context.Context, id string, from, to domain.Status, eventType string, payload []byte, traceparent string) error
}

// StockLedger is the catalog's atomic stock surface. Reserve fails with the
// catalog's conflict error when the conditional decrement loses a race.
type StockLedger interface {
	Get(ctx context.Context, productID string) (catalogdom.Product, error)
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
}

// FarmerLocator resolves a farmer's last known position for pickup derivation.
type FarmerLocator interface {
	FarmerLocation(ctx context.Context, farmerID string) (*geo.Point, error)
}

// PartnerStatus flips a delivery partner's availability flag. The customer
// cancel path needs it so a partner holding a cancelled order is released.
type PartnerStatus interface {
	SetAvailability(ctx context.Context, partnerID string, status accountdom.Availability) error
}
