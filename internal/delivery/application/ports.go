package application

import (
	"context"

	accountdom "github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
	orderdom "github.com/bazarlink/bazarlink/internal/order/domain"
)

// OrderStore is the delivery-side view of persisted orders: the dispatch-pool
// queries plus the two transition writes partners perform.
type OrderStore interface {
	Get(ctx context.Context, id string) (orderdom.Order, error)
	// ByPartner returns every order held by the partner, newest first,
	// terminal states included.
	ByPartner(ctx context.Context, partnerID string) ([]orderdom.Order, error)
	// PendingByBazar matches unassigned pending delivery orders on bazar
	// name, case-insensitive, oldest first.
	PendingByBazar(ctx context.Context, bazar string) ([]orderdom.Order, error)
	// PendingNear returns unassigned pending delivery orders whose pickup
	// point lies within radiusMeters of the given point, nearest first.
	PendingNear(ctx context.Context, pt geo.Point, radiusMeters float64) ([]orderdom.Order, error)
	// PendingSample returns up to limit unassigned pending delivery orders
	// in no particular order.
	PendingSample(ctx context.Context, limit int) ([]orderdom.Order, error)
	// Assign atomically sets the partner on an order that has none yet,
	// staging the event in the same transaction. otp fills the passcode
	// only when the order has none.
	Assign(ctx context.Context, orderID, partnerID, otp string, eventType string, payload []byte, traceparent string) (orderdom.Order, error)
	// SetStatus moves the order from the observed status to the new one and
	// stages the event in one transaction. The from-status is a
	// compare-and-swap guard: a transition that lost a race fails with
	// ErrInvalidState instead of clobbering the winner.
	SetStatus(ctx context.Context, orderID string, from, to orderdom.Status, eventType string, payload []byte, traceparent string) error
}

// PartnerStatus flips a partner's availability on accept and on terminal
// transitions.
type PartnerStatus interface {
	SetAvailability(ctx context.Context, partnerID string, status accountdom.Availability) error
}
