package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bazarlink/bazarlink/internal/geo"
)

type Status string

const (
	// StatusPlaced is the resting state of pickup orders; they have no
	// delivery workflow.
	StatusPlaced Status = "Placed"
	// StatusPendingAssignment marks delivery orders waiting for a partner
	// to claim them (pull model, nothing is pushed to candidates).
	StatusPendingAssignment Status = "PENDING_ASSIGNMENT"
	StatusAssigned          Status = "Assigned"
	StatusPickedUp          Status = "PickedUp"
	StatusDelivered         Status = "Delivered"
	StatusCancelled         Status = "Cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type DeliveryType string

const (
	DeliveryTypePickup DeliveryType = "pickup"
	DeliveryTypeHome   DeliveryType = "delivery"
)

type Item struct {
	ProductID string
	Name      string
	Price     int64
	Quantity  int
	Total     int64
}

// Order is the aggregate root of the fulfillment workflow.
type Order struct {
	ID                string
	CustomerID        string // empty for guest checkout
	Items             []Item
	TotalAmount       int64
	DeliveryType      DeliveryType
	Address           string
	PickupLocation    geo.Point
	DropLocation      *geo.Point
	DeliveryFee       int64
	Status            Status
	DeliveryPartnerID string
	OTP               string // 4-digit passcode, delivery orders only
	Bazar             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var (
	ErrNotFound         = errors.New("order not found")
	ErrValidation       = errors.New("invalid order input")
	ErrAlreadyAssigned  = errors.New("order already assigned")
	ErrUnauthorized     = errors.New("partner does not own this order")
	ErrInvalidOTP       = errors.New("invalid otp")
	ErrInvalidAction    = errors.New("invalid action")
	ErrInvalidState     = errors.New("order state does not permit this action")
	ErrWindowExpired    = errors.New("cancellation window expired")
	ErrAlreadyCancelled = errors.New("order is already cancelled")
	ErrCreateFailed     = errors.New("order creation failed")
)

// CancellationWindow bounds the customer self-service cancel path. Partner
// cancellation is not time-boxed.
const CancellationWindow = 3 * time.Minute

// NewOTP returns a 4-digit numeric passcode. Codes are not globally unique;
// they only gate the handoff of a single order.
func NewOTP() string {
	return fmt.Sprintf("%04d", 1000+rand.IntN(9000))
}

// CancellableAt reports whether the customer cancel window is still open at t.
func (o Order) CancellableAt(t time.Time) bool {
	return t.Sub(o.CreatedAt) <= CancellationWindow
}

// OwnedBy reports whether the given partner holds the order.
func (o Order) OwnedBy(partnerID string) bool {
	return o.DeliveryPartnerID != "" && o.DeliveryPartnerID == partnerID
}
