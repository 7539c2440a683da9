package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	accountdom "github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
	orderdom "github.com/bazarlink/bazarlink/internal/order/domain"
	"github.com/bazarlink/bazarlink/pkg/tracing"
)

// MatchRadiusMeters bounds the proximity search for the dispatch pool.
const MatchRadiusMeters = 20000

// SampleLimit bounds the fallback listing when neither a service area nor
// coordinates are supplied.
const SampleLimit = 10

// Service is the pull-based dispatch surface: partners discover pending
// orders through List and drive the state machine through the action methods.
type Service struct {
	log      *slog.Logger
	orders   OrderStore
	partners PartnerStatus
}

func NewService(log *slog.Logger, orders OrderStore, partners PartnerStatus) *Service {
	return &Service{log: log, orders: orders, partners: partners}
}

type Listing struct {
	MyOrders        []orderdom.Order
	AvailableOrders []orderdom.Order
}

// List returns the partner's own orders plus the claimable pool. Service-area
// name match is authoritative over proximity when both signals are present:
// bazar naming is durable while device geolocation is noisy or absent. A
// failed pool query degrades to an empty pool rather than failing the call;
// the order stays visible on the next poll.
func (s *Service) List(ctx context.Context, partnerID, serviceArea string, loc *geo.Point) (Listing, error) {
	if partnerID == "" {
		return Listing{}, fmt.Errorf("%w: partner id required", orderdom.ErrValidation)
	}

	mine, err := s.orders.ByPartner(ctx, partnerID)
	if err != nil {
		return Listing{}, err
	}

	var available []orderdom.Order
	switch {
	case serviceArea != "":
		available, err = s.orders.PendingByBazar(ctx, serviceArea)
	case loc != nil:
		available, err = s.orders.PendingNear(ctx, *loc, MatchRadiusMeters)
	default:
		available, err = s.orders.PendingSample(ctx, SampleLimit)
	}
	if err != nil {
		s.log.Error("dispatch pool query failed", "partner_id", partnerID, "err", err)
		available = nil
	}

	return Listing{MyOrders: mine, AvailableOrders: available}, nil
}

// Accept claims an unassigned order for the partner. The set-partner write is
// a conditional update, so of N concurrent accepts exactly one wins and the
// rest see ErrAlreadyAssigned.
func (s *Service) Accept(ctx context.Context, orderID, partnerID string) (orderdom.Order, error) {
	if partnerID == "" {
		return orderdom.Order{}, fmt.Errorf("%w: partner id required", orderdom.ErrValidation)
	}
	payload, err := json.Marshal(orderdom.OrderAssigned{OrderID: orderID, PartnerID: partnerID})
	if err != nil {
		return orderdom.Order{}, err
	}
	o, err := s.orders.Assign(ctx, orderID, partnerID, orderdom.NewOTP(), orderdom.EventOrderAssigned, payload, tracing.Traceparent(ctx))
	if err != nil {
		return orderdom.Order{}, err
	}

	// Partner is considered occupied while holding an active order. Failure
	// here only skews the availability flag, never the assignment itself.
	if err := s.partners.SetAvailability(ctx, partnerID, accountdom.Busy); err != nil {
		s.log.Error("partner busy update failed", "partner_id", partnerID, "err", err)
	}
	s.log.Info("order accepted", "order_id", o.ID, "partner_id", partnerID)
	return o, nil
}

// PickedUp records the partner collecting the goods at the bazar.
func (s *Service) PickedUp(ctx context.Context, orderID, partnerID string) (orderdom.Order, error) {
	o, err := s.ownedOrder(ctx, orderID, partnerID)
	if err != nil {
		return orderdom.Order{}, err
	}
	if o.Status != orderdom.StatusAssigned {
		return orderdom.Order{}, fmt.Errorf("%w: cannot pick up from %s", orderdom.ErrInvalidState, o.Status)
	}
	payload, err := json.Marshal(orderdom.OrderPickedUp{OrderID: o.ID, PartnerID: partnerID})
	if err != nil {
		return orderdom.Order{}, err
	}
	if err := s.orders.SetStatus(ctx, o.ID, orderdom.StatusAssigned, orderdom.StatusPickedUp, orderdom.EventOrderPickedUp, payload, tracing.Traceparent(ctx)); err != nil {
		return orderdom.Order{}, err
	}
	o.Status = orderdom.StatusPickedUp
	return o, nil
}

// Delivered closes the order after the customer's passcode checks out. A
// mismatch leaves the order in PickedUp.
func (s *Service) Delivered(ctx context.Context, orderID, partnerID, otp string) (orderdom.Order, error) {
	o, err := s.ownedOrder(ctx, orderID, partnerID)
	if err != nil {
		return orderdom.Order{}, err
	}
	if o.Status != orderdom.StatusPickedUp {
		return orderdom.Order{}, fmt.Errorf("%w: cannot deliver from %s", orderdom.ErrInvalidState, o.Status)
	}
	if o.OTP == "" || o.OTP != otp {
		return orderdom.Order{}, orderdom.ErrInvalidOTP
	}
	payload, err := json.Marshal(orderdom.OrderDelivered{OrderID: o.ID, PartnerID: partnerID})
	if err != nil {
		return orderdom.Order{}, err
	}
	if err := s.orders.SetStatus(ctx, o.ID, orderdom.StatusPickedUp, orderdom.StatusDelivered, orderdom.EventOrderDelivered, payload, tracing.Traceparent(ctx)); err != nil {
		return orderdom.Order{}, err
	}
	s.release(ctx, partnerID)
	s.log.Info("order delivered", "order_id", o.ID, "partner_id", partnerID)
	o.Status = orderdom.StatusDelivered
	return o, nil
}

/// Cancel is the partner-side abort: no time box, allowed at any pre-delivery
// stage, does not restore stock.
func (s *Service) Cancel(ctx context.Context, orderID, partnerID string) (orderdom.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return orderdom.Order{}, err
	}
	if o.DeliveryPartnerID != "" && !o.OwnedBy(partnerID) {
		return orderdom.Order{}, orderdom.ErrUnauthorized
	}
	if o.Status.Terminal() {
		return orderdom.Order{}, fmt.Errorf("%w: order is %s", orderdom.ErrInvalidState, o.Status)
	}
	payload, err := json.Marshal(orderdom.OrderCancelled{OrderID: o.ID, By: "partner"})
	if err != nil {
		return orderdom.Order{}, err
	}
	if err := s.orders.SetStatus(ctx, o.ID, o.Status, orderdom.StatusCancelled, orderdom.EventOrderCancelled, payload, tracing.Traceparent(ctx)); err != nil {
		return orderdom.Order{}, err
	}
	if o.DeliveryPartnerID != "" {
		s.release(ctx, o.DeliveryPartnerID)
	}
	s.log.Info("order cancelled by partner", "order_id", o.ID, "partner_id", partnerID)
	o.Status = orderdom.StatusCancelled
	return o, nil
}

func (s *Service) ownedOrder(ctx context.Context, orderID, partnerID string) (orderdom.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return orderdom.Order{}, err
	}
	if !o.OwnedBy(partnerID) {
		return orderdom.Order{}, orderdom.ErrUnauthorized
	}
	return o, nil
}

func (s *Service) release(ctx context.Context, partnerID string) {
	if err := s.partners.SetAvailability(ctx, partnerID, accountdom.Available); err != nil {
		s.log.Error("partner availability update failed", "partner_id", partnerID, "err", err)
	}
}
