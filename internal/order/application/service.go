package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	accountdom "github.com/bazarlink/bazarlink/internal/account/domain"
	catalogdom "github.com/bazarlink/bazarlink/internal/catalog/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
	"github.com/bazarlink/bazarlink/internal/order/domain"
	"github.com/bazarlink/bazarlink/pkg/tracing"
)

// Service implements order placement and the customer cancellation path.
type Service struct {
	log           *slog.Logger
	repo          OrderRepository
	ledger        StockLedger
	farmers       FarmerLocator
	partners      PartnerStatus
	defaultPickup geo.Point
	now           func() time.Time
}

func NewService(log *slog.Logger, repo OrderRepository, ledger StockLedger, farmers FarmerLocator, partners PartnerStatus, defaultPickup geo.Point) *Service {
	return &Service{
		log:           log,
		repo:          repo,
		ledger:        ledger,
		farmers:       farmers,
		partners:      partners,
		defaultPickup: defaultPickup,
		now:           time.Now,
	}
}

type ItemInput struct {
	ProductID string
	Quantity  int
}

type LatLng struct {
	Lat float64
	Lng float64
}

type PlaceInput struct {
	CustomerID   string
	Items        []ItemInput
	DeliveryType domain.DeliveryType
	Address      string
	Drop         *LatLng
	DeliveryFee  int64
	Bazar        string
}

type reservation struct {
	productID string
	quantity  int
}

// Place runs the full placement protocol: validate every line item, reserve
// stock with compensating rollback, derive the pickup point, and persist the
// order together with its OrderPlaced event.
func (s *Service) Place(ctx context.Context, in PlaceInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: empty cart", domain.ErrValidation)
	}
	switch in.DeliveryType {
	case domain.DeliveryTypePickup:
	case domain.DeliveryTypeHome:
		if in.Address == "" {
			return domain.Order{}, fmt.Errorf("%w: address required for delivery", domain.ErrValidation)
		}
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown delivery type %q", domain.ErrValidation, in.DeliveryType)
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
		}
	}

	// Phase 1: validate before any mutation.
	products := make([]catalogdom.Product, 0, len(in.Items))
	for _, it := range in.Items {
		p, err := s.ledger.Get(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, catalogdom.ErrNotFound) {
				return domain.Order{}, fmt.Errorf("%w: %s", catalogdom.ErrNotFound, it.ProductID)
			}
			return domain.Order{}, err
		}
		if p.Stock < it.Quantity {
			return domain.Order{}, fmt.Errorf("%w for %s: available %d", catalogdom.ErrOutOfStock, p.Name, p.Stock)
		}
		products = append(products, p)
	}

	// Phase 2: reserve item by item; a lost race rolls back everything
	// reserved so far. Compensation, not a transaction: a crash between
	// decrement and rollback leaves stock under-reserved.
	var reserved []reservation
	for i, it := range in.Items {
		if err := s.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			s.rollback(ctx, reserved)
			if errors.Is(err, catalogdom.ErrStockConflict) {
				return domain.Order{}, fmt.Errorf("%w for %s", catalogdom.ErrStockConflict, products[i].Name)
			}
			return domain.Order{}, err
		}
		reserved = append(reserved, reservation{productID: it.ProductID, quantity: it.Quantity})
	}

	o := s.buildOrder(ctx, in, products)

	event := domain.OrderPlaced{
		OrderID:      o.ID,
		CustomerID:   o.CustomerID,
		TotalAmount:  o.TotalAmount,
		DeliveryType: string(o.DeliveryType),
		Bazar:        o.Bazar,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.rollback(ctx, reserved)
		return domain.Order{}, err
	}
	if err := s.repo.CreateWithOutbox(ctx, o, domain.EventOrderPlaced, payload, tracing.Traceparent(ctx)); err != nil {
		s.rollback(ctx, reserved)
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrCreateFailed, err)
	}

	s.log.Info("order placed", "order_id", o.ID, "status", o.Status, "bazar", o.Bazar, "items", len(o.Items))
	return o, nil
}

func (s *Service) buildOrder(ctx context.Context, in PlaceInput, products []catalogdom.Product) domain.Order {
	now := s.now().UTC()

	items := make([]domain.Item, 0, len(in.Items))
	var total int64
	for i, it := range in.Items {
		p := products[i]
		line := domain.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
			Total:     p.Price * int64(it.Quantity),
		}
		total += line.Total
		items = append(items, line)
	}

	o := domain.Order{
		ID:             uuid.NewString(),
		CustomerID:     in.CustomerID,
		Items:          items,
		TotalAmount:    total + in.DeliveryFee,
		DeliveryType:   in.DeliveryType,
		Address:        in.Address,
		PickupLocation: s.pickupLocation(ctx, products[0]),
		DeliveryFee:    in.DeliveryFee,
		Status:         domain.StatusPlaced,
		Bazar:          in.Bazar,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if in.DeliveryType == domain.DeliveryTypeHome {
		o.Status = domain.StatusPendingAssignment
		o.OTP = domain.NewOTP()
		if in.Drop != nil {
			if pt, err := geo.NewPoint(in.Drop.Lng, in.Drop.Lat); err == nil {
				o.DropLocation = &pt
			}
		}
	}
	return o
}

// pickupLocation derives the pickup point from the first item's farmer,
// falling back to the configured bazar default. Lookup errors degrade to the
// default rather than failing the placement.
func (s *Service) pickupLocation(ctx context.Context, first catalogdom.Product) geo.Point {
	if first.FarmerID == "" {
		return s.defaultPickup
	}
	loc, err := s.farmers.FarmerLocation(ctx, first.FarmerID)
	if err != nil || loc == nil {
		return s.defaultPickup
	}
	return *loc
}

func (s *Service) rollback(ctx context.Context, reserved []reservation) {
	for _, r := range reserved {
		if err := s.ledger.Release(ctx, r.productID, r.quantity); err != nil {
			s.log.Error("reservation rollback failed", "product_id", r.productID, "qty", r.quantity, "err", err)
		}
	}
}

// Cancel is the customer self-service path: allowed only inside the
// 3-minute window, and restores stock item by item on success.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.CancellableAt(s.now()) {
		return domain.ErrWindowExpired
	}
	if o.Status == domain.StatusCancelled {
		return domain.ErrAlreadyCancelled
	}
	if o.Status == domain.StatusDelivered {
		return fmt.Errorf("%w: order is %s", domain.ErrInvalidState, o.Status)
	}

	payload, err := json.Marshal(domain.OrderCancelled{OrderID: o.ID, By: "customer"})
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatusWithOutbox(ctx, o.ID, o.Status, domain.StatusCancelled, domain.EventOrderCancelled, payload, tracing.Traceparent(ctx)); err != nil {
		return err
	}

	// A partner holding this order is released; the cancelled order no
	// longer occupies them.
	if o.DeliveryPartnerID != "" {
		if err := s.partners.SetAvailability(ctx, o.DeliveryPartnerID, accountdom.Available); err != nil {
			s.log.Error("partner availability update failed", "order_id", o.ID, "partner_id", o.DeliveryPartnerID, "err", err)
		}
	}

	// Best-effort restoration, one update per item. A failure mid-loop
	// leaves partial restoration; it is logged, never hidden.
	for _, it := range o.Items {
		if err := s.ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
			s.log.Error("stock restore failed", "order_id", o.ID, "product_id", it.ProductID, "err", err)
		}
	}
	s.log.Info("order cancelled by customer", "order_id", o.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) ByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id required", domain.ErrValidation)
	}
	return s.repo.ByCustomer(ctx, customerID)
}
