package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdom "github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
	orderdom "github.com/bazarlink/bazarlink/internal/order/domain"
	"github.com/bazarlink/bazarlink/pkg/logging"
)

type fakeOrderStore struct {
	mu       sync.Mutex
	orders   map[string]orderdom.Order
	events   []string
	queryErr error
}

func newFakeOrderStore(orders ...orderdom.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: map[string]orderdom.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) Get(ctx context.Context, id string) (orderdom.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orderdom.Order{}, orderdom.ErrNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) ByPartner(ctx context.Context, partnerID string) ([]orderdom.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orderdom.Order
	for _, o := range s.orders {
		if o.DeliveryPartnerID == partnerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeOrderStore) pending() []orderdom.Order {
	var out []orderdom.Order
	for _, o := range s.orders {
		if o.DeliveryType == orderdom.DeliveryTypeHome &&
			o.Status == orderdom.StatusPendingAssignment &&
			o.DeliveryPartnerID == "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *fakeOrderStore) PendingByBazar(ctx context.Context, bazar string) ([]orderdom.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []orderdom.Order
	for _, o := range s.pending() {
		if strings.EqualFold(o.Bazar, bazar) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeOrderStore) PendingNear(ctx context.Context, pt geo.Point, radiusMeters float64) ([]orderdom.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []orderdom.Order
	for _, o := range s.pending() {
		if geo.DistanceMeters(pt, o.PickupLocation) <= radiusMeters {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return geo.DistanceMeters(pt, out[i].PickupLocation) < geo.DistanceMeters(pt, out[j].PickupLocation)
	})
	return out, nil
}

func (s *fakeOrderStore) PendingSample(ctx context.Context, limit int) ([]orderdom.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := s.pending()
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeOrderStore) Assign(ctx context.Context, orderID, partnerID, otp string, eventType string, payload []byte, traceparent string) (orderdom.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orderdom.Order{}, orderdom.ErrNotFound
	}
	if o.DeliveryPartnerID != "" {
		return orderdom.Order{}, orderdom.ErrAlreadyAssigned
	}
	if o.Status != orderdom.StatusPendingAssignment {
		return orderdom.Order{}, orderdom.ErrInvalidState
	}
	o.DeliveryPartnerID = partnerID
	o.Status = orderdom.StatusAssigned
	if o.OTP == "" {
		o.OTP = otp
	}
	s.orders[orderID] = o
	s.events = append(s.events, eventType)
	return o, nil
}

func (s *fakeOrderStore) SetStatus(ctx context.Context, orderID string, from, to orderdom.Status, eventType string, payload []byte, traceparent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orderdom.ErrNotFound
	}
	if o.Status != from {
		return orderdom.ErrInvalidState
	}
	o.Status = to
	s.orders[orderID] = o
	s.events = append(s.events, eventType)
	return nil
}

type fakePartnerStatus struct {
	mu     sync.Mutex
	status map[string]accountdom.Availability
}

func newFakePartnerStatus() *fakePartnerStatus {
	return &fakePartnerStatus{status: map[string]accountdom.Availability{}}
}

func (f *fakePartnerStatus) SetAvailability(ctx context.Context, partnerID string, status accountdom.Availability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[partnerID] = status
	return nil
}

func (f *fakePartnerStatus) get(partnerID string) accountdom.Availability {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[partnerID]
}

func pendingOrder(id, bazar string, pickup geo.Point, createdAt time.Time) orderdom.Order {
	return orderdom.Order{
		ID:             id,
		DeliveryType:   orderdom.DeliveryTypeHome,
		Status:         orderdom.StatusPendingAssignment,
		PickupLocation: pickup,
		Bazar:          bazar,
		OTP:            "4821",
		CreatedAt:      createdAt,
	}
}

var (
	mvpColony = geo.Point{Lng: 83.3525, Lat: 17.7447}
	tirupati  = geo.Point{Lng: 79.4192, Lat: 13.6288}
)

func TestList_RequiresPartnerID(t *testing.T) {
	svc := NewService(logging.New(), newFakeOrderStore(), newFakePartnerStatus())
	_, err := svc.List(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, orderdom.ErrValidation)
}

func TestList_ServiceAreaMatchWinsOverProximity(t *testing.T) {
	now := time.Now()
	store := newFakeOrderStore(
		pendingOrder("o-near", "Tirupati", mvpColony, now),
		pendingOrder("o-old", "MVP Colony", tirupati, now.Add(-2*time.Hour)),
		pendingOrder("o-new", "mvp colony", tirupati, now.Add(-time.Hour)),
	)
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	// Partner is physically next to o-near, but their service area is MVP
	// Colony: the name match is authoritative and proximity is discarded.
	got, err := svc.List(context.Background(), "p1", "MVP COLONY", &mvpColony)
	require.NoError(t, err)

	ids := make([]string, 0, len(got.AvailableOrders))
	for _, o := range got.AvailableOrders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"o-old", "o-new"}, ids, "case-insensitive match, oldest first")
}

func TestList_GeoFallbackWithinRadius(t *testing.T) {
	now := time.Now()
	nearby := geo.Point{Lng: mvpColony.Lng + 0.01, Lat: mvpColony.Lat}
	store := newFakeOrderStore(
		pendingOrder("o-near", "Seethammadhara", nearby, now),
		pendingOrder("o-far", "Tirupati", tirupati, now),
	)
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	got, err := svc.List(context.Background(), "p1", "", &mvpColony)
	require.NoError(t, err)
	require.Len(t, got.AvailableOrders, 1)
	assert.Equal(t, "o-near", got.AvailableOrders[0].ID)
}

func TestList_SampleFallbackIsBounded(t *testing.T) {
	store := newFakeOrderStore()
	for i := 0; i < 15; i++ {
		o := pendingOrder(string(rune('a'+i)), "MVP Colony", mvpColony, time.Now())
		store.orders[o.ID] = o
	}
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	got, err := svc.List(context.Background(), "p1", "", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.AvailableOrders), SampleLimit)
}

func TestList_PoolQueryFailureDegradesToEmpty(t *testing.T) {
	store := newFakeOrderStore(pendingOrder("o1", "MVP Colony", mvpColony, time.Now()))
	store.queryErr = errors.New("query timeout")
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	got, err := svc.List(context.Background(), "p1", "MVP Colony", nil)
	require.NoError(t, err)
	assert.Empty(t, got.AvailableOrders)
}

func TestList_MyOrdersIncludesTerminalStates(t *testing.T) {
	now := time.Now()
	done := pendingOrder("o-done", "MVP Colony", mvpColony, now.Add(-time.Hour))
	done.DeliveryPartnerID = "p1"
	done.Status = orderdom.StatusDelivered
	active := pendingOrder("o-active", "MVP Colony", mvpColony, now)
	active.DeliveryPartnerID = "p1"
	active.Status = orderdom.StatusAssigned
	store := newFakeOrderStore(done, active)
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	got, err := svc.List(context.Background(), "p1", "", nil)
	require.NoError(t, err)
	require.Len(t, got.MyOrders, 2)
	assert.Equal(t, "o-active", got.MyOrders[0].ID, "newest first")
}

func TestAccept_ClaimsUnassignedOrder(t *testing.T) {
	store := newFakeOrderStore(pendingOrder("o1", "MVP Colony", mvpColony, time.Now()))
	partners := newFakePartnerStatus()
	svc := NewService(logging.New(), store, partners)

	o, err := svc.Accept(context.Background(), "o1", "p1")
	require.NoError(t, err)
	assert.Equal(t, orderdom.StatusAssigned, o.Status)
	assert.Equal(t, "p1", o.DeliveryPartnerID)
	assert.Equal(t, "4821", o.OTP, "passcode from placement is never regenerated")
	assert.Equal(t, accountdom.Busy, partners.get("p1"))
	assert.Contains(t, store.events, orderdom.EventOrderAssigned)
}

func TestAccept_FillsMissingOTP(t *testing.T) {
	o := pendingOrder("o1", "MVP Colony", mvpColony, time.Now())
	o.OTP = ""
	store := newFakeOrderStore(o)
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	got, err := svc.Accept(context.Background(), "o1", "p1")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{4}$`, got.OTP)
}

func TestAccept_AlreadyAssigned(t *testing.T) {
	store := newFakeOrderStore(pendingOrder("o1", "MVP Colony", mvpColony, time.Now()))
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	_, err := svc.Accept(context.Background(), "o1", "p1")
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), "o1", "p2")
	assert.ErrorIs(t, err, orderdom.ErrAlreadyAssigned)
}

func TestAccept_ConcurrentClaimsExactlyOneWins(t *testing.T) {
	store := newFakeOrderStore(pendingOrder("o1", "MVP Colony", mvpColony, time.Now()))
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Accept(context.Background(), "o1", "p"+string(rune('0'+n)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, orderdom.ErrAlreadyAssigned):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, lost)
}

func TestAccept_UnknownOrder(t *testing.T) {
	svc := NewService(logging.New(), newFakeOrderStore(), newFakePartnerStatus())
	_, err := svc.Accept(context.Background(), "missing", "p1")
	assert.ErrorIs(t, err, orderdom.ErrNotFound)
}

func acceptedOrder(t *testing.T, svc *Service, store *fakeOrderStore) orderdom.Order {
	t.Helper()
	store.orders["o1"] = pendingOrder("o1", "MVP Colony", mvpColony, time.Now())
	o, err := svc.Accept(context.Background(), "o1", "p1")
	require.NoError(t, err)
	return o
}

func TestPickedUp_OnlyAssignedPartner(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewService(logging.New(), store, newFakePartnerStatus())
	acceptedOrder(t, svc, store)

	_, err := svc.PickedUp(context.Background(), "o1", "p2")
	assert.ErrorIs(t, err, orderdom.ErrUnauthorized)

	o, err := svc.PickedUp(context.Background(), "o1", "p1")
	require.NoError(t, err)
	assert.Equal(t, orderdom.StatusPickedUp, o.Status)
}

func TestPickedUp_RejectedFromWrongState(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewService(logging.New(), store, newFakePartnerStatus())
	acceptedOrder(t, svc, store)

	_, err := svc.PickedUp(context.Background(), "o1", "p1")
	require.NoError(t, err)

	_, err = svc.PickedUp(context.Background(), "o1", "p1")
	assert.ErrorIs(t, err, orderdom.ErrInvalidState)
}

func TestDelivered_OTPGate(t *testing.T) {
	store := newFakeOrderStore()
	partners := newFakePartnerStatus()
	svc := NewService(logging.New(), store, partners)
	acceptedOrder(t, svc, store)

	_, err := svc.PickedUp(context.Background(), "o1", "p1")
	require.NoError(t, err)

	_, err = svc.Delivered(context.Background(), "o1", "p1", "0000")
	assert.ErrorIs(t, err, orderdom.ErrInvalidOTP)
	got, _ := store.Get(context.Background(), "o1")
	assert.Equal(t, orderdom.StatusPickedUp, got.Status, "mismatch leaves the order picked up")

	o, err := svc.Delivered(context.Background(), "o1", "p1", "4821")
	require.NoError(t, err)
	assert.Equal(t, orderdom.StatusDelivered, o.Status)
	assert.Equal(t, accountdom.Available, partners.get("p1"))
}

func TestDelivered_RequiresPickedUpState(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewService(logging.New(), store, newFakePartnerStatus())
	acceptedOrder(t, svc, store)

	_, err := svc.Delivered(context.Background(), "o1", "p1", "4821")
	assert.ErrorIs(t, err, orderdom.ErrInvalidState)
}

func TestCancel_ByAssignedPartnerReleasesPartner(t *testing.T) {
	store := newFakeOrderStore()
	partners := newFakePartnerStatus()
	svc := NewService(logging.New(), store, partners)
	acceptedOrder(t, svc, store)

	_, err := svc.Cancel(context.Background(), "o1", "p2")
	assert.ErrorIs(t, err, orderdom.ErrUnauthorized)

	o, err := svc.Cancel(context.Background(), "o1", "p1")
	require.NoError(t, err)
	assert.Equal(t, orderdom.StatusCancelled, o.Status)
	assert.Equal(t, accountdom.Available, partners.get("p1"))
}

func TestCancel_UnassignedOrderByAnyCaller(t *testing.T) {
	store := newFakeOrderStore(pendingOrder("o1", "MVP Colony", mvpColony, time.Now()))
	svc := NewService(logging.New(), store, newFakePartnerStatus())

	o, err := svc.Cancel(context.Background(), "o1", "p9")
	require.NoError(t, err)
	assert.Equal(t, orderdom.StatusCancelled, o.Status)
}

func TestDelivered_RacingCancelExactlyOneWins(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewService(logging.New(), store, newFakePartnerStatus())
	acceptedOrder(t, svc, store)

	_, err := svc.PickedUp(context.Background(), "o1", "p1")
	require.NoError(t, err)

	// Both transitions start from the same observed status; the conditional
	// write lets exactly one land and the other sees an invalid state.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Delivered(context.Background(), "o1", "p1", "4821")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Cancel(context.Background(), "o1", "p1")
		errs <- err
	}()
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, orderdom.ErrInvalidState):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	got, err := store.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestCancel_TerminalOrderRejected(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewService(logging.New(), store, newFakePartnerStatus())
	acceptedOrder(t, svc, store)

	_, err := svc.PickedUp(context.Background(), "o1", "p1")
	require.NoError(t, err)
	_, err = svc.Delivered(context.Background(), "o1", "p1", "4821")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), "o1", "p1")
	assert.ErrorIs(t, err, orderdom.ErrInvalidState)
}
