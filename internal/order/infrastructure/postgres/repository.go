package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarlink/bazarlink/internal/geo"
	"github.com/bazarlink/bazarlink/internal/order/domain"
	"github.com/bazarlink/bazarlink/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const OrderColumns = `id, COALESCE(customer_id::text, ''), total_amount, delivery_type, COALESCE(address, ''),
	pickup_lng, pickup_lat, drop_lng, drop_lat, delivery_fee, status,
	COALESCE(delivery_partner_id::text, ''), COALESCE(otp, ''), COALESCE(bazar, ''), created_at, updated_at`

func ScanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var dropLng, dropLat *float64
	err := row.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &o.DeliveryType, &o.Address,
		&o.PickupLocation.Lng, &o.PickupLocation.Lat, &dropLng, &dropLat, &o.DeliveryFee, &o.Status,
		&o.DeliveryPartnerID, &o.OTP, &o.Bazar, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if dropLng != nil && dropLat != nil {
		o.DropLocation = &geo.Point{Lng: *dropLng, Lat: *dropLat}
	}
	return o, nil
}

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var customerID, partnerID, otp, dropLng, dropLat any
	if o.CustomerID != "" {
		customerID = o.CustomerID
	}
	if o.DeliveryPartnerID != "" {
		partnerID = o.DeliveryPartnerID
	}
	if o.OTP != "" {
		otp = o.OTP
	}
	if o.DropLocation != nil {
		dropLng, dropLat = o.DropLocation.Lng, o.DropLocation.Lat
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, total_amount, delivery_type, address,
			pickup_lng, pickup_lat, drop_lng, drop_lat, delivery_fee, status,
			delivery_partner_id, otp, bazar, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, customerID, o.TotalAmount, o.DeliveryType, o.Address,
		o.PickupLocation.Lng, o.PickupLocation.Lat, dropLng, dropLat, o.DeliveryFee, o.Status,
		partnerID, otp, o.Bazar, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, name, price, quantity, total)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, item.ProductID, item.Name, item.Price, item.Quantity, item.Total)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, o.ID, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := ScanOrder(r.pool.QueryRow(ctx, `SELECT `+OrderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return domain.Order{}, err
	}
	o.Items, err = r.items(ctx, id)
	return o, err
}

func (r *Repository) ByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+OrderColumns+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := ScanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) UpdateStatusWithOutbox(ctx context.Context, id string, from, to domain.Status, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Conditional on the status the caller observed, so a concurrent
	// transition cannot be overwritten.
	ct, err := tx.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return r.classifyStatusFailure(ctx, id)
	}
	if err := insertOutbox(ctx, tx, id, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// classifyStatusFailure distinguishes a missing order from a lost transition
// race after a zero-row conditional update.
func (r *Repository) classifyStatusFailure(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidState
}

func (r *Repository) items(ctx context.Context, orderID string) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, name, price, quantity, total FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')`,
		aggregateID, eventType, payload, traceparent)
	return err
}

// OutboxStore adapts the outbox table to the relay.
type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, COALESCE(traceparent, ''), created_at
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		   OR (status = 'failed' AND retry_count < 5)
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.Payload, &ev.Traceparent, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.Exec(ctx,
		`UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`,
		relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1 WHERE id=$1`, id, errMsg)
	return err
}
