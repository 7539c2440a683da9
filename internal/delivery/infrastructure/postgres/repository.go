package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarlink/bazarlink/internal/geo"
	"github.com/bazarlink/bazarlink/internal/order/domain"
	orderpg "github.com/bazarlink/bazarlink/internal/order/infrastructure/postgres"
)

// Repository runs the dispatch-pool queries and the partner-driven
// transitions against the orders table.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const pendingFilter = `delivery_type = 'delivery' AND status = 'PENDING_ASSIGNMENT' AND delivery_partner_id IS NULL`

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return orderpg.ScanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderpg.OrderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *Repository) ByPartner(ctx context.Context, partnerID string) ([]domain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderpg.OrderColumns+` FROM orders WHERE delivery_partner_id=$1 ORDER BY created_at DESC`,
		partnerID)
}

func (r *Repository) PendingByBazar(ctx context.Context, bazar string) ([]domain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderpg.OrderColumns+` FROM orders
		 WHERE `+pendingFilter+` AND lower(bazar) = lower($1)
		 ORDER BY created_at ASC`,
		bazar)
}

// PendingNear orders candidates by haversine distance from the partner,
// bounded by the search radius. Good enough at city scale without PostGIS.
func (r *Repository) PendingNear(ctx context.Context, pt geo.Point, radiusMeters float64) ([]domain.Order, error) {
	const distance = `2 * 6371000 * asin(sqrt(
		power(sin(radians((pickup_lat - $1) / 2)), 2) +
		cos(radians($1)) * cos(radians(pickup_lat)) *
		power(sin(radians((pickup_lng - $2) / 2)), 2)))`
	return r.query(ctx,
		`SELECT `+orderpg.OrderColumns+` FROM orders
		 WHERE `+pendingFilter+` AND `+distance+` <= $3
		 ORDER BY `+distance+` ASC`,
		pt.Lat, pt.Lng, radiusMeters)
}

func (r *Repository) PendingSample(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderpg.OrderColumns+` FROM orders WHERE `+pendingFilter+` LIMIT $1`,
		limit)
}

// Assign is the at-most-one-partner guard: a single conditional UPDATE, so
// two concurrent accepts cannot both observe the order as unassigned.
func (r *Repository) Assign(ctx context.Context, orderID, partnerID, otp string, eventType string, payload []byte, traceparent string) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := orderpg.ScanOrder(tx.QueryRow(ctx, `
		UPDATE orders
		SET delivery_partner_id=$2, status=$3, otp=COALESCE(otp, $4), updated_at=now()
		WHERE id=$1 AND delivery_partner_id IS NULL AND status=$5
		RETURNING `+orderpg.OrderColumns,
		orderID, partnerID, domain.StatusAssigned, otp, domain.StatusPendingAssignment))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, r.classifyAssignFailure(ctx, orderID)
	}
	if err != nil {
		return domain.Order{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')`,
		orderID, eventType, payload, traceparent)
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// classifyAssignFailure distinguishes a lost claim race from a missing order.
func (r *Repository) classifyAssignFailure(ctx context.Context, orderID string) error {
	var partnerID *string
	var status domain.Status
	err := r.pool.QueryRow(ctx,
		`SELECT delivery_partner_id::text, status FROM orders WHERE id=$1`, orderID).
		Scan(&partnerID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if partnerID != nil {
		return domain.ErrAlreadyAssigned
	}
	return domain.ErrInvalidState
}

func (r *Repository) SetStatus(ctx context.Context, orderID string, from, to domain.Status, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Conditional on the status the caller observed, so a racing transition
	// (a customer cancel against a delivered, say) cannot be overwritten.
	ct, err := tx.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, orderID, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return r.classifyStatusFailure(ctx, orderID)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')`,
		orderID, eventType, payload, traceparent)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// classifyStatusFailure distinguishes a missing order from a lost transition
// race after a zero-row conditional update.
func (r *Repository) classifyStatusFailure(ctx context.Context, orderID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidState
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := orderpg.ScanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.attachItems(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) attachItems(ctx context.Context, o *domain.Order) error {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, name, price, quantity, total FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.Total); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}
