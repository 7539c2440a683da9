package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const userColumns = `id, name, identifier, password_hash, role,
	COALESCE(address, ''), COALESCE(bazar, ''), COALESCE(vehicle_type, ''), COALESCE(service_area, ''),
	loc_lng, loc_lat, COALESCE(location_updated_at, 'epoch'::timestamptz), status, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var lng, lat *float64
	err := row.Scan(&u.ID, &u.Name, &u.Identifier, &u.PasswordHash, &u.Role,
		&u.Address, &u.Bazar, &u.VehicleType, &u.ServiceArea,
		&lng, &lat, &u.LocationUpdatedAt, &u.Status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if lng != nil && lat != nil {
		u.CurrentLocation = &geo.Point{Lng: *lng, Lat: *lat}
	}
	return u, nil
}

func (r *Repository) Create(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, identifier, password_hash, role, address, bazar, vehicle_type, service_area, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		u.ID, u.Name, u.Identifier, u.PasswordHash, u.Role, u.Address, u.Bazar,
		u.VehicleType, u.ServiceArea, u.Status, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (r *Repository) GetByIdentifier(ctx context.Context, identifier string, role domain.Role) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE identifier=$1 AND role=$2`, identifier, role)
	return scanUser(row)
}

func (r *Repository) UpdateLocation(ctx context.Context, id string, loc geo.Point) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET loc_lng=$2, loc_lat=$3, location_updated_at=now() WHERE id=$1`,
		id, loc.Lng, loc.Lat)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, id string, status domain.Availability) error {
	ct, err := r.pool.Exec(ctx, `UPDATE users SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
